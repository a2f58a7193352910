package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type fallbackLanguageKey struct{}

// FallbackLanguageKey holds the language hint derived for the request.
var FallbackLanguageKey = fallbackLanguageKey{}

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// countryLanguages maps ISO country codes onto synthesis languages for
// callers that send no language preference at all.
var countryLanguages = map[string]string{
	"US": "en", "GB": "en", "CA": "en", "AU": "en", "IE": "en", "NZ": "en",
	"ES": "es", "MX": "es", "AR": "es", "CO": "es", "CL": "es", "PE": "es",
	"FR": "fr", "BE": "fr",
	"DE": "de", "AT": "de", "CH": "de",
	"IT": "it",
	"PT": "pt", "BR": "pt",
}

// FallbackLanguage derives a per-request language hint from the
// Accept-Language header, or failing that from the caller's country, and
// stores it in the context. The hint only matters when text-based detection
// comes up empty; handlers read it through FallbackLanguageFromContext.
func FallbackLanguage(defaultLang string, supported []string, lookup CountryLookup) func(http.Handler) http.Handler {
	supportedSet := make(map[string]struct{}, len(supported))
	for _, s := range supported {
		supportedSet[strings.ToLower(s)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := acceptedLanguage(r.Header.Get("Accept-Language"), supportedSet)
			if lang == "" {
				if country := resolveCountry(r, lookup); country != "" {
					if mapped, ok := countryLanguages[country]; ok {
						lang = mapped
					}
				}
			}
			if lang == "" {
				lang = defaultLang
			}
			ctx := context.WithValue(r.Context(), FallbackLanguageKey, lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FallbackLanguageFromContext returns the language hint stored by
// FallbackLanguage, or "" when the middleware did not run.
func FallbackLanguageFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(FallbackLanguageKey).(string); ok {
		return v
	}
	return ""
}

// acceptedLanguage returns the first Accept-Language entry whose primary
// subtag is a supported synthesis language.
func acceptedLanguage(header string, supported map[string]struct{}) string {
	for _, part := range strings.Split(header, ",") {
		token := strings.TrimSpace(strings.Split(part, ";")[0])
		if token == "" {
			continue
		}
		primary := strings.ToLower(token)
		if idx := strings.IndexAny(primary, "-_"); idx > 0 {
			primary = primary[:idx]
		}
		if _, ok := supported[primary]; ok {
			return primary
		}
	}
	return ""
}

func resolveCountry(r *http.Request, lookup CountryLookup) string {
	headerHints := []string{"X-Country-Code", "CF-IPCountry", "X-Appengine-Country"}
	for _, key := range headerHints {
		if val := strings.TrimSpace(r.Header.Get(key)); val != "" {
			return strings.ToUpper(val)
		}
	}
	if lookup != nil {
		if ip := ClientIP(r); ip != "" {
			if country, err := lookup(ip); err == nil && country != "" {
				return strings.ToUpper(country)
			}
		}
	}
	return ""
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
