package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"speechd/internal/domain"
	"speechd/internal/tts"
)

const openAIDefaultTimeout = 60 * time.Second

const (
	defaultOpenAIModel   = "tts-1"
	defaultOpenAIHDModel = "tts-1-hd"
)

// openAIVoices maps the service's Polly-style voice ids onto the OpenAI
// voice roster. Unknown ids fall back to alloy.
var openAIVoices = map[string]string{
	"Matthew":  "onyx",
	"Joanna":   "nova",
	"Conchita": "shimmer",
	"Lucia":    "nova",
	"Celine":   "shimmer",
	"Lea":      "nova",
	"Marlene":  "shimmer",
	"Vicki":    "nova",
	"Carla":    "shimmer",
	"Bianca":   "nova",
	"Ines":     "shimmer",
	"Camila":   "nova",
}

// OpenAIOptions configures NewOpenAIProvider.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAIProvider synthesizes speech through the OpenAI audio API.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type openAISpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// NewOpenAIProvider builds an OpenAI speech client.
func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIProvider{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: baseURL,
		client:  client,
	}, nil
}

// Synthesize calls POST /audio/speech and returns the raw audio bytes. OpenAI
// does not report a duration, so DurationSeconds stays zero.
func (p *OpenAIProvider) Synthesize(ctx context.Context, req tts.ProviderRequest) (*tts.ProviderResult, error) {
	model := defaultOpenAIModel
	if req.Quality == domain.QualityNeural {
		model = defaultOpenAIHDModel
	}
	voice := openAIVoices[req.VoiceID]
	if voice == "" {
		voice = "alloy"
	}
	payload := openAISpeechRequest{
		Model:          model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: req.Format,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, &tts.ProviderError{Err: fmt.Errorf("encode request: %w", err)}
	}

	endpoint := fmt.Sprintf("%s/audio/speech", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, &tts.ProviderError{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &tts.ProviderError{Transient: true, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, &tts.ProviderError{
			Transient: transientStatus(resp.StatusCode),
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("openai status %d", resp.StatusCode),
		}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &tts.ProviderError{Transient: true, Err: fmt.Errorf("read audio: %w", err)}
	}
	return &tts.ProviderResult{Audio: audio}, nil
}

func transientStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= 500
}
