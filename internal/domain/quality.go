package domain

import (
	"fmt"
	"strings"
)

// Quality enumerates synthesis quality tiers.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityNeural   Quality = "neural"
)

// ParseQuality resolves a caller-supplied quality string.
func ParseQuality(s string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case QualityStandard, QualityNeural:
		return q, nil
	}
	return "", fmt.Errorf("unknown quality %q: %w", s, ErrInvalidInput)
}
