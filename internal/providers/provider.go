package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/phiscrub/internal/redact"
)

// Classifier is the token-classification model service. Classify returns the
// model's raw spans for text; labels are not normalized and sub-word pieces
// keep their "##" marker.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]redact.Span, error)
	Name() string
}

// BatchClassifier classifies many values in one round trip. The result has
// one span list per input, in input order.
type BatchClassifier interface {
	Classifier
	ClassifyBatch(ctx context.Context, texts []string) ([][]redact.Span, error)
}

// Options configure a classifier. Empty fields fall back to provider
// defaults and environment variables.
type Options struct {
	URL     string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Names lists the supported provider names.
func Names() []string {
	return []string{"http", "huggingface", "none"}
}

// New creates a classifier by provider name.
func New(provider string, opts Options) (Classifier, error) {
	switch provider {
	case "http", "sidecar":
		return NewHTTP(opts)
	case "huggingface", "hf":
		hf, err := NewHuggingFace(opts)
		if err != nil {
			return nil, err
		}
		return hf, nil
	case "none", "":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// None is the classifier used when no model service is available. It never
// reports a span, leaving detection to the keypath and regex rules.
type None struct{}

func (None) Name() string { return "none" }

func (None) Classify(context.Context, string) ([]redact.Span, error) { return nil, nil }

func (None) ClassifyBatch(_ context.Context, texts []string) ([][]redact.Span, error) {
	return make([][]redact.Span, len(texts)), nil
}

func timeoutOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
