package providers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dshills/phiscrub/internal/redact"
)

const (
	huggingFaceAPIURL   = "https://api-inference.huggingface.co"
	defaultHFModel      = "obi/deid_roberta_i2b2"
	aggregationStrategy = "simple"
)

// HuggingFace calls a token-classification model on the Hugging Face
// Inference API.
type HuggingFace struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewHuggingFace creates a Hugging Face provider. The token comes from opts
// or HF_TOKEN.
func NewHuggingFace(opts Options) (*HuggingFace, error) {
	key := opts.APIKey
	if key == "" {
		key = os.Getenv("HF_TOKEN")
	}
	if key == "" {
		return nil, fmt.Errorf("HF_TOKEN environment variable is not set")
	}
	model := opts.Model
	if model == "" {
		model = defaultHFModel
	}
	baseURL := opts.URL
	if baseURL == "" {
		baseURL = huggingFaceAPIURL
	}
	return &HuggingFace{
		apiKey:  key,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeoutOr(opts.Timeout, 120*time.Second)},
	}, nil
}

func (h *HuggingFace) Name() string { return "huggingface" }

type hfRequest struct {
	Inputs     any          `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

type hfParameters struct {
	AggregationStrategy string `json:"aggregation_strategy"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

func (h *HuggingFace) request(inputs any) hfRequest {
	return hfRequest{
		Inputs:     inputs,
		Parameters: hfParameters{AggregationStrategy: aggregationStrategy},
		Options:    hfOptions{WaitForModel: true},
	}
}

func (h *HuggingFace) endpoint() string {
	return h.baseURL + "/models/" + h.model
}

func (h *HuggingFace) headers() http.Header {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+h.apiKey)
	return hdr
}

func (h *HuggingFace) Classify(ctx context.Context, text string) ([]redact.Span, error) {
	body, err := postJSON(ctx, h.client, h.endpoint(), h.headers(), h.request(text))
	if err != nil {
		return nil, err
	}
	return decodeSpans(body)
}

func (h *HuggingFace) ClassifyBatch(ctx context.Context, texts []string) ([][]redact.Span, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := postJSON(ctx, h.client, h.endpoint(), h.headers(), h.request(texts))
	if err != nil {
		return nil, err
	}
	out, err := decodeBatch(body)
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("batch response has %d results for %d inputs", len(out), len(texts))
	}
	return out, nil
}
