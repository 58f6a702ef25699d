package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dshills/phiscrub/internal/redact"
)

const defaultSidecarURL = "http://localhost:8001"

// HTTP talks to a token-classification sidecar.
//
//	POST /classify        {"text": "..."}      -> [span...] or {"spans": [span...]}
//	POST /classify/batch  {"texts": ["..."]}   -> [[span...]...] or {"results": [[span...]...]}
//
// where span is {"word", "entity_group", "score", "start", "end"}.
type HTTP struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

// NewHTTP creates a sidecar client. The URL comes from opts or
// PHISCRUB_CLASSIFIER_URL; an optional bearer token from opts or
// PHISCRUB_CLASSIFIER_TOKEN.
func NewHTTP(opts Options) (*HTTP, error) {
	baseURL := opts.URL
	if baseURL == "" {
		baseURL = os.Getenv("PHISCRUB_CLASSIFIER_URL")
	}
	if baseURL == "" {
		baseURL = defaultSidecarURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/classify")

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("PHISCRUB_CLASSIFIER_TOKEN")
	}

	return &HTTP{
		baseURL: baseURL,
		model:   opts.Model,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeoutOr(opts.Timeout, 30*time.Second)},
	}, nil
}

func (h *HTTP) Name() string { return "http" }

type classifyRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type classifyBatchRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

func (h *HTTP) Classify(ctx context.Context, text string) ([]redact.Span, error) {
	body, err := postJSON(ctx, h.client, h.baseURL+"/classify", h.headers(), classifyRequest{Text: text, Model: h.model})
	if err != nil {
		return nil, err
	}
	return decodeSpans(body)
}

func (h *HTTP) ClassifyBatch(ctx context.Context, texts []string) ([][]redact.Span, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := postJSON(ctx, h.client, h.baseURL+"/classify/batch", h.headers(), classifyBatchRequest{Texts: texts, Model: h.model})
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

func (h *HTTP) headers() http.Header {
	hdr := http.Header{}
	if h.apiKey != "" {
		hdr.Set("Authorization", "Bearer "+h.apiKey)
	}
	return hdr
}

// postJSON sends payload with retries and returns the body of a 200 response.
func postJSON(ctx context.Context, client *http.Client, url string, hdr http.Header, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var out []byte
	err = retryWithBackoff(ctx, 3, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range hdr {
			req.Header[k] = v
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return &rateLimitError{}
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &authError{message: string(body)}
		case resp.StatusCode >= 500:
			return &serverError{statusCode: resp.StatusCode, body: string(body)}
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
		}
		out = body
		return nil
	})
	return out, err
}

type wireSpan struct {
	Word        string  `json:"word"`
	EntityGroup string  `json:"entity_group"`
	Entity      string  `json:"entity"`
	Score       float64 `json:"score"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
}

func (w wireSpan) span() redact.Span {
	label := w.EntityGroup
	if label == "" {
		label = w.Entity
	}
	return redact.Span{Text: w.Word, Label: label, Score: w.Score, Start: w.Start, End: w.End}
}

func convert(ws []wireSpan) []redact.Span {
	out := make([]redact.Span, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.span())
	}
	return out
}

func decodeSpans(body []byte) ([]redact.Span, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var ws []wireSpan
		if err := json.Unmarshal(body, &ws); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		return convert(ws), nil
	}
	var env struct {
		Spans []wireSpan `json:"spans"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if env.Error != "" {
		return nil, fmt.Errorf("classifier error: %s", env.Error)
	}
	return convert(env.Spans), nil
}

func decodeBatch(body []byte) ([][]redact.Span, error) {
	body = bytes.TrimSpace(body)
	var rows [][]wireSpan
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
	} else {
		var env struct {
			Results [][]wireSpan `json:"results"`
			Error   string       `json:"error"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		if env.Error != "" {
			return nil, fmt.Errorf("classifier error: %s", env.Error)
		}
		rows = env.Results
	}
	out := make([][]redact.Span, len(rows))
	for i, r := range rows {
		out[i] = convert(r)
	}
	return out, nil
}
