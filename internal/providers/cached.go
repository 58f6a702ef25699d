package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/phiscrub/internal/cache"
	"github.com/dshills/phiscrub/internal/redact"
)

// Cached wraps a classifier with a cache.Store.
type Cached struct {
	inner Classifier
	store cache.Store
	model string
}

// NewCached returns inner unchanged when store is nil or disabled.
func NewCached(inner Classifier, store cache.Store, model string) Classifier {
	if store == nil || !store.Enabled() {
		return inner
	}
	return &Cached{inner: inner, store: store, model: model}
}

func (c *Cached) Name() string { return c.inner.Name() }

// cachedSpan is what reaches the store: offsets, never text.
type cachedSpan struct {
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
	Start   int     `json:"start"`
	End     int     `json:"end"`
	Subword bool    `json:"subword,omitempty"`
}

func (c *Cached) key(text string) string {
	return cache.BuildCacheKey(c.inner.Name(), c.model, text)
}

func (c *Cached) Classify(ctx context.Context, text string) ([]redact.Span, error) {
	if spans, ok := c.lookup(ctx, text); ok {
		return spans, nil
	}
	spans, err := c.inner.Classify(ctx, text)
	if err != nil {
		return nil, err
	}
	return c.remember(ctx, text, spans), nil
}

// ClassifyBatch serves hits from the store and sends only the misses to the
// inner classifier, in one batch when it supports batching.
func (c *Cached) ClassifyBatch(ctx context.Context, texts []string) ([][]redact.Span, error) {
	out := make([][]redact.Span, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if spans, ok := c.lookup(ctx, t); ok {
			out[i] = spans
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	var fresh [][]redact.Span
	if bc, ok := c.inner.(BatchClassifier); ok {
		var err error
		fresh, err = bc.ClassifyBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		if len(fresh) != len(missTexts) {
			return nil, fmt.Errorf("batch response has %d results for %d inputs", len(fresh), len(missTexts))
		}
	} else {
		fresh = make([][]redact.Span, len(missTexts))
		for i, t := range missTexts {
			spans, err := c.inner.Classify(ctx, t)
			if err != nil {
				return nil, err
			}
			fresh[i] = spans
		}
	}

	for j, i := range missIdx {
		out[i] = c.remember(ctx, missTexts[j], fresh[j])
	}
	return out, nil
}

func (c *Cached) lookup(ctx context.Context, text string) ([]redact.Span, bool) {
	raw, ok := c.store.Get(ctx, c.key(text))
	if !ok {
		return nil, false
	}
	var stored []cachedSpan
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, false
	}
	return rebuild(text, stored)
}

// remember stores spans best-effort and returns them as a later hit would
// see them: span text is cut from text by offset, so a warm and a cold
// cache produce the same redaction. Spans whose offsets do not fit text
// are returned unchanged and not stored.
func (c *Cached) remember(ctx context.Context, text string, spans []redact.Span) []redact.Span {
	runeLen := len([]rune(text))
	stored := make([]cachedSpan, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 || s.End > runeLen || s.Start > s.End {
			return spans
		}
		stored = append(stored, cachedSpan{
			Label:   s.Label,
			Score:   s.Score,
			Start:   s.Start,
			End:     s.End,
			Subword: strings.HasPrefix(s.Text, "##"),
		})
	}
	out, _ := rebuild(text, stored)
	if data, err := json.Marshal(stored); err == nil {
		_ = c.store.Put(ctx, c.key(text), string(data))
	}
	return out
}

func rebuild(text string, stored []cachedSpan) ([]redact.Span, bool) {
	runes := []rune(text)
	spans := make([]redact.Span, 0, len(stored))
	for _, s := range stored {
		if s.Start < 0 || s.End > len(runes) || s.Start > s.End {
			return nil, false
		}
		word := string(runes[s.Start:s.End])
		if s.Subword {
			word = "##" + word
		}
		spans = append(spans, redact.Span{Text: word, Label: s.Label, Score: s.Score, Start: s.Start, End: s.End})
	}
	return spans, true
}
