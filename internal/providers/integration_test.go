//go:build integration

package providers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dshills/phiscrub/internal/redact"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// liveProvider defines a live classifier to test.
type liveProvider struct {
	name   string
	envVar string // env var that must be set
}

var liveProviders = []liveProvider{
	{"http", "PHISCRUB_CLASSIFIER_URL"},
	{"huggingface", "HF_TOKEN"},
}

func skipIfEnvMissing(t *testing.T, envVar string) {
	t.Helper()
	if os.Getenv(envVar) == "" {
		t.Skipf("skipping: %s not set", envVar)
	}
}

func integrationContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)
	return ctx
}

// testNote is a synthetic clinical sentence with a name, a city and a phone
// number that any reasonable de-identification model labels.
const testNote = "Jon Smith of Boston, MA called from 555-123-4567 on 2021-03-04."

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestIntegration_Classify(t *testing.T) {
	for _, lp := range liveProviders {
		t.Run(lp.name, func(t *testing.T) {
			skipIfEnvMissing(t, lp.envVar)

			c, err := New(lp.name, Options{})
			if err != nil {
				t.Fatalf("New(%s) error: %v", lp.name, err)
			}
			spans, err := c.Classify(integrationContext(t), testNote)
			if err != nil {
				t.Fatalf("Classify error: %v", err)
			}
			if len(spans) == 0 {
				t.Fatal("expected at least one span")
			}
			for _, s := range spans {
				if s.Start < 0 || s.End > len([]rune(testNote)) || s.Start > s.End {
					t.Errorf("span offsets out of range: %+v", s)
				}
			}

			merged := redact.ModelCandidates(spans)
			t.Logf("%s: %d raw spans, %d candidates", lp.name, len(spans), len(merged))
		})
	}
}

func TestIntegration_ClassifyBatch(t *testing.T) {
	for _, lp := range liveProviders {
		t.Run(lp.name, func(t *testing.T) {
			skipIfEnvMissing(t, lp.envVar)

			c, err := New(lp.name, Options{})
			if err != nil {
				t.Fatalf("New(%s) error: %v", lp.name, err)
			}
			bc, ok := c.(BatchClassifier)
			if !ok {
				t.Skipf("%s does not batch", lp.name)
			}
			out, err := bc.ClassifyBatch(integrationContext(t), []string{testNote, "final"})
			if err != nil {
				t.Fatalf("ClassifyBatch error: %v", err)
			}
			if len(out) != 2 {
				t.Fatalf("got %d results, want 2", len(out))
			}
		})
	}
}
