package deid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/phiscrub/internal/fhirdoc"
	"github.com/dshills/phiscrub/internal/keypath"
	"github.com/dshills/phiscrub/internal/providers"
	"github.com/dshills/phiscrub/internal/redact"
)

const toolName = "phiscrub"

// Engine de-identifies bundles. It is safe for concurrent use as long as
// its classifier is.
type Engine struct {
	classifier providers.Classifier
	policy     *Policy
	logger     zerolog.Logger
	batch      bool
	version    string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy extends the built-in skip and structural-key lists.
func WithPolicy(p *Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithBatch classifies all distinct leaf values of a document in one call
// when the classifier supports batching.
func WithBatch(on bool) Option {
	return func(e *Engine) { e.batch = on }
}

// WithVersion sets the version stamped into reports.
func WithVersion(v string) Option {
	return func(e *Engine) { e.version = v }
}

// New creates an Engine. A nil classifier runs the keypath and regex
// detectors only.
func New(c providers.Classifier, opts ...Option) *Engine {
	if c == nil {
		c = providers.None{}
	}
	e := &Engine{
		classifier: c,
		logger:     zerolog.Nop(),
		version:    "dev",
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ClassifierName names the classifier behind the engine.
func (e *Engine) ClassifierName() string {
	return e.classifier.Name()
}

// resourceWork is one qualifying resource and the leaves to evaluate in it.
type resourceWork struct {
	entry  int
	rtype  string
	leaves []keypath.Leaf
}

// Run de-identifies doc and returns the report. doc itself is never
// modified; the redacted copy is Report.Document. A document that is not a
// bundle yields a *fhirdoc.ParseError. When ctx is cancelled the run stops
// at the next entry boundary and returns ctx.Err() without output.
func (e *Engine) Run(ctx context.Context, doc *fhirdoc.Node) (*Report, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := bundleEntries(doc)
	if err != nil {
		return nil, err
	}

	var (
		work    []resourceWork
		summary Summary
	)
	for i, entry := range entries {
		res, err := entryResource(i, entry)
		if err != nil {
			return nil, err
		}
		if res == nil {
			summary.ResourcesSkipped++
			continue
		}
		rtype := resourceType(res)
		if e.policy.SkipsResource(rtype) {
			e.logger.Debug().Int("entry", i).Str("resourceType", rtype).Msg("skipping clinical resource")
			summary.ResourcesSkipped++
			continue
		}
		summary.ResourcesScanned++
		work = append(work, resourceWork{entry: i, rtype: rtype, leaves: e.collect(res, rtype)})
	}

	var modelDur time.Duration
	prefetched, err := e.prefetch(ctx, work, &modelDur)
	if err != nil {
		return nil, err
	}

	rw := keypath.NewRewriter(doc)
	var rows []AuditRow
	for _, w := range work {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		root := fmt.Sprintf("entry[%d].resource", w.entry)
		for _, leaf := range w.leaves {
			summary.LeavesEvaluated++

			spans, ok := prefetched[leaf.Value]
			if !ok {
				t := time.Now()
				spans, err = e.classifier.Classify(ctx, leaf.Value)
				modelDur += time.Since(t)
				if err != nil {
					summary.ModelFailures++
					e.logger.Warn().Err(err).Str("keypath", leaf.Path).Msg("classifier failed; using keypath and regex detectors")
					spans = nil
				}
			}

			d := redact.Evaluate(leaf.Path, leaf.Value, spans)
			if !d.Redacts() {
				continue
			}
			written := rw.Set(keypath.Reroot(leaf.Path, root), d.Redacted)
			e.logger.Debug().
				Str("keypath", d.Keypath).
				Str("label", string(d.Label)).
				Str("source", string(d.Source)).
				Int("written", written).
				Msg("redacted leaf")
			rows = append(rows, NewAuditRow(d))
		}
	}

	counts := ComputeSummary(rows)
	summary.Total = counts.Total
	summary.ByLabel = counts.ByLabel
	summary.BySource = counts.BySource
	summary.HighestLabel = counts.HighestLabel

	report := &Report{
		Tool:     toolName,
		Version:  e.version,
		RunID:    uuid.NewString(),
		Input:    InputInfo{Entries: len(entries)},
		Summary:  summary,
		Entities: rows,
		Timing: Timing{
			ModelMs: modelDur.Milliseconds(),
			TotalMs: time.Since(start).Milliseconds(),
		},
		Document: rw.Document(),
	}
	if report.Entities == nil {
		report.Entities = []AuditRow{}
	}

	e.logger.Info().
		Str("runId", report.RunID).
		Str("classifier", e.classifier.Name()).
		Int("entries", len(entries)).
		Int("scanned", summary.ResourcesScanned).
		Int("skipped", summary.ResourcesSkipped).
		Int("redacted", summary.Total).
		Int("modelFailures", summary.ModelFailures).
		Int64("totalMs", report.Timing.TotalMs).
		Msg("de-identification complete")
	return report, nil
}

// collect flattens one resource and keeps the string leaves that are worth
// evaluating. Values are trimmed.
func (e *Engine) collect(res *fhirdoc.Node, rtype string) []keypath.Leaf {
	var out []keypath.Leaf
	for leaf := range keypath.Flatten(res, rtype) {
		if leaf.Kind != fhirdoc.String {
			continue
		}
		v := strings.TrimSpace(leaf.Value)
		if v == "" || e.policy.IsStructural(keypath.Last(leaf.Path)) {
			continue
		}
		leaf.Value = v
		out = append(out, leaf)
	}
	return out
}

// prefetch classifies every distinct leaf value in one batch call. A failed
// batch is logged and leaves the map empty so that each leaf is classified
// on its own.
func (e *Engine) prefetch(ctx context.Context, work []resourceWork, dur *time.Duration) (map[string][]redact.Span, error) {
	out := map[string][]redact.Span{}
	bc, ok := e.classifier.(providers.BatchClassifier)
	if !e.batch || !ok {
		return out, nil
	}

	seen := map[string]bool{}
	var texts []string
	for _, w := range work {
		for _, leaf := range w.leaves {
			if !seen[leaf.Value] {
				seen[leaf.Value] = true
				texts = append(texts, leaf.Value)
			}
		}
	}
	if len(texts) == 0 {
		return out, nil
	}

	t := time.Now()
	results, err := bc.ClassifyBatch(ctx, texts)
	*dur += time.Since(t)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Warn().Err(err).Int("values", len(texts)).Msg("batch classification failed; classifying per leaf")
		return out, nil
	}
	if len(results) != len(texts) {
		e.logger.Warn().Int("values", len(texts)).Int("results", len(results)).Msg("batch result size mismatch; classifying per leaf")
		return out, nil
	}
	for i, t := range texts {
		out[t] = results[i]
	}
	return out, nil
}

func bundleEntries(doc *fhirdoc.Node) ([]*fhirdoc.Node, error) {
	if doc == nil || doc.Kind != fhirdoc.Object {
		kind := "nothing"
		if doc != nil {
			kind = doc.Kind.String()
		}
		return nil, fhirdoc.ShapeError("document is %s, want object", kind)
	}
	entry, ok := doc.Get("entry")
	if !ok || entry.Kind == fhirdoc.Null {
		return nil, nil
	}
	if entry.Kind != fhirdoc.Array {
		return nil, fhirdoc.ShapeError("entry is %s, want array", entry.Kind)
	}
	return entry.Items, nil
}

// entryResource returns the resource of entry i, or nil when it has none.
func entryResource(i int, entry *fhirdoc.Node) (*fhirdoc.Node, error) {
	if entry.Kind != fhirdoc.Object {
		return nil, fhirdoc.ShapeError("entry[%d] is %s, want object", i, entry.Kind)
	}
	res, ok := entry.Get("resource")
	if !ok || res.Kind == fhirdoc.Null {
		return nil, nil
	}
	if res.Kind != fhirdoc.Object {
		return nil, fhirdoc.ShapeError("entry[%d].resource is %s, want object", i, res.Kind)
	}
	if len(res.Fields) == 0 {
		return nil, nil
	}
	return res, nil
}

func resourceType(res *fhirdoc.Node) string {
	if rt, ok := res.Get("resourceType"); ok && rt.IsString() && rt.Str != "" {
		return rt.Str
	}
	return "Unknown"
}
