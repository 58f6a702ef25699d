// Package providers implements the Classifier interface for each supported
// token-classification service.
//
// Supported providers: an HTTP sidecar speaking a small JSON protocol
// (POST /classify and /classify/batch), the Hugging Face Inference API, and
// "none" for running on keypath and regex rules alone.
//
// All HTTP providers share a retry helper with exponential back-off for rate
// limits and 5xx responses; authentication failures are never retried and can
// be detected with [IsAuthError]. HTTP clients are plain fields so tests can
// point them at httptest servers.
//
// [Cached] wraps any classifier with a [cache.Store]. It stores span offsets,
// labels and scores only and rebuilds span text from the classified value on
// a hit.
//
// Use [New] to obtain a Classifier by provider name.
package providers
