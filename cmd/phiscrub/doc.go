// Phiscrub is a CLI for removing protected health information from FHIR
// bundles.
//
// It combines a token-classification model with keypath heuristics and
// regex safeguards, rewrites every detected value to a [LABEL] token and
// emits an audit trail with deterministic exit codes suitable for CI gating.
//
// Usage:
//
//	phiscrub redact bundle.json --out clean.json --audit audit.csv --format csv
//	phiscrub scan bundle.yaml --format sarif   # report only
//	cat bundle.json | phiscrub redact -        # stdin to stdout
//	phiscrub serve --addr :8080                # HTTP API
//	phiscrub classifiers doctor                # check the model service
package main
