// Package output formats de-identification reports and writes redacted
// documents.
//
// Five report formats are supported:
//   - text     human-readable terminal output (default)
//   - json     full structured JSON report
//   - markdown summary table with collapsible sections per label
//   - csv      the bare audit table
//   - sarif    SARIF v2.1.0; keypaths only, never original values
//
// Use [GetWriter] to obtain a [Writer] for a given format string, or
// [WriteReport] to write straight to a file or stdout. [WriteDocument]
// writes the redacted bundle as JSON.
package output
