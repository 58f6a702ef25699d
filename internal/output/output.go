package output

import (
	"fmt"
	"io"
	"os"

	"github.com/dshills/phiscrub/internal/deid"
	"github.com/dshills/phiscrub/internal/fhirdoc"
)

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *deid.Report) error
}

// Formats lists the accepted format names.
func Formats() []string {
	return []string{"text", "json", "markdown", "csv", "sarif"}
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "csv":
		return &CSVWriter{}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to the specified output (file path or stdout).
func WriteReport(report *deid.Report, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}
	return withDest(outPath, func(w io.Writer) error {
		return writer.Write(w, report)
	})
}

// WriteDocument writes the redacted bundle as indented JSON to outPath, or
// to stdout when outPath is empty or "-".
func WriteDocument(doc *fhirdoc.Node, outPath string) error {
	data, err := fhirdoc.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return withDest(outPath, func(w io.Writer) error {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing document: %w", err)
		}
		_, err := fmt.Fprintln(w)
		return err
	})
}

func withDest(outPath string, fn func(io.Writer) error) error {
	if outPath == "" || outPath == "-" {
		return fn(os.Stdout)
	}
	f, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
