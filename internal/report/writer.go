package report

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/vulnbridge/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// WriteFile serializes the report as indented JSON. An empty path or "stdout"
// writes to standard output.
func WriteFile(outputPath string, rd *schemas.ReportData) error {
	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if err := Write(writer, rd); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// Write serializes the report to an arbitrary writer.
func Write(w io.Writer, rd *schemas.ReportData) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rd); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
