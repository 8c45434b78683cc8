package export

import (
	"fmt"
	"strings"
)

// Table is ordered tabular content handed to a Renderer.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Renderer encodes a Table into a downloadable document.
type Renderer interface {
	Render(data Table) ([]byte, error)
	ContentType() string
	Extension() string
}

// ForFormat returns the renderer for a format name. An empty format means CSV.
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return NewCSVExporter(), nil
	case "pdf":
		return NewPDFExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func validate(data Table, kind string) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", kind)
	}
	for i, row := range data.Rows {
		if len(row) != len(data.Headers) {
			return fmt.Errorf("%s row %d has %d cells, want %d", kind, i, len(row), len(data.Headers))
		}
	}
	return nil
}
