package docs

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// CheckPDF verifies that data is a readable PDF with at least one page.
func CheckPDF(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty document")
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return fmt.Errorf("missing PDF header")
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("parse pdf: %w", err)
	}
	if reader.NumPage() < 1 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}
