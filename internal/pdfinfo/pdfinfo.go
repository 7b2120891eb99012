// Package pdfinfo inspects uploaded book files.
package pdfinfo

import (
	"bytes"
	"fmt"

	pdf "github.com/ledongthuc/pdf"
)

// PageCount reads PDF bytes and returns the number of pages.
func PageCount(data []byte) (int, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("new pdf reader: %w", err)
	}
	return doc.NumPage(), nil
}
