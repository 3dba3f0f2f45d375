package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor reads the text layer of a PDF page by page. Scanned pages
// without a text layer contribute nothing. MaxBytes bounds the collected
// text; zero means DefaultMaxTextBytes.
type PDFExtractor struct {
	MaxBytes int64
}

// Extract returns the text of every page, one page per line block.
func (x PDFExtractor) Extract(ctx context.Context, data []byte) (text string, err error) {
	// the parser panics on some malformed object graphs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	limit := x.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxTextBytes
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("not a PDF document: %w", err)
	}

	fonts := make(map[string]*pdf.Font)
	var out strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}

		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if int64(out.Len()+len(pageText)+1) > limit {
			return "", ErrTextTooLarge
		}
		out.WriteString(pageText)
		out.WriteByte('\n')
	}
	return out.String(), nil
}
