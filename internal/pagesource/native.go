package pagesource

import (
	"context"
	"fmt"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/itsmostafa/pagetree/internal/pageindex"
)

// NativeSource reads PDFs in-process.
type NativeSource struct{}

func (NativeSource) Name() string { return Native }

// Pages extracts plain text per page. Pages without content or whose text
// cannot be decoded are kept as empty pages so indices stay aligned with
// the physical document.
func (NativeSource) Pages(ctx context.Context, path string) ([]pageindex.Page, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, &pageindex.InputError{Path: path, Err: fmt.Errorf("open pdf: %w", err)}
	}
	defer f.Close()

	numPages := reader.NumPage()
	texts := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		texts[i-1] = text
	}
	return finish(path, texts)
}
