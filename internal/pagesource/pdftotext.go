package pagesource

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/itsmostafa/pagetree/internal/pageindex"
)

// PdftotextSource extracts pages with poppler's pdftotext, one subprocess
// per page.
type PdftotextSource struct{}

func (PdftotextSource) Name() string { return Pdftotext }

func (PdftotextSource) Pages(ctx context.Context, path string) ([]pageindex.Page, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, &pageindex.InputError{Path: path, Err: fmt.Errorf("pdftotext not found: install poppler-utils (brew install poppler on macOS)")}
	}

	count, err := pageCount(path)
	if err != nil {
		return nil, err
	}

	texts := make([]string, count)
	for i := 0; i < count; i++ {
		text, err := extractPage(ctx, path, i+1)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &pageindex.InputError{Path: path, Err: fmt.Errorf("extracting page %d: %w", i+1, err)}
		}
		texts[i] = text
	}
	return finish(path, texts)
}

// pageCount returns the number of pages in a PDF.
func pageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &pageindex.InputError{Path: path, Err: err}
	}
	defer f.Close()

	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, &pageindex.InputError{Path: path, Err: fmt.Errorf("failed to get page count: %w", err)}
	}
	return n, nil
}

// extractPage extracts text from a single page of a PDF.
func extractPage(ctx context.Context, path string, pageNum int) (string, error) {
	page := strconv.Itoa(pageNum)
	cmd := exec.CommandContext(ctx, "pdftotext", "-f", page, "-l", page, "-layout", path, "-")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(output), nil
}
