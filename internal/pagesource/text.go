package pagesource

import (
	"context"
	"os"
	"strings"

	"github.com/itsmostafa/pagetree/internal/pageindex"
)

// TextSource reads plain text files whose pages are separated by form
// feeds. A file without form feeds is a single page.
type TextSource struct{}

func (TextSource) Name() string { return Text }

func (TextSource) Pages(_ context.Context, path string) ([]pageindex.Page, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &pageindex.InputError{Path: path, Err: err}
	}
	return finish(path, SplitPages(string(data)))
}

// SplitPages splits text on form feeds. A trailing form feed does not start
// an extra page, and empty input has no pages.
func SplitPages(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\f"), "\f")
}
