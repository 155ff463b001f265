// Package pagesource turns document files into page sequences.
package pagesource

import (
	"context"
	"fmt"
	"os"

	"github.com/itsmostafa/pagetree/internal/pageindex"
)

// Source extracts the text of each page of a document, in order.
type Source interface {
	Pages(ctx context.Context, path string) ([]pageindex.Page, error)
	Name() string
}

const (
	Native    = "native"
	Pdftotext = "pdftotext"
	Text      = "text"
)

// Names lists the available backends.
var Names = []string{Native, Pdftotext, Text}

// New returns the backend with the given name. An empty name selects the
// native PDF reader.
func New(name string) (Source, error) {
	switch name {
	case "", Native:
		return NativeSource{}, nil
	case Pdftotext:
		return PdftotextSource{}, nil
	case Text:
		return TextSource{}, nil
	}
	return nil, &pageindex.InputError{Path: name, Err: fmt.Errorf("unknown page source %q (want one of %v)", name, Names)}
}

// checkFile fails with an *InputError when path is not a readable file.
func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &pageindex.InputError{Path: path, Err: err}
	}
	if info.IsDir() {
		return &pageindex.InputError{Path: path, Err: fmt.Errorf("is a directory")}
	}
	return nil
}

// finish wraps texts as pages and rejects documents without any.
func finish(path string, texts []string) ([]pageindex.Page, error) {
	if len(texts) == 0 {
		return nil, &pageindex.InputError{Path: path, Err: pageindex.ErrNoPages}
	}
	return pageindex.NewPages(texts), nil
}
