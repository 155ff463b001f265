package pagesource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsmostafa/pagetree/internal/pageindex"
)

func TestNew(t *testing.T) {
	for _, name := range []string{"", Native, Pdftotext, Text} {
		src, err := New(name)
		require.NoError(t, err, name)
		if name == "" {
			assert.Equal(t, Native, src.Name())
		} else {
			assert.Equal(t, name, src.Name())
		}
	}

	_, err := New("ocr")
	var inputErr *pageindex.InputError
	assert.ErrorAs(t, err, &inputErr)
}

func TestSplitPages(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"blank", "  \n", nil},
		{"single", "one page", []string{"one page"}},
		{"three", "a\fb\fc", []string{"a", "b", "c"}},
		{"trailing feed", "a\fb\f", []string{"a", "b"}},
		{"empty middle page", "a\f\fc", []string{"a", "", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitPages(tt.in))
		})
	}
}

func TestTextSourcePages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("Intro\fChapter 1\fChapter 2"), 0o644))

	pages, err := TextSource{}.Pages(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i+1, p.Index)
		assert.Positive(t, p.TokenCount)
	}
	assert.Equal(t, "Chapter 1", pages[1].Text)
}

func TestTextSourceErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing.txt")},
		{"directory", dir},
		{"no pages", empty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TextSource{}.Pages(context.Background(), tt.path)
			var inputErr *pageindex.InputError
			require.ErrorAs(t, err, &inputErr)
		})
	}

	_, err := TextSource{}.Pages(context.Background(), empty)
	assert.True(t, errors.Is(err, pageindex.ErrNoPages))
}

func TestNativeSourceMissingFile(t *testing.T) {
	_, err := NativeSource{}.Pages(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	var inputErr *pageindex.InputError
	assert.ErrorAs(t, err, &inputErr)
}

func TestNativeSourceNotPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o644))

	_, err := NativeSource{}.Pages(context.Background(), path)
	var inputErr *pageindex.InputError
	assert.ErrorAs(t, err, &inputErr)
}
