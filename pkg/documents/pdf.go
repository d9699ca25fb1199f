package documents

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MinBenchmarkTextLen is the shortest extracted text treated as readable by ExtractText.
const MinBenchmarkTextLen = 100

func openPDF(path string) (*os.File, *pdf.Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	f, r, err := openReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	return f, r, nil
}

// openReader guards against panics inside the PDF parser on malformed files.
func openReader(path string) (f *os.File, r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if f != nil {
				f.Close()
			}
			f, r, err = nil, nil, fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()
	return pdf.Open(path)
}

func pageText(r *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: pdf parser panic: %v", i, rec)
		}
	}()
	p := r.Page(i)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

// LoadPDF returns one Page per page carrying non-blank text.
func LoadPDF(path string, meta Meta) ([]Page, error) {
	f, r, err := openPDF(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if meta.Source == "" {
		meta.Source = path
	}
	if meta.Title == "" {
		meta.Title = filepath.Base(path)
	}

	var pages []Page
	for i := 1; i <= r.NumPage(); i++ {
		text, err := pageText(r, i)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Meta: meta, Number: i, Text: text})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s: no extractable text", ErrUnreadable, path)
	}
	return pages, nil
}

// JoinPages renders pages with "---PAGE n---" markers, the layout the
// benchmark prompts expect.
func JoinPages(pages []Page) string {
	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "\n---PAGE %d---\n", p.Number)
		b.WriteString(p.Text)
	}
	return b.String()
}

// ExtractText loads path and joins every page. Text shorter than
// MinBenchmarkTextLen is reported as unreadable.
func ExtractText(path string) (string, error) {
	pages, err := LoadPDF(path, Meta{})
	if err != nil {
		return "", err
	}
	text := JoinPages(pages)
	if len(strings.TrimSpace(text)) < MinBenchmarkTextLen {
		return "", fmt.Errorf("%w: %s: too little text", ErrUnreadable, path)
	}
	return text, nil
}
