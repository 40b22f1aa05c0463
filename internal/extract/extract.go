package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupportedFormat is returned for documents this tool cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtraction wraps failures while reading a recognized document,
	// e.g. a corrupt or encrypted file.
	ErrExtraction = errors.New("text extraction failed")
)

// PageRange selects a 1-based inclusive page window. Zero values mean
// "from the first page" / "to the last page".
type PageRange struct {
	Start int
	End   int
}

// ParsePageRange accepts "", "3" or "1-5".
func ParsePageRange(s string) (PageRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PageRange{}, nil
	}
	parts := strings.SplitN(s, "-", 2)
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || start < 1 {
		return PageRange{}, fmt.Errorf("invalid page range %q", s)
	}
	if len(parts) == 1 {
		return PageRange{Start: start, End: start}, nil
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || end < start {
		return PageRange{}, fmt.Errorf("invalid page range %q", s)
	}
	return PageRange{Start: start, End: end}, nil
}

// PageFunc observes per-page extraction progress.
type PageFunc func(page, chars int, skipped bool)

// Text pulls the raw text out of the document at path. PDF pages are joined
// with blank lines; plain text files pass through unchanged. The optional
// onPage callback receives one call per visited page.
func Text(path string, pages PageRange, onPage PageFunc) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return pdfText(path, pages, onPage)
	case ".txt", ".md":
		return plainText(path, onPage)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func pdfText(path string, pages PageRange, onPage PageFunc) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrExtraction, path, err)
	}
	defer f.Close()

	total := r.NumPage()
	start, end := 1, total
	if pages.Start > 0 {
		start = pages.Start
	}
	if pages.End > 0 && pages.End < end {
		end = pages.End
	}
	if start > total {
		return "", fmt.Errorf("%w: page %d beyond document end (%d pages)", ErrExtraction, start, total)
	}

	var parts []string
	for i := start; i <= end; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			notifyPage(onPage, i, 0, true)
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d of %s: %v", ErrExtraction, i, path, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			notifyPage(onPage, i, 0, true)
			continue
		}
		notifyPage(onPage, i, len(text), false)
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), nil
}

func plainText(path string, onPage PageFunc) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrExtraction, path, err)
	}
	text := string(data)
	notifyPage(onPage, 1, len(text), false)
	return text, nil
}

func notifyPage(onPage PageFunc, page, chars int, skipped bool) {
	if onPage != nil {
		onPage(page, chars, skipped)
	}
}
