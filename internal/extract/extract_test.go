package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestTextPlainFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte("some narrated text"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	var pages int
	text, err := Text(path, PageRange{}, func(page, chars int, skipped bool) {
		pages++
		if skipped {
			t.Fatalf("plain text page reported as skipped")
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "some narrated text" {
		t.Fatalf("unexpected text: %q", text)
	}
	if pages != 1 {
		t.Fatalf("expected 1 page callback, got %d", pages)
	}
}

func TestTextUnsupportedFormat(t *testing.T) {
	if _, err := Text("cover.png", PageRange{}, nil); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestTextMissingFile(t *testing.T) {
	if _, err := Text(filepath.Join(t.TempDir(), "missing.txt"), PageRange{}, nil); !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestTextCorruptPDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	if err := os.WriteFile(path, []byte("not a pdf at all"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Text(path, PageRange{}, nil); !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		in      string
		want    PageRange
		wantErr bool
	}{
		{"", PageRange{}, false},
		{"3", PageRange{Start: 3, End: 3}, false},
		{"1-5", PageRange{Start: 1, End: 5}, false},
		{" 2 - 4 ", PageRange{Start: 2, End: 4}, false},
		{"5-2", PageRange{}, true},
		{"0", PageRange{}, true},
		{"abc", PageRange{}, true},
	}
	for _, tt := range tests {
		got, err := ParsePageRange(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParsePageRange(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParsePageRange(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParsePageRange(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
