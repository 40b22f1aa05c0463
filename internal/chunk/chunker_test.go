package chunk

import (
	"errors"
	"strings"
	"testing"
)

func TestSplitSentenceBoundaries(t *testing.T) {
	chunks, err := Split("Hello world. This is a test.", 15)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0].Content != "Hello world." {
		t.Fatalf("unexpected first chunk: %q", chunks[0].Content)
	}
	if chunks[1].Content != "This is a test." {
		t.Fatalf("unexpected second chunk: %q", chunks[1].Content)
	}
	if chunks[0].Index != 0 || chunks[1].Index != 1 {
		t.Fatalf("chunk indices out of order: %d %d", chunks[0].Index, chunks[1].Index)
	}
}

func TestSplitRoundTrip(t *testing.T) {
	inputs := []string{
		"Hello world. This is a test.",
		"One.\n\nTwo paragraphs   with\tmessy whitespace. And a third sentence!",
		"No terminal punctuation at all just a stream of words going on and on",
		"Short. Short. Short. Short. Short. Short. Short. Short.",
	}
	for _, input := range inputs {
		for _, maxSize := range []int{10, 25, 80, 1000} {
			chunks, err := Split(input, maxSize)
			if err != nil {
				t.Fatalf("Split(%q, %d): %v", input, maxSize, err)
			}
			if got, want := Join(chunks), Normalize(input); got != want {
				t.Fatalf("round trip failed for maxSize=%d:\n got %q\nwant %q", maxSize, got, want)
			}
		}
	}
}

func TestSplitHardCutMarksContinuation(t *testing.T) {
	// "whitespace." is 11 runes, one past the limit, forcing a hard cut.
	input := "Two paragraphs with messy whitespace. And a third sentence!"
	chunks, err := Split(input, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks[0].Continues {
		t.Fatal("first chunk cannot continue a previous one")
	}
	var cut bool
	for _, c := range chunks[1:] {
		if c.Continues {
			cut = true
		}
	}
	if !cut {
		t.Fatalf("expected a continuation chunk from the hard cut: %v", chunks)
	}
	if got, want := Join(chunks), Normalize(input); got != want {
		t.Fatalf("hard cut broke reassembly:\n got %q\nwant %q", got, want)
	}
	if strings.Contains(Join(chunks), "whitespace .") {
		t.Fatal("space inserted inside a cut word")
	}
}

func TestSplitBounds(t *testing.T) {
	chunks, err := Split("The quick brown fox jumps over the lazy dog. Pack my box with five dozen liquor jugs.", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range chunks {
		if c.Content == "" {
			t.Fatalf("chunk %d is empty", c.Index)
		}
		if n := len([]rune(c.Content)); n > 20 {
			t.Fatalf("chunk %d exceeds max size: %d runes %q", c.Index, n, c.Content)
		}
	}
}

func TestSplitNeverCutsWords(t *testing.T) {
	input := "alpha bravo charlie delta echo foxtrot golf hotel"
	chunks, err := Split(input, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	words := map[string]bool{}
	for _, w := range strings.Fields(input) {
		words[w] = true
	}
	for _, c := range chunks {
		for _, w := range strings.Fields(c.Content) {
			if !words[w] {
				t.Fatalf("chunk contains a cut word: %q in %q", w, c.Content)
			}
		}
	}
}

func TestSplitOversizedWord(t *testing.T) {
	chunks, err := Split("supercalifragilisticexpialidocious", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range chunks {
		if n := len([]rune(c.Content)); n > 10 {
			t.Fatalf("oversized word not bounded: %d runes", n)
		}
	}
}

func TestSplitEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n\t", "\x0c"} {
		if _, err := Split(input, 100); !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("Split(%q) expected ErrEmptyInput, got %v", input, err)
		}
	}
}

func TestSplitRejectsNonPositiveSize(t *testing.T) {
	if _, err := Split("some text", 0); err == nil {
		t.Fatal("expected error for zero chunk size")
	}
}

func TestEstimateDuration(t *testing.T) {
	chunks, err := Split("one two three four five six seven eight.", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected single chunk, got %d", len(chunks))
	}
	if chunks[0].Estimate <= 0 {
		t.Fatalf("expected positive duration estimate, got %v", chunks[0].Estimate)
	}
}
