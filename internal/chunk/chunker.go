package chunk

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ErrEmptyInput is returned when a document contains no narratable text
// after normalization, e.g. an image-only PDF.
var ErrEmptyInput = errors.New("no narratable text after normalization")

// Chunk is a bounded segment of document text submitted to a speech engine
// as one synthesis unit. Continues marks a chunk that starts mid-word after
// a hard cut; Join attaches it to the previous chunk without a space.
type Chunk struct {
	Index     int
	Content   string
	Estimate  time.Duration
	Continues bool
}

// wordsPerMinute is the baseline used to estimate spoken duration.
const wordsPerMinute = 160

// Normalize applies the single up-front whitespace normalization: form feeds
// are dropped and every run of whitespace collapses to one space.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\x0c", " ")
	return strings.Join(strings.Fields(text), " ")
}

// Split divides text into ordered chunks of at most maxSize runes. Splits
// prefer sentence boundaries and fall back to whitespace; a word is only cut
// when it alone exceeds maxSize, and its trailing pieces are marked as
// continuations. Join reproduces the normalized input.
func Split(text string, maxSize int) ([]Chunk, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max chunk size must be positive, got %d", maxSize)
	}
	normalized := Normalize(text)
	if normalized == "" {
		return nil, ErrEmptyInput
	}

	var segments []segment
	for _, sentence := range splitSentences(normalized) {
		if runeLen(sentence) <= maxSize {
			segments = append(segments, segment{text: sentence})
			continue
		}
		segments = append(segments, splitWords(sentence, maxSize)...)
	}

	chunks := merge(segments, maxSize)
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Estimate = estimateDuration(chunks[i].Content)
	}
	return chunks, nil
}

// Join reassembles chunk contents into the normalized text they were split
// from: single spaces between chunks, nothing across a hard cut.
func Join(chunks []Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 && !c.Continues {
			b.WriteByte(' ')
		}
		b.WriteString(c.Content)
	}
	return b.String()
}

// segment is a splitting intermediate: a sentence, a word, or a piece of a
// hard-cut word. cont means it attaches to the previous segment without a
// space.
type segment struct {
	text string
	cont bool
}

// splitSentences cuts after '.', '!' or '?' when followed by a space.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// splitWords breaks an oversized sentence at whitespace. A single word longer
// than maxSize is hard-cut so the size bound always holds; every piece after
// the first continues the word.
func splitWords(sentence string, maxSize int) []segment {
	var segments []segment
	for _, word := range strings.Fields(sentence) {
		if runeLen(word) <= maxSize {
			segments = append(segments, segment{text: word})
			continue
		}
		runes := []rune(word)
		for start := 0; start < len(runes); start += maxSize {
			end := start + maxSize
			if end > len(runes) {
				end = len(runes)
			}
			segments = append(segments, segment{text: string(runes[start:end]), cont: start > 0})
		}
	}
	return segments
}

// merge packs segments greedily into chunks of at most maxSize runes. A
// space separates segments except before a continuation; a chunk opened by
// a continuation segment is itself marked as continuing.
func merge(segments []segment, maxSize int) []Chunk {
	var chunks []Chunk
	var current strings.Builder
	currentLen := 0
	continues := false

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, Chunk{Content: current.String(), Continues: continues})
			current.Reset()
			currentLen = 0
		}
	}

	for _, seg := range segments {
		segLen := runeLen(seg.text)
		sep := 0
		if currentLen > 0 && !seg.cont {
			sep = 1
		}
		if currentLen+sep+segLen > maxSize {
			flush()
			sep = 0
		}
		if currentLen == 0 {
			continues = seg.cont
		} else if sep == 1 {
			current.WriteByte(' ')
		}
		current.WriteString(seg.text)
		currentLen += sep + segLen
	}
	flush()
	return chunks
}

func estimateDuration(content string) time.Duration {
	words := len(strings.Fields(content))
	if words == 0 {
		return 0
	}
	return time.Duration(float64(words) / wordsPerMinute * float64(time.Minute))
}

func runeLen(s string) int {
	return len([]rune(s))
}
