// Package chunker segments raw document text into bounded passages
// suitable for embedding and retrieval.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// Passage is a single paragraph-sized span of a source document. ChunkID
// is sequential from 0 and scoped to the document; passages are immutable
// once created.
type Passage struct {
	Text    string `json:"text"`
	Source  string `json:"source"`
	ChunkID int    `json:"chunk_id"`
}

const (
	// Lines shorter than this are treated as navigation debris or
	// metadata and never contribute to a passage.
	minLineLength = 10

	// A passage only closes once its trimmed length exceeds this, so
	// that single stray sentences don't become chunks of their own.
	// Both limits count characters, not bytes.
	minPassageLength = 100
)

// Substrings that mark reader-app boilerplate, matched case-insensitively.
var boilerplateMarkers = []string{"min. read", "view original"}

var terminators = []string{".", "!", "?", `"`, "'"}

// Chunk splits text into paragraph passages. Lines are trimmed and
// space-joined into a running buffer; the buffer is emitted as a passage
// when a line ends with terminal punctuation and the buffer exceeds the
// minimum length, with one final flush at end of input. A document can
// legitimately produce zero passages.
func Chunk(text, source string) []Passage {
	var passages []Passage
	var buf strings.Builder

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)

		if line == "" || utf8.RuneCountInString(line) < minLineLength || isBoilerplate(line) {
			continue
		}

		buf.WriteString(" ")
		buf.WriteString(line)

		if endsWithTerminator(line) {
			if chunk := strings.TrimSpace(buf.String()); utf8.RuneCountInString(chunk) > minPassageLength {
				passages = append(passages, Passage{
					Text:    chunk,
					Source:  source,
					ChunkID: len(passages),
				})
				buf.Reset()
			}
		}
	}

	if chunk := strings.TrimSpace(buf.String()); utf8.RuneCountInString(chunk) > minPassageLength {
		passages = append(passages, Passage{
			Text:    chunk,
			Source:  source,
			ChunkID: len(passages),
		})
	}

	return passages
}

func isBoilerplate(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range boilerplateMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func endsWithTerminator(line string) bool {
	for _, t := range terminators {
		if strings.HasSuffix(line, t) {
			return true
		}
	}
	return false
}
