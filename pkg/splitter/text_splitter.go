package splitter

import (
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// StructuralSeparators are tried in order: paragraph, line, sentence, word,
// then raw characters.
var StructuralSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// TextSplitter wraps the langchaingo text splitter
type TextSplitter struct {
	splitter textsplitter.TextSplitter
}

// NewRecursiveCharacterTextSplitter creates a new recursive character text splitter.
// Chunk sizes are measured in runes.
func NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithSeparators(StructuralSeparators),
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)

	return &TextSplitter{splitter: ts}
}

// SplitText splits text into chunks
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return ts.splitter.SplitText(text)
}

// FirstChunk returns the leading chunk of text, or "" if the splitter
// produced nothing.
func (ts *TextSplitter) FirstChunk(text string) (string, error) {
	chunks, err := ts.SplitText(text)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}
	return chunks[0], nil
}
