package splitter

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

const (
	// CharsPerToken is the average characters per token used to estimate how
	// much text to drop.
	CharsPerToken = 3
	// MinChunkSize is the shortest output the trimmer will cut down to.
	MinChunkSize = 140
)

// Trimmer fits text into a token budget by keeping a structurally coherent
// prefix of it.
type Trimmer struct {
	Tokenizer Tokenizer
	Logger    *slog.Logger
}

// NewTrimmer creates a trimmer counting tokens with tokenizer.
func NewTrimmer(tokenizer Tokenizer) *Trimmer {
	return &Trimmer{Tokenizer: tokenizer, Logger: slog.Default()}
}

// Trim returns a prefix of text whose token count is at most budget.
// Text already within budget is returned unchanged. When the budget cannot be
// met without dropping below MinChunkSize characters, the first MinChunkSize
// characters are returned even though they exceed the budget.
func (t *Trimmer) Trim(text string, budget int) string {
	if text == "" {
		return ""
	}

	tokens := t.Tokenizer.CountTokens(text)
	if tokens <= budget {
		return text
	}

	runes := []rune(text)
	overflow := tokens - budget
	targetLen := len(runes) - overflow*CharsPerToken
	if targetLen < MinChunkSize {
		if len(runes) <= MinChunkSize {
			return text
		}
		return string(runes[:MinChunkSize])
	}

	chunk, err := NewRecursiveCharacterTextSplitter(targetLen, 0).FirstChunk(text)
	if err != nil && t.Logger != nil {
		t.Logger.Warn("Structural split failed, slicing instead", "target_len", targetLen, "error", err)
	}

	// The splitter strips surrounding whitespace from chunks; anchor the chunk
	// back onto text so the result stays a prefix.
	if chunk != "" && !strings.HasPrefix(text, chunk) {
		if idx := strings.Index(text, chunk); idx >= 0 {
			chunk = text[:idx+len(chunk)]
		} else {
			chunk = ""
		}
	}

	// No structural boundary near targetLen: force progress with a hard cut.
	if chunk == "" || utf8.RuneCountInString(chunk) >= len(runes) {
		return t.Trim(string(runes[:targetLen]), budget)
	}

	return t.Trim(chunk, budget)
}
