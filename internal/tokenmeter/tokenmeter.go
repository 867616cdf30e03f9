// Package tokenmeter maps between character text and token counts for a
// fixed tokenizer, and truncates text to a hard token budget.
package tokenmeter

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Meter counts and truncates text under a fixed tokenizer. Implementations
// must be safe for concurrent use.
type Meter interface {
	Count(text string) int
	TruncateTo(text string, maxTokens int) string
}

// cl100kMeter backs Meter with tiktoken-go's cl100k_base BPE encoding, the
// encoding shared by the GPT-3.5/4 family and a reasonable stand-in whenever
// the exact target model's tokenizer isn't pinned down.
type cl100kMeter struct {
	enc *tiktoken.Tiktoken
}

var (
	defaultOnce  sync.Once
	defaultMeter Meter
	defaultErr   error
)

// Default returns the shared cl100k_base meter, building it once. If the
// encoder can't be constructed (e.g. no bundled ranks available), it falls
// back to a heuristic meter so callers never fail on token counting alone.
func Default() Meter {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			defaultErr = err
			defaultMeter = heuristicMeter{}
			return
		}
		defaultMeter = &cl100kMeter{enc: enc}
	})
	return defaultMeter
}

// Err reports the error, if any, encountered building the default encoder.
// Callers that need to know whether they're on the heuristic fallback can
// check this after calling Default().
func Err() error { return defaultErr }

func (m *cl100kMeter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(m.enc.Encode(text, nil, nil))
}

// TruncateTo returns the longest prefix of text whose token count does not
// exceed maxTokens. If text already fits, it is returned byte-identical.
func (m *cl100kMeter) TruncateTo(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	toks := m.enc.Encode(text, nil, nil)
	if len(toks) <= maxTokens {
		return text
	}
	// Binary search the largest byte prefix of text whose re-encoded token
	// count fits, since token boundaries don't align with byte offsets.
	lo, hi := 0, len(text)
	best := ""
	for lo <= hi {
		mid := (lo + hi) / 2
		prefix := safeUTF8Prefix(text, mid)
		if m.Count(prefix) <= maxTokens {
			best = prefix
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

// safeUTF8Prefix returns the prefix of s of length at most n bytes, pulled
// back to the nearest rune boundary so it never splits a multi-byte rune.
func safeUTF8Prefix(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n < 0 {
		n = 0
	}
	for n > 0 && isUTF8Continuation(s[n]) {
		n--
	}
	return s[:n]
}

func isUTF8Continuation(b byte) bool { return b&0xC0 == 0x80 }

// heuristicMeter is a last-resort fallback (roughly 4 characters per token)
// used only if the bundled BPE ranks can't be loaded.
type heuristicMeter struct{}

func (heuristicMeter) Count(text string) int {
	if text == "" {
		return 0
	}
	n := len([]rune(text)) / 4
	if n == 0 {
		n = 1
	}
	return n
}

func (h heuristicMeter) TruncateTo(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if h.Count(text) <= maxTokens {
		return text
	}
	runes := []rune(text)
	maxChars := maxTokens * 4
	if maxChars > len(runes) {
		maxChars = len(runes)
	}
	return string(runes[:maxChars])
}
