// Package sentinel defines the recognizable failure and pollution markers
// shared by the summarizer, store, and validator: a sentinel failure is a
// string embedded in an LLM reply indicating the provider failed even
// though the HTTP call itself succeeded (spec.md §7, glossary).
package sentinel

import (
	"regexp"
	"strings"
)

// ProviderError is the sentinel text a summarizer worker returns after
// exhausting its retry budget (spec.md §4.6).
const ProviderError = "Provider returned error"

// thinkBlock matches <think>...</think> control-thought blocks,
// multi-line and case-insensitive, as required by the sanitizer (spec.md §7).
var thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)

// leadingFence and trailingFence match a code-fence wrapper such as
// "```json\n...\n```" or a bare "```\n...\n```".
var leadingFence = regexp.MustCompile("^```[a-zA-Z0-9_-]*\\s*\n?")
var trailingFence = regexp.MustCompile("\\s*```\\s*$")

// headingMarks strips stray leading Markdown heading hashes a model
// sometimes prepends to a one-line summary.
var headingMarks = regexp.MustCompile(`^#{1,6}\s+`)

// HasProviderError reports whether text contains the provider-error
// sentinel.
func HasProviderError(text string) bool {
	return strings.Contains(text, ProviderError)
}

// HasControlTokens reports whether text contains a <think>...</think>
// control-thought block.
func HasControlTokens(text string) bool {
	return thinkBlock.MatchString(text)
}

// HasCodeFence reports whether text begins with a code-fence wrapper.
func HasCodeFence(text string) bool {
	return leadingFence.MatchString(strings.TrimSpace(text))
}

// Sanitize applies the fixed pipeline from spec.md §7 to summary text before
// persistence: strip control-thought blocks, strip code-fence wrappers,
// trim stray heading marks, trim whitespace.
func Sanitize(text string) string {
	out := thinkBlock.ReplaceAllString(text, "")
	out = strings.TrimSpace(out)
	out = leadingFence.ReplaceAllString(out, "")
	out = trailingFence.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	out = headingMarks.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	return out
}
