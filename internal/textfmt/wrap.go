// Package textfmt reflows generated assistant text into short lines for
// narrow chat bubbles. It is a pure, stateless transformation.
package textfmt

import (
	"strings"
	"unicode/utf8"
)

// Width is the line budget in runes. Each word costs its length plus one
// separator, so a packed line holds at most Width-1 visible runes.
const Width = 40

// codeFence marks a paragraph that must never be rewrapped.
const codeFence = "```"

// Wrap splits text on blank-line paragraphs, greedily packs the words of
// every non-code paragraph onto lines within Width, and joins lines with
// "\n" and paragraphs with "\n\n".
//
// Words are never split, dropped, or reordered. A word longer than the
// budget gets a line of its own. Wrap is idempotent on its own output.
func Wrap(text string) string {
	return WrapWidth(text, Width)
}

// WrapWidth is Wrap with an explicit budget. A width <= 1 returns text
// unchanged.
func WrapWidth(text string, width int) string {
	if width <= 1 {
		return text
	}
	paragraphs := strings.Split(text, "\n\n")
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if strings.Contains(p, codeFence) {
			out = append(out, p)
			continue
		}
		out = append(out, strings.Join(packWords(strings.Fields(p), width), "\n"))
	}
	return strings.Join(out, "\n\n")
}

// packWords greedily fills lines so that sum(len(word)+1) <= width.
func packWords(words []string, width int) []string {
	var (
		lines []string
		cur   []string
		used  int
	)
	for _, w := range words {
		cost := utf8.RuneCountInString(w) + 1
		if len(cur) > 0 && used+cost > width {
			lines = append(lines, strings.Join(cur, " "))
			cur, used = cur[:0:0], 0
		}
		cur = append(cur, w)
		used += cost
	}
	if len(cur) > 0 {
		lines = append(lines, strings.Join(cur, " "))
	}
	return lines
}
