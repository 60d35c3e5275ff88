// Package retrieval queries a knowledge base for passages and turns them into
// a grounding instruction for the model.
package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// Passage is one ranked text chunk returned by a knowledge base.
type Passage struct {
	Text   string
	Score  float64
	Source string
}

// KnowledgeBase is a retrieval oracle. Passages are returned best first.
type KnowledgeBase interface {
	Retrieve(ctx context.Context, knowledgeBaseID, query string) ([]Passage, error)
	Name() string
}

const groundingPreamble = `You are a precise internal information assistant. Answer the user's question using only the reference material below.

## Answer rules
1. If the material contains the answer: extract the relevant information accurately and answer concisely.
2. If the material does not contain the answer: say explicitly "Sorry, no relevant information was found in the reference material." Do not guess.

`

// NormalizeWhitespace collapses tabs, newlines and runs of spaces.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// BuildGroundingInstruction renders passages as numbered documents inside a
// reference block, preceded by the answer rules. It returns "" when no
// passage has any text.
func BuildGroundingInstruction(passages []Passage) string {
	var ctxBlock strings.Builder
	n := 0
	for _, p := range passages {
		text := NormalizeWhitespace(p.Text)
		if text == "" {
			continue
		}
		n++
		fmt.Fprintf(&ctxBlock, "<document%d>\n%s\n</document%d>\n", n, text, n)
	}
	if n == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(groundingPreamble)
	b.WriteString("<reference_material>\n")
	b.WriteString(ctxBlock.String())
	b.WriteString("</reference_material>\n")
	return b.String()
}
