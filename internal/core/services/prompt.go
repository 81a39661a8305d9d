package services

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// fallbackPrompts are used when no PromptStore is set or a prompt fails to load.
var fallbackPrompts = map[string]string{
	driven.PromptGroundedSystem: "Answer using only the numbered passages supplied with the question. " +
		"Cite passages by number, e.g. [1]. If the passages do not contain the answer, say so.",
	driven.PromptUngroundedSystem: "There are no grounding documents for this conversation. " +
		"Say that your answer is not based on the student's materials, then answer from general knowledge.",
	driven.PromptRefusal: "This session has no documents attached, so I can't answer from your materials yet. " +
		"Add an indexed document to the session and ask again.",
}

// loadPrompt returns a prompt from store, or the built-in text.
func loadPrompt(store driven.PromptStore, name string) string {
	if store != nil {
		if p, err := store.Load(name); err == nil && strings.TrimSpace(p) != "" {
			return p
		}
	}
	return fallbackPrompts[name]
}

// passageLabel formats the citation label of the nth passage (1-based),
// e.g. "[2] notes.pdf (page 3)".
func passageLabel(n int, filename, locator string) string {
	if locator == "" {
		return fmt.Sprintf("[%d] %s", n, filename)
	}
	return fmt.Sprintf("[%d] %s (%s)", n, filename, locator)
}

// groundedPrompt lays out the retrieved passages followed by the question.
func groundedPrompt(question string, hits []domain.ScoredPassage, filenames map[string]string) string {
	var b strings.Builder
	b.WriteString("Passages:\n")
	for i, hit := range hits {
		b.WriteString("\n")
		b.WriteString(passageLabel(i+1, filenames[hit.DocumentID], hit.Locator))
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(hit.Content))
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// ungroundedPrompt states that no documents back the answer.
func ungroundedPrompt(question string) string {
	return "No grounding documents are attached to this conversation.\n\nQuestion: " + question
}

// sourceRefs converts search hits into the references reported to the caller.
func sourceRefs(hits []domain.ScoredPassage, filenames map[string]string) []domain.SourceRef {
	refs := make([]domain.SourceRef, 0, len(hits))
	for _, hit := range hits {
		refs = append(refs, domain.SourceRef{
			DocumentID: hit.DocumentID,
			Filename:   filenames[hit.DocumentID],
			Sequence:   hit.Sequence,
			Locator:    hit.Locator,
			Similarity: hit.Similarity,
		})
	}
	return refs
}
