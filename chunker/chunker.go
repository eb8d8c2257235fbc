package chunker

import (
	"strings"

	"github.com/serline/ruleminer/rule_type"
)

const (
	DefaultTargetSize = 3000
	DefaultOverlap    = 200
)

// Chunk splits text into size-bounded segments on paragraph boundaries.
// Adjacent chunks share up to overlap characters of trailing context,
// cut at a word boundary. A single paragraph longer than targetSize is
// emitted whole, unsplit. The output is deterministic for a given
// input and parameters.
func Chunk(text string, targetSize, overlap int) []rule_type.Chunk {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > targetSize/2 {
		overlap = targetSize / 2
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) <= targetSize {
		return []rule_type.Chunk{{Text: trimmed, Ordinal: 0}}
	}

	var chunks []rule_type.Chunk
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, rule_type.Chunk{Text: current.String(), Ordinal: len(chunks)})
			current.Reset()
		}
	}

	for _, para := range splitParagraphs(trimmed) {
		// An oversized paragraph cannot be packed; it becomes its
		// own chunk, exceeding targetSize as an accepted edge case.
		if len(para) > targetSize {
			flush()
			chunks = append(chunks, rule_type.Chunk{Text: para, Ordinal: len(chunks)})
			continue
		}

		if current.Len() > 0 && current.Len()+2+len(para) > targetSize {
			flush()
		}

		if current.Len() == 0 {
			// Seed the new chunk with trailing context from the
			// previous one when it still fits the budget.
			if tail := overlapTail(chunks, overlap); tail != "" && len(tail)+2+len(para) <= targetSize {
				current.WriteString(tail)
				current.WriteString("\n\n")
			}
			current.WriteString(para)
			continue
		}

		current.WriteString("\n\n")
		current.WriteString(para)
	}
	flush()

	return chunks
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n\n")
	paragraphs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// overlapTail returns the last overlap characters of the most recent
// chunk, advanced to the next word boundary so the overlap never
// starts mid-word.
func overlapTail(chunks []rule_type.Chunk, overlap int) string {
	if overlap == 0 || len(chunks) == 0 {
		return ""
	}
	prev := chunks[len(chunks)-1].Text
	if len(prev) <= overlap {
		return prev
	}
	tail := prev[len(prev)-overlap:]
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 {
		return strings.TrimSpace(tail[idx+1:])
	}
	return ""
}
