package usecase

import (
	"sort"

	"studyrag/internal/domain"
)

// PackedSection is one document's share of a packed context.
type PackedSection struct {
	Filename  string
	Text      string
	Truncated bool
}

type PackedContext struct {
	BudgetChars int
	UsedChars   int
	Sections    []PackedSection
}

// PackDocuments fits the raw text of docs into budget runes. Every document
// gets an equal share; shares a short document leaves unused are handed to
// the longer ones. Sections keep the input order. budget <= 0 means no limit.
func PackDocuments(docs []domain.Document, budget int) PackedContext {
	packed := PackedContext{BudgetChars: budget}
	if len(docs) == 0 {
		return packed
	}

	lengths := make([]int, len(docs))
	for i, d := range docs {
		lengths[i] = len([]rune(d.RawText))
	}
	alloc := allocate(lengths, budget)

	for i, d := range docs {
		runes := []rune(d.RawText)
		section := PackedSection{Filename: d.Filename, Text: d.RawText}
		if alloc[i] < len(runes) {
			section.Text = string(runes[:alloc[i]])
			section.Truncated = true
		}
		if section.Text == "" {
			continue
		}
		packed.UsedChars += alloc[i]
		packed.Sections = append(packed.Sections, section)
	}
	return packed
}

// allocate splits budget across lengths, shortest first, so that no entry
// receives more than it needs and the remainder is shared equally.
func allocate(lengths []int, budget int) []int {
	alloc := make([]int, len(lengths))
	if budget <= 0 {
		copy(alloc, lengths)
		return alloc
	}

	order := make([]int, len(lengths))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return lengths[order[a]] < lengths[order[b]]
	})

	remaining := budget
	for n, idx := range order {
		share := remaining / (len(order) - n)
		if lengths[idx] < share {
			share = lengths[idx]
		}
		alloc[idx] = share
		remaining -= share
	}
	return alloc
}
