package similarity

import (
	"strings"
	"time"
)

// Entry is the slice of an extracted work item the detector needs to
// decide whether two items are the same and to fold them together.
type Entry struct {
	Title       string
	Description string
	Assignee    string
	DueDate     *time.Time
	Priority    string
	SourceQuote string
}

var priorityRank = map[string]int{
	"high":   3,
	"medium": 2,
	"low":    1,
}

// MergeDuplicates collapses entries whose titles score at or above the
// detector threshold. The survivor keeps the longest description, the
// first assignee that is set, the earliest due date, the highest
// priority among the group, and every distinct source quote.
func (d *Detector) MergeDuplicates(entries []Entry) []Entry {
	if len(entries) == 0 {
		return nil
	}

	absorbed := make(map[int]bool, len(entries))
	groups := make(map[int][]int)
	for i := range entries {
		if absorbed[i] {
			continue
		}
		for j := i + 1; j < len(entries); j++ {
			if absorbed[j] {
				continue
			}
			if Similarity(entries[i].Title, entries[j].Title) >= d.threshold() {
				absorbed[j] = true
				groups[i] = append(groups[i], j)
			}
		}
	}

	result := make([]Entry, 0, len(entries))
	for i, entry := range entries {
		if absorbed[i] {
			continue
		}
		members, ok := groups[i]
		if !ok {
			result = append(result, entry)
			continue
		}
		group := make([]Entry, 0, len(members)+1)
		group = append(group, entry)
		for _, j := range members {
			group = append(group, entries[j])
		}
		result = append(result, mergeGroup(group))
	}
	return result
}

func mergeGroup(group []Entry) Entry {
	merged := group[0]
	for _, candidate := range group[1:] {
		if len(candidate.Description) > len(merged.Description) {
			merged = candidate
		}
	}

	for _, entry := range group {
		if entry.Assignee != "" {
			merged.Assignee = entry.Assignee
			break
		}
	}

	for _, entry := range group {
		if entry.DueDate == nil {
			continue
		}
		if merged.DueDate == nil || entry.DueDate.Before(*merged.DueDate) {
			due := *entry.DueDate
			merged.DueDate = &due
		}
	}

	for _, entry := range group {
		if priorityRank[entry.Priority] > priorityRank[merged.Priority] {
			merged.Priority = entry.Priority
		}
	}

	var quotes []string
	seen := make(map[string]bool, len(group))
	for _, entry := range group {
		quote := strings.TrimSpace(entry.SourceQuote)
		if quote == "" || seen[quote] {
			continue
		}
		seen[quote] = true
		quotes = append(quotes, quote)
	}
	merged.SourceQuote = strings.Join(quotes, "\n---\n")

	return merged
}
