// Package velocity flags payment instruments used repeatedly within a batch.
package velocity

import "strings"

// HighVelocity is the flag value for a repeated card.
const HighVelocity = "High velocity"

// Counter flags card ids that appear at least MinRepeats times.
type Counter struct {
	MinRepeats int
}

// NewCounter creates a counter. minRepeats below 2 falls back to 2.
func NewCounter(minRepeats int) *Counter {
	if minRepeats < 2 {
		minRepeats = 2
	}
	return &Counter{MinRepeats: minRepeats}
}

// Flags returns one flag per input row, in input order. Rows with an empty
// card id are neither counted nor flagged.
func (c *Counter) Flags(cardIDs []string) []string {
	counts := make(map[string]int, len(cardIDs))
	for _, id := range cardIDs {
		if id = strings.TrimSpace(id); id != "" {
			counts[id]++
		}
	}

	flags := make([]string, len(cardIDs))
	for i, id := range cardIDs {
		id = strings.TrimSpace(id)
		if id != "" && counts[id] >= c.MinRepeats {
			flags[i] = HighVelocity
		}
	}
	return flags
}

// Flags applies the default threshold of two occurrences.
func Flags(cardIDs []string) []string {
	return NewCounter(2).Flags(cardIDs)
}
