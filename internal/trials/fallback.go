package trials

import (
	"context"
	"fmt"
	"strings"
)

// Fallback builds alternative suggestions when a search comes back empty.
type Fallback struct {
	searcher Searcher
}

// NewFallback wraps a searcher for alternative lookups.
func NewFallback(searcher Searcher) *Fallback {
	return &Fallback{searcher: searcher}
}

// SuggestAlternatives produces a helpful reply when no trial matched the
// condition and location. Lookup failures degrade to the generic suggestion
// rather than surfacing an error to the user.
func (f *Fallback) SuggestAlternatives(ctx context.Context, condition, location string) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("I couldn't find a specific %s trial in %s.", condition, location))

	nearby, err := f.searcher.LocationsWithCondition(ctx, condition, location, 3)
	if err == nil && len(nearby) > 0 {
		parts = append(parts, fmt.Sprintf("\nHowever, I found %s trials in these nearby locations:", condition))
		for _, loc := range nearby {
			parts = append(parts, "• "+loc)
		}
		parts = append(parts, "\nWould you like to learn more about trials in any of these locations?")
		return strings.Join(parts, "\n")
	}

	available, err := f.searcher.ConditionsInLocation(ctx, location, 5)
	if err == nil && len(available) > 0 {
		parts = append(parts, fmt.Sprintf("\nIn %s, we currently have trials for:", location))
		for _, cond := range available {
			parts = append(parts, "• "+cond)
		}
		parts = append(parts, "\nWould you like to check your eligibility for any of these conditions?")
		return strings.Join(parts, "\n")
	}

	parts = append(parts, "\nWould you like me to search in a different location, or are you interested in trials for a different condition?")
	return strings.Join(parts, "\n")
}
