package trials

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a trial lookup matches nothing.
var ErrNotFound = errors.New("trials: not found")

// Trial is one searchable trial record with its primary site.
type Trial struct {
	ID               string
	Name             string
	Conditions       string
	SiteLocation     string
	InvestigatorName string
	BriefSummary     string
	Phase            string
	Status           string
}

// Searcher finds trials by condition and location. Implementations must be
// safe for concurrent use.
type Searcher interface {
	SearchByConditionAndLocation(ctx context.Context, condition, location string, limit int) ([]Trial, error)
	SearchByLocation(ctx context.Context, location string, limit int) ([]Trial, error)
	ConditionsInLocation(ctx context.Context, location string, limit int) ([]string, error)
	LocationsWithCondition(ctx context.Context, condition string, excludeLocation string, limit int) ([]string, error)
}
