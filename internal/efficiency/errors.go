package efficiency

import (
	"errors"
	"fmt"
)

// ConsistencyError means the efficiency pass met an included item that the
// APD pass never recorded, i.e. the two passes disagreed about inclusion.
type ConsistencyError struct {
	Node string
	Item string
}

func (e *ConsistencyError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("inconsistent passes: node %s has no efficiency", e.Node)
	}
	return fmt.Sprintf("inconsistent passes: %s at %s has no best APD", e.Item, e.Node)
}

// NoQualifyingLocationError means no node dropping Item reached the threshold.
type NoQualifyingLocationError struct {
	Item       string
	Threshold  float64
	Candidates int
}

func (e *NoQualifyingLocationError) Error() string {
	return fmt.Sprintf("no qualifying location for %s: %d candidate nodes, none with efficiency >= %g",
		e.Item, e.Candidates, e.Threshold)
}

// Best returns the recommended node for item, or a *NoQualifyingLocationError
// when the item drops somewhere but nothing passed the threshold. Items that
// never drop (or are excluded) give an error naming zero candidates.
func (r *Result) Best(item string) (LocationEfficiency, error) {
	if best, ok := r.BestLocation[item]; ok {
		return best, nil
	}
	return LocationEfficiency{}, r.noLocation(item)
}

// Ranked returns the ranked list for item, or the same error as Best.
func (r *Result) Ranked(item string) ([]LocationEfficiency, error) {
	if ranked, ok := r.RankedLocations[item]; ok && len(ranked) > 0 {
		return ranked, nil
	}
	return nil, r.noLocation(item)
}

// UnrankedErr joins a *NoQualifyingLocationError for every unranked item, or
// returns nil when every item has a location.
func (r *Result) UnrankedErr() error {
	errs := make([]error, 0, len(r.Unranked))
	for _, item := range r.Unranked {
		errs = append(errs, r.noLocation(item))
	}
	return errors.Join(errs...)
}

func (r *Result) noLocation(item string) error {
	return &NoQualifyingLocationError{
		Item:       item,
		Threshold:  r.Threshold,
		Candidates: len(r.Locations[item]),
	}
}
