package drops

import (
	"errors"
	"fmt"
	"math"
)

// ValidationError reports malformed drop data. Node and Item are empty when
// the problem is not tied to one of them.
type ValidationError struct {
	Node   string
	Item   string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Node != "" && e.Item != "":
		return fmt.Sprintf("invalid drop data at %s (%s): %s", e.Node, e.Item, e.Reason)
	case e.Node != "":
		return fmt.Sprintf("invalid drop data at %s: %s", e.Node, e.Reason)
	default:
		return "invalid drop data: " + e.Reason
	}
}

// ValidateProbability checks a single drop probability. It is exported so the
// engine can guard its division without re-validating the whole dataset.
func ValidateProbability(node, item string, p float64) error {
	switch {
	case math.IsNaN(p) || math.IsInf(p, 0):
		return &ValidationError{Node: node, Item: item, Reason: "probability is not a finite number"}
	case p <= 0:
		return &ValidationError{Node: node, Item: item, Reason: fmt.Sprintf("probability %v is not positive", p)}
	case p > 1:
		return &ValidationError{Node: node, Item: item, Reason: fmt.Sprintf("probability %v exceeds 1", p)}
	}
	return nil
}

// Validate checks every section, quest and drop. All problems are returned
// joined; use errors.As to get at the first *ValidationError.
func (d *Dataset) Validate() error {
	var errs []error
	seen := make(map[string]bool)

	for _, s := range d.Sections {
		if s.Name == "" {
			errs = append(errs, &ValidationError{Reason: "section with empty name"})
		}
		for _, q := range s.Quests {
			id := NodeID(s.Name, q.Name)
			if q.Name == "" {
				errs = append(errs, &ValidationError{Node: id, Reason: "quest with empty name"})
			}
			if seen[id] {
				errs = append(errs, &ValidationError{Node: id, Reason: "duplicate node"})
			}
			seen[id] = true

			if q.AP <= 0 {
				errs = append(errs, &ValidationError{Node: id, Reason: fmt.Sprintf("AP cost %d is not positive", q.AP)})
			}
			for _, item := range q.Drops.SortedItems() {
				if item == "" {
					errs = append(errs, &ValidationError{Node: id, Reason: "drop with empty item name"})
					continue
				}
				if err := ValidateProbability(id, item, q.Drops[item]); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}

	return errors.Join(errs...)
}
