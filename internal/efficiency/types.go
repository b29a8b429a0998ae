// Package efficiency ranks quest nodes for farming each item.
//
// The computation runs in three stages over an immutable dataset:
//
//  1. BestAPDs: the cheapest AP-per-drop of every included item, plus every
//     node's APD for that item.
//  2. NodeEfficiencies: for each node, the best-APD value of everything it
//     drops, per AP spent. Needs the complete output of stage 1.
//  3. Rank: per item, the nodes at or above the efficiency threshold, most
//     efficient first.
//
// Compute runs all three.
package efficiency

import (
	"encoding/json"
	"fmt"
)

// DefaultThreshold is the minimum node efficiency for a node to be ranked.
const DefaultThreshold = 1.0

// Options is the full configuration of one computation.
type Options struct {
	Policy    Policy
	Threshold float64
}

// DefaultOptions includes every item and uses DefaultThreshold.
func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold}
}

// BestAPD is the cheapest AP-per-drop of an item and the node that gives it.
// It encodes as the JSON pair [apd, node].
type BestAPD struct {
	APD  float64
	Node string
}

func (b BestAPD) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{b.APD, b.Node})
}

func (b *BestAPD) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("best APD: expected [apd, node], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &b.APD); err != nil {
		return fmt.Errorf("best APD value: %w", err)
	}
	return json.Unmarshal(pair[1], &b.Node)
}

// LocationEfficiency is one ranking entry for an item: the node, the node's
// overall efficiency and the item's APD there. It encodes as
// [node, efficiency, apd].
type LocationEfficiency struct {
	Node       string
	Efficiency float64
	APD        float64
}

func (l LocationEfficiency) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{l.Node, l.Efficiency, l.APD})
}

func (l *LocationEfficiency) UnmarshalJSON(data []byte) error {
	var triple []json.RawMessage
	if err := json.Unmarshal(data, &triple); err != nil {
		return err
	}
	if len(triple) != 3 {
		return fmt.Errorf("location efficiency: expected [node, efficiency, apd], got %d elements", len(triple))
	}
	if err := json.Unmarshal(triple[0], &l.Node); err != nil {
		return err
	}
	if err := json.Unmarshal(triple[1], &l.Efficiency); err != nil {
		return err
	}
	return json.Unmarshal(triple[2], &l.APD)
}

// Result holds every output of a computation.
type Result struct {
	Threshold       float64                         `json:"threshold"`
	BestAPD         map[string]BestAPD              `json:"best_apd"`
	Locations       map[string]map[string]float64   `json:"locations"`
	Efficiency      map[string]float64              `json:"efficiency"`
	BestLocation    map[string]LocationEfficiency   `json:"best_location"`
	RankedLocations map[string][]LocationEfficiency `json:"ranked_locations"`

	// Unranked lists, sorted, the items left with no node at or above the
	// threshold. They are absent from BestLocation and RankedLocations.
	Unranked []string `json:"unranked,omitempty"`
}
