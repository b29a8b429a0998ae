package efficiency

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/lawnchairsociety/dropefficiency/internal/drops"
	"github.com/lawnchairsociety/dropefficiency/internal/logger"
)

// Compute validates the dataset and runs the three stages in order.
// Validation and consistency failures abort the run; items that end up with
// no qualifying node are reported in Result.Unranked instead.
func Compute(ds *drops.Dataset, opts Options) (*Result, error) {
	if math.IsNaN(opts.Threshold) || math.IsInf(opts.Threshold, 0) {
		return nil, fmt.Errorf("efficiency threshold must be finite, got %v", opts.Threshold)
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate dataset: %w", err)
	}

	best, locations, err := BestAPDs(ds, opts.Policy)
	if err != nil {
		return nil, err
	}
	logger.Debug("Best APD pass complete", "items", len(best), "policy", opts.Policy.Mode())

	efficiency, err := NodeEfficiencies(ds, opts.Policy, best)
	if err != nil {
		return nil, err
	}
	logger.Debug("Node efficiency pass complete", "nodes", len(efficiency))

	bestLocation, ranked, unranked, err := Rank(locations, efficiency, opts.Threshold)
	if err != nil {
		return nil, err
	}
	logger.Debug("Ranking complete", "ranked", len(ranked), "unranked", len(unranked), "threshold", opts.Threshold)

	return &Result{
		Threshold:       opts.Threshold,
		BestAPD:         best,
		Locations:       locations,
		Efficiency:      efficiency,
		BestLocation:    bestLocation,
		RankedLocations: ranked,
		Unranked:        unranked,
	}, nil
}

// BestAPDs finds, for every included item, its lowest AP-per-drop across all
// nodes and the APD at every node that drops it. Equal APDs go to the node
// whose id sorts first.
func BestAPDs(ds *drops.Dataset, policy Policy) (map[string]BestAPD, map[string]map[string]float64, error) {
	best := make(map[string]BestAPD)
	locations := make(map[string]map[string]float64)

	for _, node := range ds.Nodes() {
		if node.AP <= 0 {
			return nil, nil, &drops.ValidationError{Node: node.ID, Reason: fmt.Sprintf("AP cost %d is not positive", node.AP)}
		}
		for item, p := range node.Drops {
			if !policy.Included(item) {
				continue
			}
			if err := drops.ValidateProbability(node.ID, item, p); err != nil {
				return nil, nil, err
			}

			apd := float64(node.AP) / p
			cur, ok := best[item]
			if !ok || apd < cur.APD || (apd == cur.APD && node.ID < cur.Node) {
				best[item] = BestAPD{APD: apd, Node: node.ID}
			}

			if locations[item] == nil {
				locations[item] = make(map[string]float64)
			}
			locations[item][node.ID] = apd
		}
	}

	return best, locations, nil
}

// NodeEfficiencies scores every node by the best-APD value of its included
// drops per AP spent. Every node gets a score, even one with nothing included.
// best must be the complete output of BestAPDs for the same dataset and policy.
func NodeEfficiencies(ds *drops.Dataset, policy Policy, best map[string]BestAPD) (map[string]float64, error) {
	efficiency := make(map[string]float64, ds.NodeCount())

	for _, node := range ds.Nodes() {
		if node.AP <= 0 {
			return nil, &drops.ValidationError{Node: node.ID, Reason: fmt.Sprintf("AP cost %d is not positive", node.AP)}
		}
		// Summed in item order so the score does not depend on map iteration.
		total := 0.0
		for _, item := range node.Drops.SortedItems() {
			if !policy.Included(item) {
				continue
			}
			b, ok := best[item]
			if !ok {
				return nil, &ConsistencyError{Node: node.ID, Item: item}
			}
			total += b.APD * node.Drops[item]
		}
		efficiency[node.ID] = total / float64(node.AP)
	}

	return efficiency, nil
}

// Rank keeps, per item, the nodes whose efficiency is at least threshold and
// orders them by efficiency, highest first; equal efficiencies are ordered by
// node id. Items left with nothing are returned in unranked, sorted.
func Rank(locations map[string]map[string]float64, efficiency map[string]float64, threshold float64) (
	best map[string]LocationEfficiency, ranked map[string][]LocationEfficiency, unranked []string, err error,
) {
	best = make(map[string]LocationEfficiency)
	ranked = make(map[string][]LocationEfficiency)

	items := make([]string, 0, len(locations))
	for item := range locations {
		items = append(items, item)
	}
	slices.Sort(items)

	for _, item := range items {
		locs := locations[item]
		nodes := make([]string, 0, len(locs))
		for node := range locs {
			nodes = append(nodes, node)
		}
		slices.Sort(nodes)

		var entries []LocationEfficiency
		for _, node := range nodes {
			eff, ok := efficiency[node]
			if !ok {
				return nil, nil, nil, &ConsistencyError{Node: node}
			}
			if eff >= threshold {
				entries = append(entries, LocationEfficiency{Node: node, Efficiency: eff, APD: locs[node]})
			}
		}

		if len(entries) == 0 {
			unranked = append(unranked, item)
			continue
		}

		slices.SortStableFunc(entries, func(a, b LocationEfficiency) int {
			return cmp.Compare(b.Efficiency, a.Efficiency)
		})
		best[item] = entries[0]
		ranked[item] = entries
	}

	return best, ranked, unranked, nil
}
