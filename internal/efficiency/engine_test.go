package efficiency

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/lawnchairsociety/dropefficiency/internal/drops"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func dataset(sections ...drops.Section) *drops.Dataset {
	return &drops.Dataset{Sections: sections}
}

func section(name string, quests ...drops.Quest) drops.Section {
	return drops.Section{Name: name, Quests: quests}
}

func quest(name string, ap int, table drops.DropTable) drops.Quest {
	return drops.Quest{Name: name, AP: ap, Drops: table}
}

// farmingDataset has overlapping drops across several nodes.
func farmingDataset() *drops.Dataset {
	return dataset(
		section("Fuyuki",
			quest("Bridge", 10, drops.DropTable{"Proof of Hero": 0.5, "Evil Bone": 0.2}),
			quest("Church", 12, drops.DropTable{"Dragon Fang": 0.3, "Evil Bone": 0.4}),
		),
		section("Orleans",
			quest("Field", 20, drops.DropTable{"Proof of Hero": 0.9, "Dragon Fang": 0.6, "Void's Dust": 0.1}),
			quest("Forest", 9, drops.DropTable{"Void's Dust": 0.25}),
		),
	)
}

func TestComputeWorkedExample(t *testing.T) {
	ds := dataset(section("S1", quest("Q1", 10, drops.DropTable{"Ore": 0.5, "Gem": 0.2})))

	res, err := Compute(ds, DefaultOptions())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	node := "S1 — Q1"
	if got := res.BestAPD["Ore"]; !approxEqual(got.APD, 20.0) || got.Node != node {
		t.Errorf("best APD Ore = %+v, want (20, %s)", got, node)
	}
	if got := res.BestAPD["Gem"]; !approxEqual(got.APD, 50.0) || got.Node != node {
		t.Errorf("best APD Gem = %+v, want (50, %s)", got, node)
	}
	if got := res.Efficiency[node]; !approxEqual(got, 2.0) {
		t.Errorf("efficiency = %v, want 2.0", got)
	}

	best, err := res.Best("Ore")
	if err != nil {
		t.Fatalf("Best(Ore): %v", err)
	}
	if best.Node != node || !approxEqual(best.Efficiency, 2.0) || !approxEqual(best.APD, 20.0) {
		t.Errorf("best location = %+v", best)
	}
}

func TestBestAPDPicksCheaperNode(t *testing.T) {
	ds := dataset(section("S1",
		quest("Expensive", 20, drops.DropTable{"Ore": 0.5}),
		quest("Cheap", 10, drops.DropTable{"Ore": 0.5}),
	))

	best, locations, err := BestAPDs(ds, Policy{})
	if err != nil {
		t.Fatalf("BestAPDs: %v", err)
	}

	if best["Ore"].Node != "S1 — Cheap" || !approxEqual(best["Ore"].APD, 20) {
		t.Errorf("best = %+v, want S1 — Cheap at 20", best["Ore"])
	}
	if len(locations["Ore"]) != 2 {
		t.Fatalf("expected both nodes in locations, got %v", locations["Ore"])
	}
	if !approxEqual(locations["Ore"]["S1 — Expensive"], 40) {
		t.Errorf("expensive APD = %v, want 40", locations["Ore"]["S1 — Expensive"])
	}
}

func TestBestAPDTieBreaksByNodeID(t *testing.T) {
	// B appears first in dataset order, but A sorts first.
	ds := dataset(
		section("B", quest("Q", 10, drops.DropTable{"Ore": 0.5})),
		section("A", quest("Q", 10, drops.DropTable{"Ore": 0.5})),
	)

	best, _, err := BestAPDs(ds, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	if best["Ore"].Node != "A — Q" {
		t.Errorf("tie went to %q, want %q", best["Ore"].Node, "A — Q")
	}
}

func TestBestAPDMatchesMinimumLocation(t *testing.T) {
	res, err := Compute(farmingDataset(), Options{Threshold: 0})
	if err != nil {
		t.Fatal(err)
	}

	for item, locs := range res.Locations {
		minAPD := math.Inf(1)
		for _, apd := range locs {
			minAPD = math.Min(minAPD, apd)
		}
		if res.BestAPD[item].APD != minAPD {
			t.Errorf("%s: best APD %v != min location APD %v", item, res.BestAPD[item].APD, minAPD)
		}
		if _, ok := locs[res.BestAPD[item].Node]; !ok {
			t.Errorf("%s: best node %s not among locations", item, res.BestAPD[item].Node)
		}
	}
}

func TestEfficiencyNonNegativeAndCoversEveryNode(t *testing.T) {
	ds := farmingDataset()
	// Only Dragon Fang counts, so Forest has nothing included.
	res, err := Compute(ds, Options{Policy: NewPolicy([]string{"Dragon Fang"}, nil), Threshold: 0})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Efficiency) != ds.NodeCount() {
		t.Fatalf("efficiency has %d nodes, want %d", len(res.Efficiency), ds.NodeCount())
	}
	for node, eff := range res.Efficiency {
		if eff < 0 {
			t.Errorf("%s efficiency %v < 0", node, eff)
		}
	}
	if eff := res.Efficiency["Orleans — Forest"]; eff != 0 {
		t.Errorf("node with no included drops has efficiency %v, want 0", eff)
	}
}

func TestNodeEfficiencyFormula(t *testing.T) {
	res, err := Compute(farmingDataset(), Options{Threshold: 0})
	if err != nil {
		t.Fatal(err)
	}

	// Field: 20 AP, Proof 0.9, Fang 0.6, Dust 0.1.
	proof := res.BestAPD["Proof of Hero"].APD // min(10/0.5, 20/0.9) = 20
	fang := res.BestAPD["Dragon Fang"].APD    // min(12/0.3, 20/0.6) = 33.33
	dust := res.BestAPD["Void's Dust"].APD    // min(20/0.1, 9/0.25) = 36
	want := (proof*0.9 + fang*0.6 + dust*0.1) / 20

	if got := res.Efficiency["Orleans — Field"]; !approxEqual(got, want) {
		t.Errorf("Field efficiency = %v, want %v", got, want)
	}
	if !approxEqual(proof, 20) || !approxEqual(fang, 20.0/0.6) || !approxEqual(dust, 36) {
		t.Errorf("unexpected best APDs: proof=%v fang=%v dust=%v", proof, fang, dust)
	}
}

func TestNodeEfficiencyIndependentOfDropOrder(t *testing.T) {
	items := []string{"Ore", "Gem", "Bone", "Fang", "Dust", "Feather"}
	probs := []float64{0.1, 0.7, 0.33, 0.05, 0.9, 0.21}
	apds := []float64{13.7, 101.3, 0.9, 250.25, 7.1, 42.42}

	best := make(map[string]BestAPD, len(items))
	for i, item := range items {
		best[item] = BestAPD{APD: apds[i], Node: "S — Q"}
	}

	// Build the drop table in a fixed order and in reverse.
	forward := drops.DropTable{}
	reverse := drops.DropTable{}
	var fwdSum, revSum float64
	for i := range items {
		forward[items[i]] = probs[i]
		fwdSum += apds[i] * probs[i]

		j := len(items) - 1 - i
		reverse[items[j]] = probs[j]
		revSum += apds[j] * probs[j]
	}

	const ap = 17
	for _, tt := range []struct {
		name  string
		table drops.DropTable
		want  float64
	}{
		{"forward", forward, fwdSum / ap},
		{"reverse", reverse, revSum / ap},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ds := dataset(section("S", quest("Q", ap, tt.table)))

			first, err := NodeEfficiencies(ds, Policy{}, best)
			if err != nil {
				t.Fatal(err)
			}
			if got := first["S — Q"]; !approxEqual(got, tt.want) {
				t.Errorf("efficiency = %v, want %v", got, tt.want)
			}

			// Map iteration order changes between loops; the score must not.
			for i := 0; i < 50; i++ {
				again, err := NodeEfficiencies(ds, Policy{}, best)
				if err != nil {
					t.Fatal(err)
				}
				if again["S — Q"] != first["S — Q"] {
					t.Fatalf("pass %d gave %v, first pass %v", i, again["S — Q"], first["S — Q"])
				}
			}
		})
	}

	a, _ := NodeEfficiencies(dataset(section("S", quest("Q", ap, forward))), Policy{}, best)
	b, _ := NodeEfficiencies(dataset(section("S", quest("Q", ap, reverse))), Policy{}, best)
	if a["S — Q"] != b["S — Q"] {
		t.Errorf("forward %v and reverse %v tables scored differently", a["S — Q"], b["S — Q"])
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	opts := Options{Policy: NewPolicy(nil, []string{"Evil Bone"}), Threshold: 1.0}

	first, err := Compute(farmingDataset(), opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Compute(farmingDataset(), opts)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("two runs over identical input differ:\n%+v\n%+v", first, second)
	}
}

func TestThresholdMonotonicity(t *testing.T) {
	ds := farmingDataset()
	thresholds := []float64{0, 0.5, 1.0, 1.5, 2.0, 3.0, 10.0}

	prev := map[string]int{}
	for i, threshold := range thresholds {
		res, err := Compute(ds, Options{Threshold: threshold})
		if err != nil {
			t.Fatalf("threshold %v: %v", threshold, err)
		}
		for item := range res.Locations {
			n := len(res.RankedLocations[item])
			if i > 0 && n > prev[item] {
				t.Errorf("%s: ranked list grew from %d to %d when threshold rose to %v", item, prev[item], n, threshold)
			}
			prev[item] = n
		}
	}
}

func TestThresholdBoundaryIsInclusive(t *testing.T) {
	// A single-item node always scores exactly 1.
	ds := dataset(section("S", quest("Q", 10, drops.DropTable{"Ore": 0.5})))

	res, err := Compute(ds, Options{Threshold: 1.0})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := res.Best("Ore"); err != nil {
		t.Errorf("node at exactly the threshold was dropped: %v", err)
	}
}

func TestThresholdAboveEveryNode(t *testing.T) {
	res, err := Compute(farmingDataset(), Options{Threshold: 1000})
	if err != nil {
		t.Fatalf("Compute should not fail for unrankable items: %v", err)
	}

	if len(res.BestLocation) != 0 || len(res.RankedLocations) != 0 {
		t.Errorf("expected no rankings, got %v", res.RankedLocations)
	}
	if len(res.Unranked) != 4 {
		t.Fatalf("expected 4 unranked items, got %v", res.Unranked)
	}

	for _, item := range res.Unranked {
		_, err := res.Best(item)
		var nq *NoQualifyingLocationError
		if !errors.As(err, &nq) {
			t.Fatalf("Best(%s): expected NoQualifyingLocationError, got %v", item, err)
		}
		if nq.Item != item || nq.Threshold != 1000 || nq.Candidates == 0 {
			t.Errorf("unexpected error detail %+v", nq)
		}
	}

	var nq *NoQualifyingLocationError
	if err := res.UnrankedErr(); !errors.As(err, &nq) {
		t.Errorf("UnrankedErr() = %v, want joined NoQualifyingLocationError", err)
	}
	if _, err := res.Ranked("Dragon Fang"); !errors.As(err, &nq) {
		t.Errorf("Ranked() = %v, want NoQualifyingLocationError", err)
	}
}

func TestUnrankedErrNilWhenAllRanked(t *testing.T) {
	res, err := Compute(farmingDataset(), Options{Threshold: 0})
	if err != nil {
		t.Fatal(err)
	}
	if err := res.UnrankedErr(); err != nil {
		t.Errorf("UnrankedErr() = %v, want nil", err)
	}
}

func TestRankOrdering(t *testing.T) {
	locations := map[string]map[string]float64{
		"Ore": {"C": 30, "A": 10, "B": 20, "D": 5},
	}
	efficiency := map[string]float64{"A": 1.5, "B": 2.5, "C": 1.5, "D": 0.9}

	best, ranked, unranked, err := Rank(locations, efficiency, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(unranked) != 0 {
		t.Errorf("unexpected unranked %v", unranked)
	}

	got := ranked["Ore"]
	wantOrder := []string{"B", "A", "C"}
	if len(got) != len(wantOrder) {
		t.Fatalf("ranked = %+v, want %v", got, wantOrder)
	}
	for i, node := range wantOrder {
		if got[i].Node != node {
			t.Errorf("position %d = %s, want %s", i, got[i].Node, node)
		}
	}
	if best["Ore"] != got[0] {
		t.Errorf("best %+v is not the head of the ranking %+v", best["Ore"], got[0])
	}
	if got[1].APD != 10 {
		t.Errorf("entry APD = %v, want item APD at node (10)", got[1].APD)
	}
}

func TestRankMissingEfficiency(t *testing.T) {
	locations := map[string]map[string]float64{"Ore": {"A": 10}}

	_, _, _, err := Rank(locations, map[string]float64{}, 1.0)
	var ce *ConsistencyError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
	if ce.Node != "A" {
		t.Errorf("ConsistencyError node = %q", ce.Node)
	}
}

func TestNodeEfficienciesRequiresStageOne(t *testing.T) {
	ds := dataset(section("S", quest("Q", 10, drops.DropTable{"Ore": 0.5})))

	_, err := NodeEfficiencies(ds, Policy{}, map[string]BestAPD{})
	var ce *ConsistencyError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
	if ce.Item != "Ore" || ce.Node != "S — Q" {
		t.Errorf("unexpected detail %+v", ce)
	}
}

func TestComputeRejectsInvalidData(t *testing.T) {
	tests := []struct {
		name string
		ds   *drops.Dataset
	}{
		{"zero probability", dataset(section("S", quest("Q", 10, drops.DropTable{"Ore": 0})))},
		{"zero ap", dataset(section("S", quest("Q", 0, drops.DropTable{"Ore": 0.5})))},
		{"probability above one", dataset(section("S", quest("Q", 10, drops.DropTable{"Ore": 1.5})))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.ds, DefaultOptions())
			var verr *drops.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestBestAPDsGuardsZeroProbability(t *testing.T) {
	ds := dataset(section("S", quest("Q", 10, drops.DropTable{"Ore": 0})))

	_, _, err := BestAPDs(ds, Policy{})
	var verr *drops.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError instead of an infinite APD, got %v", err)
	}
}

func TestExcludedZeroProbabilityIsIgnoredByPasses(t *testing.T) {
	ds := dataset(section("S", quest("Q", 10, drops.DropTable{"Ore": 0.5, "Junk": 0})))

	best, _, err := BestAPDs(ds, NewPolicy(nil, []string{"Junk"}))
	if err != nil {
		t.Fatalf("excluded item should not be divided: %v", err)
	}
	if _, ok := best["Junk"]; ok {
		t.Error("excluded item recorded in best APD")
	}
}

func TestComputeRejectsNaNThreshold(t *testing.T) {
	if _, err := Compute(farmingDataset(), Options{Threshold: math.NaN()}); err == nil {
		t.Error("expected error for NaN threshold")
	}
}

func TestAllowListExcludesFromBothPasses(t *testing.T) {
	res, err := Compute(farmingDataset(), Options{Policy: NewPolicy([]string{"Void's Dust"}, nil), Threshold: 0})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.BestAPD) != 1 {
		t.Errorf("best APD has %d items, want 1", len(res.BestAPD))
	}
	// Forest only drops dust: 36 * 0.25 / 9 = 1.
	if got := res.Efficiency["Orleans — Forest"]; !approxEqual(got, 1.0) {
		t.Errorf("Forest efficiency = %v, want 1", got)
	}
	// Field: 36 * 0.1 / 20 = 0.18; other drops excluded.
	if got := res.Efficiency["Orleans — Field"]; !approxEqual(got, 0.18) {
		t.Errorf("Field efficiency = %v, want 0.18", got)
	}
}

func TestTupleJSON(t *testing.T) {
	data, err := json.Marshal(BestAPD{APD: 20, Node: "S1 — Q1"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `[20,"S1 — Q1"]` {
		t.Errorf("BestAPD JSON = %s", data)
	}

	in := LocationEfficiency{Node: "S1 — Q1", Efficiency: 2, APD: 20}
	data, err = json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["S1 — Q1",2,20]` {
		t.Errorf("LocationEfficiency JSON = %s", data)
	}

	var out LocationEfficiency
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("decoded %+v, want %+v", out, in)
	}

	var bad BestAPD
	if err := json.Unmarshal([]byte(`[1]`), &bad); err == nil {
		t.Error("expected error for short BestAPD pair")
	}
}
