// Package drops holds the quest drop-rate dataset: sections of quests, each
// quest with an AP cost and a drop table of item probabilities.
package drops

import (
	"slices"
)

// NodeSeparator joins a section name and a quest name into a node id.
const NodeSeparator = " — "

// DropTable maps an item name to its drop probability in (0, 1].
type DropTable map[string]float64

// Quest is one farmable quest node inside a section.
type Quest struct {
	Name  string
	AP    int
	Drops DropTable
}

// Section groups quests the way the source site does (one singularity,
// lostbelt or event per section).
type Section struct {
	Name   string
	Quests []Quest
}

// Dataset is the full drop-rate table. Sections and quests keep the order in
// which they were loaded.
type Dataset struct {
	Sections []Section
}

// Node is a flattened view of one quest together with its section.
type Node struct {
	ID      string
	Section string
	Quest   string
	AP      int
	Drops   DropTable
}

// NodeID builds the display id of a quest node.
func NodeID(section, quest string) string {
	return section + NodeSeparator + quest
}

// Nodes returns every quest in dataset order.
func (d *Dataset) Nodes() []Node {
	var nodes []Node
	for _, s := range d.Sections {
		for _, q := range s.Quests {
			nodes = append(nodes, Node{
				ID:      NodeID(s.Name, q.Name),
				Section: s.Name,
				Quest:   q.Name,
				AP:      q.AP,
				Drops:   q.Drops,
			})
		}
	}
	return nodes
}

// NodeCount returns the number of quests across all sections.
func (d *Dataset) NodeCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Quests)
	}
	return n
}

// Items returns the sorted set of item names that drop anywhere.
func (d *Dataset) Items() []string {
	seen := make(map[string]struct{})
	for _, s := range d.Sections {
		for _, q := range s.Quests {
			for item := range q.Drops {
				seen[item] = struct{}{}
			}
		}
	}
	items := make([]string, 0, len(seen))
	for item := range seen {
		items = append(items, item)
	}
	slices.Sort(items)
	return items
}

// Section returns the named section, or nil.
func (d *Dataset) Section(name string) *Section {
	for i := range d.Sections {
		if d.Sections[i].Name == name {
			return &d.Sections[i]
		}
	}
	return nil
}

// AddSection appends a section, replacing any existing section of the same
// name in place.
func (d *Dataset) AddSection(s Section) {
	if existing := d.Section(s.Name); existing != nil {
		*existing = s
		return
	}
	d.Sections = append(d.Sections, s)
}

// SortedItems returns the keys of a drop table in lexical order.
func (t DropTable) SortedItems() []string {
	items := make([]string, 0, len(t))
	for item := range t {
		items = append(items, item)
	}
	slices.Sort(items)
	return items
}
