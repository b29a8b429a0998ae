package efficiency

import "slices"

// Policy decides which items take part in the computation. A non-empty
// allow-list wins outright; otherwise anything not on the deny-list is in.
// The zero value includes every item.
type Policy struct {
	allow map[string]struct{}
	deny  map[string]struct{}
}

// NewPolicy copies the given lists into an immutable policy.
func NewPolicy(allow, deny []string) Policy {
	return Policy{allow: toSet(allow), deny: toSet(deny)}
}

// Included reports whether item counts towards APD and efficiency.
func (p Policy) Included(item string) bool {
	if len(p.allow) > 0 {
		_, ok := p.allow[item]
		return ok
	}
	_, denied := p.deny[item]
	return !denied
}

// Mode is "allow", "deny" or "all", for logging.
func (p Policy) Mode() string {
	switch {
	case len(p.allow) > 0:
		return "allow"
	case len(p.deny) > 0:
		return "deny"
	default:
		return "all"
	}
}

// Allowed returns the allow-list, sorted.
func (p Policy) Allowed() []string { return sortedKeys(p.allow) }

// Denied returns the deny-list, sorted.
func (p Policy) Denied() []string { return sortedKeys(p.deny) }

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
