package sighting

// Gate filters fingerprints against the set of identities already in
// the store. It is seeded once per execution and then grows in memory,
// so two candidates in the same execution that normalize to the same
// fingerprint are not both accepted. Single collection runs are
// sequential; the gate is not safe for concurrent use.
type Gate struct {
	known map[string]struct{}
}

// NewGate builds a gate pre-seeded with the store's known identities.
func NewGate(known []string) *Gate {
	set := make(map[string]struct{}, len(known))
	for _, id := range known {
		set[id] = struct{}{}
	}
	return &Gate{known: set}
}

// IsNew reports whether the fingerprint is unseen and, when it is,
// records it immediately so later candidates in the same execution
// collapse onto it.
func (g *Gate) IsNew(fingerprint string) bool {
	if g == nil || fingerprint == "" {
		return false
	}
	if _, exists := g.known[fingerprint]; exists {
		return false
	}
	g.known[fingerprint] = struct{}{}
	return true
}

// Size returns the number of identities the gate currently knows.
func (g *Gate) Size() int {
	if g == nil {
		return 0
	}
	return len(g.known)
}
