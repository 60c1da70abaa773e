package testutil

// FixedRunID always returns the same run ID.
//
// Runs built with it produce byte-identical JSON summaries, which keeps
// golden comparisons stable.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a fixed run ID generator. An empty id becomes
// "test-run-default".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed ID.
func (g *FixedRunID) Generate() string {
	return g.id
}
