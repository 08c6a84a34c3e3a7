package database

// Result listing constants
const (
	// DefaultListLimit caps the number of results returned by ListRecent
	DefaultListLimit = 100
)
