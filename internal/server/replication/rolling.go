// Package replication streams config state to SDK sessions. Each session
// merges what the client already has with the server state on connect and
// then receives only strictly newer versions.
package replication

// UpsertResult reports whether RollingState accepted a version
type UpsertResult int

const (
	// Ignored means the version was not newer than the recorded one
	Ignored UpsertResult = iota
	// Upserted means the version was recorded and should be delivered
	Upserted
)

func (r UpsertResult) String() string {
	if r == Upserted {
		return "upserted"
	}
	return "ignored"
}

// RollingState tracks the highest version delivered per config name.
// It belongs to exactly one session and is not safe for concurrent use.
type RollingState struct {
	versions map[string]int64
}

// NewRollingState creates an empty rolling state
func NewRollingState() *RollingState {
	return &RollingState{versions: make(map[string]int64)}
}

// Upsert records version for name if it is strictly newer
func (s *RollingState) Upsert(name string, version int64) UpsertResult {
	if current, ok := s.versions[name]; ok && version <= current {
		return Ignored
	}
	s.versions[name] = version
	return Upserted
}

// Version returns the recorded version of name
func (s *RollingState) Version(name string) (int64, bool) {
	v, ok := s.versions[name]
	return v, ok
}

// Len returns the number of tracked configs
func (s *RollingState) Len() int {
	return len(s.versions)
}
