package replication

import (
	"fmt"
	"sort"
	"strings"

	"confhub/internal/types"
	"confhub/internal/value"
)

// Snapshot is a config as delivered to a session
type Snapshot struct {
	Name      string           `json:"name"`
	Version   int64            `json:"version"`
	Value     value.Value      `json:"value"`
	Overrides []types.Override `json:"overrides,omitempty"`
}

// MissingConfigsError is returned when required configs are absent from
// every merge source
type MissingConfigsError struct {
	Names []string
}

func (e *MissingConfigsError) Error() string {
	return fmt.Sprintf("missing required configs: %s", strings.Join(e.Names, ", "))
}

// Is makes MissingConfigsError match types.ErrNotFound
func (e *MissingConfigsError) Is(target error) bool {
	return target == types.ErrNotFound
}

// Merge combines the client's current configs, the server configs and the
// client's fallbacks, keeping the highest version per name. Equal versions
// prefer the server, then the client's current copy, then the fallback.
func Merge(current, server, fallbacks []Snapshot) map[string]Snapshot {
	merged := make(map[string]Snapshot, len(server)+len(current))
	// Lowest precedence first so that equal versions are overwritten
	for _, source := range [][]Snapshot{fallbacks, current, server} {
		for _, snap := range source {
			if existing, ok := merged[snap.Name]; ok && existing.Version > snap.Version {
				continue
			}
			merged[snap.Name] = snap
		}
	}
	return merged
}

// RequireConfigs checks that every required name is present in merged
func RequireConfigs(merged map[string]Snapshot, required []string) error {
	var missing []string
	seen := make(map[string]struct{}, len(required))
	for _, name := range required {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := merged[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingConfigsError{Names: missing}
}

// missingFrom returns the merged entries the client does not hold at the
// merged version, sorted by name
func missingFrom(merged map[string]Snapshot, current []Snapshot) []Snapshot {
	have := make(map[string]int64, len(current))
	for _, snap := range current {
		if v, ok := have[snap.Name]; !ok || snap.Version > v {
			have[snap.Name] = snap.Version
		}
	}

	out := make([]Snapshot, 0, len(merged))
	for name, snap := range merged {
		if v, ok := have[name]; ok && v == snap.Version {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
