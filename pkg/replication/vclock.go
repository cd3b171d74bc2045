package replication

import (
	"fmt"
	"sort"
	"strings"
)

// VClock maps a server uuid to the number of writes of that server
// applied by the owner of the clock.
type VClock map[string]uint64

func (v VClock) Clone() VClock {
	ret := make(VClock, len(v))
	for k, n := range v {
		ret[k] = n
	}
	return ret
}

// LessOrEqual reports whether v is componentwise <= other. Components
// missing from a clock are zero.
func (v VClock) LessOrEqual(other VClock) bool {
	for k, n := range v {
		if n > other[k] {
			return false
		}
	}
	return true
}

// Merge raises every component of v to at least the one of other.
func (v VClock) Merge(other VClock) {
	for k, n := range other {
		if n > v[k] {
			v[k] = n
		}
	}
}

func (v VClock) String() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, v[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
