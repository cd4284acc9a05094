// Package identity validates claimed peer names and tracks the fixed set
// of protected identities.
package identity

import (
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxLen = 64

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Valid reports whether name satisfies the identity grammar: 1-64 code
// units drawn from [A-Za-z0-9_-] after trimming.
func Valid(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxLen {
		return false
	}
	return nameRe.MatchString(name)
}

// Normalize trims a claimed name. Callers must call Valid before trusting
// the result; Normalize does not truncate, since a name that is too long
// should be rejected rather than silently shortened.
func Normalize(name string) string {
	return strings.TrimSpace(name)
}

// protectedFile is the shape of the optional YAML file named by
// BROKER_PROTECTED_IDENTITIES_FILE.
type protectedFile struct {
	Identities []string `yaml:"identities"`
}

// defaultProtected is used when no override file is configured, covering
// the two senders and two media-receiver endpoints named in the data
// model.
var defaultProtected = []string{"sender-1", "sender-2", "receiver-1", "receiver-2"}

// ProtectedSet is the fixed, process-constant set of protected names.
// Lookups are read-only after construction so no locking is needed.
type ProtectedSet struct {
	names map[string]struct{}
}

// LoadProtectedSet builds the protected-identity set. If path is empty or
// unreadable it falls back to the built-in default so the broker never
// fails to start for want of an optional file.
func LoadProtectedSet(path string) (*ProtectedSet, error) {
	if strings.TrimSpace(path) == "" {
		return newProtectedSet(defaultProtected), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return newProtectedSet(defaultProtected), err
	}

	var pf protectedFile
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(false)
	if err := dec.Decode(&pf); err != nil {
		return newProtectedSet(defaultProtected), err
	}
	if len(pf.Identities) == 0 {
		return newProtectedSet(defaultProtected), nil
	}
	return newProtectedSet(pf.Identities), nil
}

func newProtectedSet(names []string) *ProtectedSet {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[strings.TrimSpace(n)] = struct{}{}
	}
	return &ProtectedSet{names: m}
}

// IsProtected reports whether id belongs to the protected set.
func (p *ProtectedSet) IsProtected(id string) bool {
	if p == nil {
		return false
	}
	_, ok := p.names[id]
	return ok
}
