// Package registry maps logical record-type names to physical namespaces.
//
// The set of types is fixed at startup. All lookups after construction are
// read-only, so a Registry is safe for concurrent use without locking.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Type describes one registered record type.
type Type struct {
	// Name is the logical type name used by protocol callers, e.g. "AccessToken".
	Name string
	// Namespace is the physical storage partition backing the type, e.g. "access_token".
	Namespace string
	// Volatile marks types subject to expiration and purge.
	Volatile bool
}

// Registry holds the immutable type table.
type Registry struct {
	byName map[string]Type
}

// defaultTypes is the full set of record types the persistence layer serves.
// Client registrations are the only durable type; everything else is
// protocol runtime state with an expiration instant.
var defaultTypes = []struct {
	name     string
	volatile bool
}{
	{"Session", true},
	{"AccessToken", true},
	{"AuthorizationCode", true},
	{"RefreshToken", true},
	{"DeviceCode", true},
	{"ClientCredentials", true},
	{"InitialAccessToken", true},
	{"RegistrationAccessToken", true},
	{"Interaction", true},
	{"ReplayDetection", true},
	{"PushedAuthorizationRequest", true},
	{"Grant", true},
	{"Client", false},
}

// New builds a registry from logical names, deriving namespaces and
// rejecting duplicate names or namespace collisions.
func New(types []Type) (*Registry, error) {
	byName := make(map[string]Type, len(types))
	byNamespace := make(map[string]string, len(types))
	for _, typ := range types {
		name := strings.TrimSpace(typ.Name)
		if name == "" {
			return nil, fmt.Errorf("type name is required")
		}
		if _, ok := byName[name]; ok {
			return nil, fmt.Errorf("duplicate type name %q", name)
		}
		namespace := typ.Namespace
		if namespace == "" {
			namespace = Namespace(name)
		}
		if owner, ok := byNamespace[namespace]; ok {
			return nil, fmt.Errorf("namespace %q collides between %q and %q", namespace, owner, name)
		}
		byName[name] = Type{Name: name, Namespace: namespace, Volatile: typ.Volatile}
		byNamespace[namespace] = name
	}
	return &Registry{byName: byName}, nil
}

// Default returns the registry with the full statevault type set.
func Default() *Registry {
	types := make([]Type, 0, len(defaultTypes))
	for _, entry := range defaultTypes {
		types = append(types, Type{Name: entry.name, Volatile: entry.volatile})
	}
	reg, err := New(types)
	if err != nil {
		// The default table is static; a collision here is a programming error.
		panic(err)
	}
	return reg
}

// Lookup returns the type registered under the logical name.
func (r *Registry) Lookup(name string) (Type, bool) {
	typ, ok := r.byName[name]
	return typ, ok
}

// All returns every registered type sorted by logical name.
func (r *Registry) All() []Type {
	types := make([]Type, 0, len(r.byName))
	for _, typ := range r.byName {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types
}

// Volatile returns every volatile type sorted by logical name.
func (r *Registry) Volatile() []Type {
	var types []Type
	for _, typ := range r.All() {
		if typ.Volatile {
			types = append(types, typ)
		}
	}
	return types
}

// Namespace folds a CamelCase logical name into its snake_case namespace.
//
// The fold is a pure function of the name: a word boundary is an upper-case
// rune following a lower-case rune or digit. "PushedAuthorizationRequest"
// becomes "pushed_authorization_request".
func Namespace(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
