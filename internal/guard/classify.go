package guard

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Class is the access class of a page path.
type Class int

const (
	// Public pages render for everyone.
	Public Class = iota
	// AuthOnly pages (login, register) make no sense once signed in.
	AuthOnly
	// Protected pages need a credential.
	Protected
)

func (c Class) String() string {
	switch c {
	case Public:
		return "public"
	case AuthOnly:
		return "auth-only"
	case Protected:
		return "protected"
	default:
		return "unknown"
	}
}

// Rules lists the path patterns of each class.
//
// Protected entries match by prefix. AuthOnly and Public entries match
// exactly, or by prefix when they end with "/" (except "/" itself).
// Entries containing glob syntax (*, ?, [, {) are compiled as globs
// with "/" as the separator.
type Rules struct {
	Protected []string
	AuthOnly  []string
	Public    []string
}

// DefaultRules is the link page's route table.
func DefaultRules() Rules {
	return Rules{
		Protected: []string{"/dashboard"},
		AuthOnly:  []string{"/login", "/register"},
		Public:    []string{"/", "/about", "/terms", "/policy", "/contact", "/u/"},
	}
}

type matcher struct {
	pattern string
	g       glob.Glob
}

// Table classifies paths. It is immutable after NewTable.
type Table struct {
	protected []matcher
	authOnly  []matcher
	public    []matcher
}

// NewTable compiles rules. Every pattern must compile.
func NewTable(rules Rules) (*Table, error) {
	protected, err := compileAll(rules.Protected, true)
	if err != nil {
		return nil, err
	}
	authOnly, err := compileAll(rules.AuthOnly, false)
	if err != nil {
		return nil, err
	}
	public, err := compileAll(rules.Public, false)
	if err != nil {
		return nil, err
	}
	return &Table{protected: protected, authOnly: authOnly, public: public}, nil
}

// MustNewTable is NewTable for static tables known to compile.
func MustNewTable(rules Rules) *Table {
	t, err := NewTable(rules)
	if err != nil {
		panic(err)
	}
	return t
}

func compileAll(patterns []string, prefix bool) ([]matcher, error) {
	out := make([]matcher, 0, len(patterns))
	for _, p := range patterns {
		g, err := compile(p, prefix)
		if err != nil {
			return nil, fmt.Errorf("invalid route pattern %q: %w", p, err)
		}
		out = append(out, matcher{pattern: p, g: g})
	}
	return out, nil
}

func compile(pattern string, prefix bool) (glob.Glob, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("pattern must start with /")
	}
	if strings.ContainsAny(pattern, "*?[{") {
		return glob.Compile(pattern, '/')
	}

	quoted := glob.QuoteMeta(pattern)
	switch {
	case prefix:
		return glob.Compile(quoted + "*")
	case pattern != "/" && strings.HasSuffix(pattern, "/"):
		return glob.Compile(quoted + "*")
	default:
		return glob.Compile(quoted)
	}
}

func matchAny(ms []matcher, path string) bool {
	for _, m := range ms {
		if m.g.Match(path) {
			return true
		}
	}
	return false
}

// Match returns the first class whose patterns match path, checking
// protected, then auth-only, then public. ok is false when nothing matches.
func (t *Table) Match(path string) (class Class, ok bool) {
	switch {
	case matchAny(t.protected, path):
		return Protected, true
	case matchAny(t.authOnly, path):
		return AuthOnly, true
	case matchAny(t.public, path):
		return Public, true
	default:
		return Public, false
	}
}

// Classify returns exactly one class per path. Unlisted paths are public.
func (t *Table) Classify(path string) Class {
	class, _ := t.Match(path)
	return class
}

// Listed reports whether path is explicitly public or auth-only. Client
// side navigation treats every other path as needing a session.
func (t *Table) Listed(path string) bool {
	class, ok := t.Match(path)
	return ok && class != Protected
}
