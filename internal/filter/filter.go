package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidFilterSyntax is returned when a pattern filter does not compile.
var ErrInvalidFilterSyntax = errors.New("invalid filter syntax")

// patternSyntax matches /body/flags. Only g, m and i are recognized flags;
// anything else makes the string a literal.
var patternSyntax = regexp.MustCompile(`^/(.*)/([gmi]*)$`)

// IsPattern reports whether s uses the /pattern/flags syntax.
func IsPattern(s string) bool {
	return patternSyntax.MatchString(s)
}

// Compile compiles a /pattern/flags string. The match is unanchored: the
// pattern matches if it is found anywhere in the name.
// The i flag makes it case-insensitive, m makes ^ and $ match at line
// boundaries, and g is accepted and ignored.
func Compile(s string) (*regexp.Regexp, error) {
	m := patternSyntax.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: %q is not a /pattern/ filter", ErrInvalidFilterSyntax, s)
	}
	body, flags := m[1], m[2]

	var prefix string
	if strings.Contains(flags, "i") {
		prefix += "i"
	}
	if strings.Contains(flags, "m") {
		prefix += "m"
	}
	if prefix != "" {
		body = "(?" + prefix + ")" + body
	}

	re, err := regexp.Compile(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFilterSyntax, s, err)
	}
	return re, nil
}

// Kind distinguishes literal from pattern filters.
type Kind int

const (
	KindLiteral Kind = iota
	KindPattern
)

func (k Kind) String() string {
	switch k {
	case KindPattern:
		return "pattern"
	default:
		return "literal"
	}
}

// Expr is a classified filter: either an exact name or a compiled pattern.
// The zero value is the empty literal.
type Expr struct {
	kind    Kind
	raw     string
	pattern *regexp.Regexp
}

// Literal returns a filter that matches names equal to s.
func Literal(s string) Expr {
	return Expr{kind: KindLiteral, raw: s}
}

// Pattern returns a filter backed by an already compiled expression.
func Pattern(re *regexp.Regexp) Expr {
	return Expr{kind: KindPattern, raw: "/" + re.String() + "/", pattern: re}
}

// Parse classifies s once and compiles it when it is a pattern.
func Parse(s string) (Expr, error) {
	if !IsPattern(s) {
		return Literal(s), nil
	}
	re, err := Compile(s)
	if err != nil {
		return Expr{}, err
	}
	return Expr{kind: KindPattern, raw: s, pattern: re}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// static filters.
func MustParse(s string) Expr {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

// Kind returns the filter kind.
func (e Expr) Kind() Kind { return e.kind }

// IsPattern reports whether e is a pattern filter.
func (e Expr) IsPattern() bool { return e.kind == KindPattern }

// IsEmpty reports whether e is the empty literal.
func (e Expr) IsEmpty() bool { return e.kind == KindLiteral && e.raw == "" }

// Value returns the literal text, or the raw /pattern/flags source.
func (e Expr) Value() string { return e.raw }

// Match reports whether name satisfies the filter.
func (e Expr) Match(name string) bool {
	if e.kind == KindPattern {
		return e.pattern.MatchString(name)
	}
	return name == e.raw
}

func (e Expr) String() string {
	return e.kind.String() + "(" + e.raw + ")"
}
