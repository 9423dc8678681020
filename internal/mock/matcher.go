package mock

import (
	"fmt"
	"regexp"
	"strings"
)

// Matching tiers, in precedence order. When registrations from multiple
// tiers match the same invocation, the lowest tier wins; within a tier the
// most recent registration wins.
const (
	tierExact = iota
	tierPrefix
	tierPattern
)

// Matcher associates a registered behavior with command invocations.
type Matcher interface {
	tier() int
	matches(executable string, argv []string, cmdline string) bool
	String() string
}

// TierName reports the precedence tier of a matcher as a label string.
func TierName(m Matcher) string {
	switch m.tier() {
	case tierExact:
		return "exact"
	case tierPrefix:
		return "prefix"
	case tierPattern:
		return "pattern"
	default:
		return "unknown"
	}
}

// Key normalizes an invocation into a registry lookup key. Two invocations
// with the same executable and argument vector always produce the same key;
// argument order is significant.
func Key(executable string, argv []string) string {
	parts := make([]string, 0, len(argv)+1)
	parts = append(parts, executable)
	parts = append(parts, argv...)
	return strings.Join(parts, "\x00")
}

// CommandLine reconstructs a display form of an invocation. Arguments
// containing whitespace are quoted so the result round-trips visually.
func CommandLine(executable string, argv []string) string {
	var sb strings.Builder
	sb.WriteString(executable)
	for _, arg := range argv {
		sb.WriteByte(' ')
		if strings.ContainsAny(arg, " \t\"") {
			fmt.Fprintf(&sb, "%q", arg)
		} else {
			sb.WriteString(arg)
		}
	}
	return sb.String()
}

type exactMatcher struct {
	executable string
	argv       []string
	key        string
}

// Exact matches an invocation whose executable and full argument vector are
// identical to the ones given. An empty argv matches bare invocations of the
// executable.
func Exact(executable string, argv ...string) Matcher {
	return &exactMatcher{
		executable: executable,
		argv:       append([]string(nil), argv...),
		key:        Key(executable, argv),
	}
}

func (m *exactMatcher) tier() int { return tierExact }

func (m *exactMatcher) matches(executable string, argv []string, _ string) bool {
	return Key(executable, argv) == m.key
}

func (m *exactMatcher) String() string {
	return "exact(" + CommandLine(m.executable, m.argv) + ")"
}

type prefixMatcher struct {
	executable string
	argv       []string
}

// Prefix matches an invocation of the given executable whose argument vector
// starts with the given arguments.
func Prefix(executable string, argv ...string) Matcher {
	return &prefixMatcher{
		executable: executable,
		argv:       append([]string(nil), argv...),
	}
}

func (m *prefixMatcher) tier() int { return tierPrefix }

func (m *prefixMatcher) matches(executable string, argv []string, _ string) bool {
	if executable != m.executable || len(argv) < len(m.argv) {
		return false
	}
	for i, arg := range m.argv {
		if argv[i] != arg {
			return false
		}
	}
	return true
}

func (m *prefixMatcher) String() string {
	return "prefix(" + CommandLine(m.executable, m.argv) + ")"
}

type patternMatcher struct {
	expr *regexp.Regexp
}

// Pattern matches an invocation whose reconstructed command line matches the
// given regular expression. A malformed expression is rejected here, at
// registration time, never at lookup time.
func Pattern(expr string) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile matcher pattern %q: %w", expr, err)
	}
	return &patternMatcher{expr: re}, nil
}

// MustPattern is like Pattern but panics on a malformed expression. Intended
// for registrations with constant expressions.
func MustPattern(expr string) Matcher {
	m, err := Pattern(expr)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *patternMatcher) tier() int { return tierPattern }

func (m *patternMatcher) matches(_ string, _ []string, cmdline string) bool {
	return m.expr.MatchString(cmdline)
}

func (m *patternMatcher) String() string {
	return "pattern(" + m.expr.String() + ")"
}
