// Package suppress implements allow-list suppression of analysis
// findings, adapted from the teacher's nolint-comment checker: there a
// //nolint:unusedfunc comment silences one Go function, here an
// explicit (class, method signature) entry, or the method's own
// AccSynthetic flag, silences whatever downstream finding (e.g. an
// unreachable-method report over RTA's result) would otherwise flag a
// compiler-generated or deliberately-allow-listed member.
package suppress

import (
	"fmt"
	"strings"

	"github.com/vantage-dev/jvmrta/pkg/classfile"
	"github.com/vantage-dev/jvmrta/pkg/rta"
)

// Suppression records why one method is exempt from reporting.
type Suppression struct {
	Reason string
}

// Checker holds the allow-list loaded from config plus the synthetic-
// flag rule, and answers IsSuppressed queries against it.
type Checker struct {
	byKey map[rta.MethodKey]Suppression
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{byKey: make(map[rta.MethodKey]Suppression)}
}

// Load parses "class#name(desc) reason..." lines (one per allow-listed
// method, reason optional) the way the teacher's Load parses a file's
// comments, except the directives here come from a config list rather
// than being scraped out of source comments.
func (c *Checker) Load(directives []string) error {
	for _, d := range directives {
		d = strings.TrimSpace(d)
		if d == "" || strings.HasPrefix(d, "#") {
			continue
		}
		key, reason, err := parseDirective(d)
		if err != nil {
			return fmt.Errorf("suppress: %w", err)
		}
		c.byKey[key] = Suppression{Reason: reason}
	}
	return nil
}

func parseDirective(d string) (rta.MethodKey, string, error) {
	spec, reason, _ := strings.Cut(d, " ")
	class, rest, ok := strings.Cut(spec, "#")
	if !ok || class == "" {
		return rta.MethodKey{}, "", fmt.Errorf("%q is missing a '#' separating class from method", d)
	}
	paren := strings.IndexByte(rest, '(')
	if paren < 0 {
		return rta.MethodKey{}, "", fmt.Errorf("%q is missing a '(' starting the method descriptor", d)
	}
	return rta.MethodKey{Class: class, Name: rest[:paren], Desc: rest[paren:]}, strings.TrimSpace(reason), nil
}

// IsSuppressed reports whether key should be exempt from reporting,
// either because it was explicitly allow-listed or because m carries
// the compiler-generated (synthetic) access flag.
func (c *Checker) IsSuppressed(key rta.MethodKey, m *classfile.MethodInfo) (Suppression, bool) {
	if s, ok := c.byKey[key]; ok {
		return s, true
	}
	if m != nil && m.AccessFlags&classfile.AccSynthetic != 0 {
		return Suppression{Reason: "synthetic"}, true
	}
	return Suppression{}, false
}
