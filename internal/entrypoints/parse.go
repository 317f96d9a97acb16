package entrypoints

import (
	"fmt"
	"strings"

	"github.com/vantage-dev/jvmrta/pkg/rta"
)

// Parse reads the inverse of rta.MethodKey.String(): "class#name(desc)rtype".
func Parse(raw string) (rta.MethodKey, error) {
	class, rest, ok := strings.Cut(raw, "#")
	if !ok || class == "" {
		return rta.MethodKey{}, fmt.Errorf("entrypoints: %q is missing a '#' separating class from method", raw)
	}
	paren := strings.IndexByte(rest, '(')
	if paren < 0 {
		return rta.MethodKey{}, fmt.Errorf("entrypoints: %q is missing a '(' starting the method descriptor", raw)
	}
	name := rest[:paren]
	desc := rest[paren:]
	if name == "" || desc == "" {
		return rta.MethodKey{}, fmt.Errorf("entrypoints: %q has an empty name or descriptor", raw)
	}
	return rta.MethodKey{Class: class, Name: name, Desc: desc}, nil
}
