// Package options holds the interface shared by every option group and the
// flag-name helper they use.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group bound to a config section.
type IOptions interface {
	// Validate reports every problem found, not just the first.
	Validate() []error

	// AddFlags registers the group's flags. Flag names equal config keys.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Join builds a dotted flag-name prefix: Join("a", "b") is "a.b." and Join()
// is "".
func Join(prefixes ...string) string {
	var b strings.Builder
	for _, p := range prefixes {
		if p = strings.Trim(p, "."); p == "" {
			continue
		}
		b.WriteString(p)
		b.WriteByte('.')
	}
	return b.String()
}
