// Package template substitutes %Name% placeholders in engine scripts.
//
// Substitution is plain text replacement with no escaping: a token whose
// name is not known is passed through verbatim, so literal percent signs
// in engine syntax must not form a %Name% pair with a known name.
package template

import (
	"sort"
	"strings"
)

// Built-in placeholder names.
const (
	FirstPathConfiguration = "FirstPathConfiguration"
	Potential              = "Potential"
)

// Values maps placeholder names to their replacement text.
type Values map[string]string

// Render replaces every %Name% token for which vals has an entry.
func Render(script string, vals Values) string {
	if len(vals) == 0 || !strings.Contains(script, "%") {
		return script
	}
	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, "%"+name+"%", vals[name])
	}
	return strings.NewReplacer(pairs...).Replace(script)
}

// Lines renders a script and splits it into engine commands, dropping blank
// lines.
func Lines(script string, vals Values) []string {
	var out []string
	for _, line := range strings.Split(Render(script, vals), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
