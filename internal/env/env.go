// Package env composes the environment handed to the tool process.
package env

import (
	"os"
	"sort"
	"strings"
)

// Compose starts from base (usually os.Environ()) and applies overrides in
// order. Override values may reference ${VAR} from the composed set; the
// reference is resolved once, without recursion. Unknown references expand
// to the empty string. The result is sorted by key.
func Compose(base []string, overrides []string) []string {
	m := make(map[string]string, len(base)+len(overrides))
	for _, kv := range base {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}
	// resolve overrides against the environment as it stood before them,
	// so FOO=${FOO}:extra appends to the inherited value
	pending := make([][2]string, 0, len(overrides))
	for _, kv := range overrides {
		if k, v, ok := split(kv); ok {
			pending = append(pending, [2]string{k, v})
		}
	}
	for _, p := range pending {
		m[p[0]] = expand(p[1], m)
	}

	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// FromOS is Compose over the current process environment.
func FromOS(overrides []string) []string {
	return Compose(os.Environ(), overrides)
}

func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

// expand replaces ${VAR} only; a bare $VAR is left untouched because tool
// arguments routinely carry literal dollars.
func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(m[s[i+2:i+2+j]])
		s = s[i+2+j+1:]
	}
}
