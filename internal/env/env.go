package env

import (
	"os"
	"strings"
)

// Env composes the environment for launched JMeter processes. The daemon's
// own environment is the base (JMeter needs JAVA_HOME and PATH), overridden
// by configured entries such as HEAP or JVM_ARGS.
type Env struct {
	overrides []string
}

// New builds an Env from configured "K=V" override entries.
func New(overrides []string) *Env {
	return &Env{overrides: overrides}
}

// Environ returns the composed environment in "K=V" form. Overrides replace
// inherited values of the same key; ${VAR} references in override values are
// expanded against the composed map (simple expansion, no recursion).
func (e *Env) Environ() []string {
	m := make(map[string]string)
	var order []string
	put := func(kv string) {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			return // skip malformed entries and empty keys
		}
		k, v := kv[:i], kv[i+1:]
		if _, seen := m[k]; !seen {
			order = append(order, k)
		}
		m[k] = v
	}
	for _, kv := range os.Environ() {
		put(kv)
	}
	for _, kv := range e.overrides {
		put(kv)
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
