package pipeline

import (
	"fmt"

	"scribeflow/internal/stt"
)

// chain is the ordered list of providers one job may try.
type chain struct {
	providers []stt.Provider
	// pinned chains hold exactly one explicitly requested engine and never
	// fall back.
	pinned bool
}

// selectChain is the single place the fallback policy is decided. A hint
// pins the job to that engine; otherwise the configured default order is used.
func (s *Service) selectChain(hint string) (chain, error) {
	if hint != "" {
		p, ok := s.opts.Registry.Lookup(hint)
		if !ok {
			return chain{}, fmt.Errorf("%w: %s", ErrEngineNotConfigured, hint)
		}
		return chain{providers: []stt.Provider{p}, pinned: true}, nil
	}

	var providers []stt.Provider
	for _, name := range s.DefaultChain() {
		p, _ := s.opts.Registry.Lookup(name)
		providers = append(providers, p)
	}
	return chain{providers: providers}, nil
}

func (c chain) names() []string {
	out := make([]string, len(c.providers))
	for i, p := range c.providers {
		out[i] = p.Name()
	}
	return out
}
