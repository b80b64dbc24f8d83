package topics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Mapping resolves a raw topic to its canonical topic.
type Mapping map[string]string

// Canonical looks up a raw topic, falling back to its own canonical form for
// anything the mapping does not know.
func (m Mapping) Canonical(raw string) string {
	key := CleanTopic(raw)
	if key == "" {
		return ""
	}
	if v, ok := m[key]; ok {
		return v
	}
	return Canonical(key)
}

type Normalizer struct {
	Oracle  Canonicalizer
	Timeout time.Duration
}

func NewNormalizer(oracle Canonicalizer, timeout time.Duration) *Normalizer {
	if oracle == nil {
		oracle = IdentityCanonicalizer{}
	}
	return &Normalizer{Oracle: oracle, Timeout: timeout}
}

// Normalize calls the oracle once with the full topic set. Every input key is
// present in the result; keys the oracle omitted or failed on map to
// themselves. Oracle failure degrades to exact-string matching and is never
// returned to the caller.
func (n *Normalizer) Normalize(ctx context.Context, raw []string) Mapping {
	keys := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		k := CleanTopic(r)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	mapping := make(Mapping, len(keys))
	if len(keys) == 0 {
		return mapping
	}

	callCtx := ctx
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}

	oracle, err := n.Oracle.Canonicalize(callCtx, keys)
	if err != nil {
		log.Warn().Err(err).Int("topics", len(keys)).Msg("topic canonicalization failed, using identity mapping")
		oracle = nil
	}

	// The oracle may answer with differently cased keys.
	lookup := make(map[string]string, len(oracle))
	for k, v := range oracle {
		lookup[CleanTopic(k)] = v
	}

	fallbacks := 0
	for _, k := range keys {
		canon := ""
		if v, ok := lookup[k]; ok {
			canon = Canonical(v)
		}
		if canon == "" {
			canon = Canonical(k)
			fallbacks++
		}
		mapping[k] = canon
	}

	if err == nil && fallbacks > 0 {
		log.Debug().Int("fallbacks", fallbacks).Int("topics", len(keys)).Msg("oracle omitted some topics")
	}
	return mapping
}
