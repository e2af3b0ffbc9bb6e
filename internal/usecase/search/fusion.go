package search

import (
	"sort"

	domsearch "github.com/caelum-cloud/geosearch/internal/domain/search"
)

// fuse merges the lexical and semantic candidate lists into one ranked list.
//
// Lexical scores are engine-native and unbounded, so they are normalized by
// the leg's maximum before mixing. Semantic scores are cosine similarities
// already on [0,1] (negatives clamp to zero). The fused score is the convex
// combination weighted by w:
//
//	fused = w * lexical/lexMax + (1-w) * max(0, semantic)
//
// Candidates below searchThreshold are dropped, candidates at or above
// confidentThreshold form a tier ordered ahead of the rest. Within a tier
// the order is fused descending, ID ascending on ties.
//
// In degraded mode (no semantic leg) the fused score is the normalized
// lexical score alone and the cosine-scale thresholds do not apply.
func fuse(
	lexical, semantic []domsearch.Candidate,
	w, searchThreshold, confidentThreshold float64,
	degraded bool,
) []domsearch.Candidate {
	var lexMax float64
	for _, c := range lexical {
		if c.Lexical > lexMax {
			lexMax = c.Lexical
		}
	}

	merged := make(map[string]*domsearch.Candidate, len(lexical)+len(semantic))
	for i := range lexical {
		c := lexical[i]
		merged[c.ID] = &c
	}
	for i := range semantic {
		c := semantic[i]
		if existing, ok := merged[c.ID]; ok {
			existing.Semantic = c.Semantic
			if existing.Fields == nil {
				existing.Fields = c.Fields
			}
		} else {
			merged[c.ID] = &c
		}
	}

	out := make([]domsearch.Candidate, 0, len(merged))
	for _, c := range merged {
		var lexNorm float64
		if lexMax > 0 {
			lexNorm = c.Lexical / lexMax
		}
		sem := c.Semantic
		if sem < 0 {
			sem = 0
		}

		if degraded {
			c.Fused = lexNorm
		} else {
			c.Fused = w*lexNorm + (1-w)*sem
			if c.Fused < searchThreshold {
				continue
			}
		}
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i], out[j]
		if !degraded {
			confI := ci.Fused >= confidentThreshold
			confJ := cj.Fused >= confidentThreshold
			if confI != confJ {
				return confI
			}
		}
		if ci.Fused != cj.Fused {
			return ci.Fused > cj.Fused
		}
		return ci.ID < cj.ID
	})

	return out
}

// paginate slices the fused list to the requested window.
func paginate(candidates []domsearch.Candidate, offset, limit int) []domsearch.Candidate {
	if offset >= len(candidates) {
		return nil
	}
	candidates = candidates[offset:]
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
