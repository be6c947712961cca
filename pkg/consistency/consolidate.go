package consistency

import (
	"sort"
)

// Consolidate merges per-chunk results and the cross-chunk result into one
// document verdict. Findings are taken only from results judged
// inconsistent, deduplicated by their sorted conflicting ids (first wins,
// unattributable findings dropped) and ordered by confidence then first id.
func Consolidate(chunkResults []AnalysisResult, cross AnalysisResult) AnalysisResult {
	var all []Inconsistency
	degraded := cross.Degraded
	for _, r := range chunkResults {
		degraded = degraded || r.Degraded
		if !r.IsConsistent {
			all = append(all, r.Inconsistencies...)
		}
	}
	if !cross.IsConsistent {
		all = append(all, cross.Inconsistencies...)
	}

	seen := make(map[string]bool, len(all))
	unique := make([]Inconsistency, 0, len(all))
	for _, inc := range all {
		key := inc.Key()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, inc)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		ri, rj := unique[i].Confidence.Rank(), unique[j].Confidence.Rank()
		if ri != rj {
			return ri < rj
		}
		return firstID(unique[i]) < firstID(unique[j])
	})

	return AnalysisResult{
		IsConsistent:              len(unique) == 0,
		Inconsistencies:           unique,
		TotalInconsistenciesFound: len(unique),
		Degraded:                  degraded,
	}
}

func firstID(inc Inconsistency) string {
	if len(inc.ConflictingReqs) == 0 {
		return ""
	}
	return inc.ConflictingReqs[0]
}
