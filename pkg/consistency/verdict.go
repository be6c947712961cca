package consistency

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/zen-systems/reqlens/pkg/oracle"
)

// ParseVerdict decodes an oracle consistency verdict. A missing
// is_consistent defaults to true and a missing inconsistencies list to
// empty. Errors wrap ErrMalformedResponse.
func ParseVerdict(raw string) (AnalysisResult, error) {
	body := oracle.StripFences(raw)
	if !gjson.Valid(body) {
		return AnalysisResult{}, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
	}
	doc := gjson.Parse(body)
	if !doc.IsObject() {
		return AnalysisResult{}, fmt.Errorf("%w: expected a JSON object, got %s", ErrMalformedResponse, doc.Type)
	}

	res := AnalysisResult{IsConsistent: true, Inconsistencies: []Inconsistency{}}
	if v := doc.Get("is_consistent"); v.Exists() {
		res.IsConsistent = v.Bool()
	}

	list := doc.Get("inconsistencies")
	if list.Exists() && !list.IsArray() {
		return AnalysisResult{}, fmt.Errorf("%w: inconsistencies is not a list", ErrMalformedResponse)
	}
	list.ForEach(func(_, item gjson.Result) bool {
		res.Inconsistencies = append(res.Inconsistencies, parseInconsistency(item))
		return true
	})

	res.TotalInconsistenciesFound = len(res.Inconsistencies)
	return res, nil
}

func parseInconsistency(item gjson.Result) Inconsistency {
	inc := Inconsistency{
		Description: item.Get("description").String(),
		Resolution:  item.Get("resolution").String(),
		Confidence:  Confidence(strings.ToLower(strings.TrimSpace(item.Get("confidence").String()))),
	}

	ids := item.Get("conflicting_reqs")
	switch {
	case ids.IsArray():
		ids.ForEach(func(_, id gjson.Result) bool {
			if s := strings.TrimSpace(id.String()); s != "" {
				inc.ConflictingReqs = append(inc.ConflictingReqs, s)
			}
			return true
		})
	case ids.Type == gjson.String && strings.TrimSpace(ids.String()) != "":
		inc.ConflictingReqs = []string{strings.TrimSpace(ids.String())}
	}
	return inc
}
