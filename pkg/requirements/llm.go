package requirements

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/zen-systems/reqlens/pkg/oracle"
)

// ErrSyntheticExtraction is returned when the oracle answered without a model.
var ErrSyntheticExtraction = errors.New("oracle returned a synthetic response")

// ExtractionPrompt asks an oracle to list the functional requirements in text.
func ExtractionPrompt(text string) string {
	return "Extract each functional requirement from the text below.\n" +
		"Output as a JSON array of objects with fields `id` (R1, R2, …) and `text`.\n" +
		"Only output valid JSON.\n\n" + text
}

// ExtractWithOracle asks o to extract requirements from text. Items without
// text are skipped, missing ids are numbered by array position, and
// duplicate ids are made unique.
func ExtractWithOracle(ctx context.Context, o oracle.Oracle, text string) ([]Requirement, error) {
	c, err := o.Complete(ctx, ExtractionPrompt(text))
	if err != nil {
		return nil, err
	}
	if c.Synthetic {
		return nil, ErrSyntheticExtraction
	}

	body := oracle.StripFences(c.Text)
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("extraction response is not valid JSON")
	}
	doc := gjson.Parse(body)
	if !doc.IsArray() {
		return nil, fmt.Errorf("extraction response is not a JSON array")
	}

	var reqs []Requirement
	doc.ForEach(func(key, item gjson.Result) bool {
		t := strings.TrimSpace(item.Get("text").String())
		if t == "" {
			return true
		}
		id := strings.TrimSpace(item.Get("id").String())
		if id == "" {
			id = nextID(int(key.Int()))
		}
		reqs = append(reqs, New(id, t))
		return true
	})
	return Uniquify(reqs), nil
}
