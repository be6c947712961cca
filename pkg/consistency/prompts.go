package consistency

import (
	"strings"

	"github.com/zen-systems/reqlens/pkg/requirements"
)

const verdictFormat = `Respond with a JSON object of the form:
{"is_consistent": true or false, "inconsistencies": [{"conflicting_reqs": ["R1", "R2"], "description": "...", "resolution": "...", "confidence": "high|medium|low"}]}

`

// ChunkPrompt asks for inconsistencies among a chunk of requirements.
func ChunkPrompt(reqs []requirements.Requirement) string {
	var b strings.Builder
	b.WriteString("You are a requirements analysis expert. Analyze these requirements for inconsistencies:\n\n")
	writeLines(&b, reqs)
	b.WriteString("\n\n")
	b.WriteString(verdictFormat)
	b.WriteString("Only output valid JSON.")
	return b.String()
}

// PairPrompt asks whether two requirements are consistent with each other.
func PairPrompt(a, b requirements.Requirement) string {
	var sb strings.Builder
	sb.WriteString("Analyze these two requirements for consistency:\n\n")
	writeLines(&sb, []requirements.Requirement{a, b})
	sb.WriteString("\n\n")
	sb.WriteString(verdictFormat)
	sb.WriteString("Only output valid JSON.")
	return sb.String()
}

func writeLines(b *strings.Builder, reqs []requirements.Requirement) {
	for i, r := range reqs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(r.String())
	}
}
