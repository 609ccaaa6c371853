package analyzer

import (
	"bytes"
	"text/template"

	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/internal/domain/property"
	"github.com/fairclaim/protest-engine/pkg/errors"
)

const systemPrompt = `You are a residential property tax consultant preparing ` +
	`evidence for an appraisal protest. You pick comparable properties the way ` +
	`an appraisal review board expects: similar age, similar size, same ` +
	`neighborhood, adjusted values on an equal footing with the subject. ` +
	`Respond with YAML only, no prose outside the YAML document.`

// promptTemplate renders the subject and its adjusted candidates.  The model
// must answer with a YAML document carrying top_comps and excluded lists.
var promptTemplate = template.Must(template.New("analysis").Parse(`Subject property:
  account: "{{.Subject.Account}}"
  address: {{.Subject.SiteAddress}}
  year_improved: {{.Subject.YearImproved}}
  building_sqft: {{.Subject.BuildingSqFt}}
  appraised_value: {{.Subject.TotalAppraisedValue}}

Adjusted candidates from the same neighborhood:
{{- range .Candidates}}
  - account: "{{.Candidate.Account}}"
    address: {{.Candidate.Address}}
    year_improved: {{.Candidate.YearImproved}}
    building_sqft: {{.Candidate.BuildingSqFt}}
    total_adjusted_value: {{.TotalAdjustedValue}}
{{- end}}

Select the strongest comparables that support a lower assessment for the
subject. Exclude candidates that would weaken the protest and say why.

Answer with exactly this YAML shape:

top_comps:
  - rank: 1
    acct: "<account>"
    address: "<address>"
    adjusted_value: <dollars>
    rationale: "<one sentence>"
excluded:
  - acct: "<account>"
    note: "<one sentence>"
`))

type promptData struct {
	Subject    property.SubjectProperty
	Candidates []comparable.Adjustment
}

// BuildPrompt renders the user prompt for one analysis request.
func BuildPrompt(subject property.SubjectProperty, candidates []comparable.Adjustment) (string, error) {
	var buf bytes.Buffer
	err := promptTemplate.Execute(&buf, promptData{Subject: subject, Candidates: candidates})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "render analysis prompt")
	}
	return buf.String(), nil
}
