package loadtest

import (
	"fmt"
	"math"
	"slices"

	service "github.com/okian/propensity/internal/app"
	"github.com/okian/propensity/internal/domain/features"
)

// maxReportedIssues bounds the issues kept for the final report.
const maxReportedIssues = 10

// verifyResults checks every successful prediction against the model it
// was sent to and returns the issues found, capped at maxReportedIssues,
// with the total count.
func verifyResults(customers []Customer, models []service.ModelOption) ([]string, int) {
	byLabel := make(map[string]service.ModelOption, len(models))
	for _, m := range models {
		byLabel[m.Label] = m
	}

	var issues []string
	total := 0
	report := func(c Customer, format string, args ...any) {
		total++
		if len(issues) < maxReportedIssues {
			issues = append(issues, fmt.Sprintf("customer %d (%s): ", c.Index, c.Model)+fmt.Sprintf(format, args...))
		}
	}

	seen := make(map[string]int, len(customers))
	for _, c := range customers {
		p := c.Prediction
		if p == nil {
			continue
		}
		m := byLabel[c.Model]

		if p.Model != c.Model {
			report(c, "answered by model %q", p.Model)
		}
		if p.Identifier != m.Identifier {
			report(c, "identifier %q, want %q", p.Identifier, m.Identifier)
		}
		if p.Label != 0 && p.Label != 1 {
			report(c, "label %d is not a class", p.Label)
		}
		if p.Likely != (p.Label == 1) {
			report(c, "likely=%t disagrees with label %d", p.Likely, p.Label)
		}
		if p.Probability != nil {
			if v := *p.Probability; math.IsNaN(v) || v < 0 || v > 1 {
				report(c, "probability %v outside [0,1]", v)
			}
		}
		if slices.Contains(p.Features, features.Cluster) != m.UsesCluster {
			report(c, "cluster sent=%t, model uses cluster=%t", !m.UsesCluster, m.UsesCluster)
		}
		if p.RequestID == "" {
			report(c, "missing request id")
		} else if prev, dup := seen[p.RequestID]; dup {
			report(c, "request id %s reused from customer %d", p.RequestID, prev)
		} else {
			seen[p.RequestID] = c.Index
		}
	}
	return issues, total
}
