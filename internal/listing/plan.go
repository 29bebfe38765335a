package listing

import (
	"fmt"
	"io"
	"strings"

	"github.com/dyluth/atelier/internal/detector"
	"github.com/dyluth/atelier/internal/impact"
	"github.com/dyluth/atelier/pkg/plan"
)

// FormatDetection writes one line per activated template, grouped by bucket,
// followed by the templates that were not activated.
func FormatDetection(w io.Writer, det *detector.Detection) {
	fmt.Fprintf(w, "Detection for typology '%s':\n\n", det.Typology)

	if det.Empty() {
		fmt.Fprintln(w, "No templates activated")
	}
	for _, group := range []struct {
		name       string
		candidates []detector.Candidate
	}{
		{"primary", det.Primary},
		{"complementary", det.Complementary},
		{"optional", det.Optional},
	} {
		for _, c := range group.candidates {
			fmt.Fprintf(w, "%-14s %-20s %.2f  %s\n",
				group.name, truncate(c.ID(), 20), c.Match.Score, orDash(strings.Join(c.Match.Matched, ",")))
		}
	}

	writeList(w, "Inactive", det.Inactive)
	writeList(w, "Discarded", det.Discarded)
	writeList(w, "Degraded (fallback served)", det.Degraded)

	fmt.Fprintf(w, "\nEstimated duration: %s\n", formatNumber(det.EstimatedDuration))
}

// FormatPlan writes the plan's tasks in execution order with totals.
func FormatPlan(w io.Writer, p *plan.ComposedPlan) {
	if p.Fallback != "" {
		fmt.Fprintf(w, "Plan composed from fallback (%s)\n\n", p.Fallback)
	}

	fmt.Fprintf(w, "%-4s %-22s %-28s %-10s %-6s %-9s %s\n",
		"POS", "ID", "NAME", "ROLE", "DUR", "COST", "DEPENDS ON")
	fmt.Fprintf(w, "%-4s %-22s %-28s %-10s %-6s %-9s %s\n",
		"----", "----------------------", "----------------------------", "----------", "------", "---------", "--------------------")

	for _, t := range p.Tasks {
		name := t.Name
		if t.ApprovalRequired {
			name += " *"
		}
		fmt.Fprintf(w, "%-4d %-22s %-28s %-10s %-6s %-9s %s\n",
			t.Position,
			truncate(t.ID, 22),
			truncate(name, 28),
			orDash(truncate(t.Role, 10)),
			formatNumber(t.Duration),
			formatNumber(t.Cost),
			orDash(strings.Join(t.DependsOn, ",")),
		)
	}

	fmt.Fprintf(w, "\n%d tasks in %d stages from %s\n", len(p.Tasks), len(p.Stages), strings.Join(p.SourceTemplateIDs, ", "))
	fmt.Fprintf(w, "Total duration: %s  Total cost: %s\n", formatNumber(p.TotalDuration), formatNumber(p.TotalCost))

	for _, a := range p.Alternates {
		fmt.Fprintf(w, "Merged %s into %s (similarity %.2f)\n", a.Task.ID, a.DuplicateOf, a.Score)
	}
	writeList(w, "Dropped dependencies", p.DroppedDependencies)
}

// FormatReport writes an impact report: verdict, deltas and findings.
func FormatReport(w io.Writer, r *impact.Report) {
	fmt.Fprintf(w, "Mutation: %s %s %s\n", r.Request.Op, r.Request.Entity, orDash(r.Request.TargetID))
	fmt.Fprintf(w, "Outcome: %s (can proceed: %t, requires confirmation: %t)\n",
		r.Outcome, r.CanProceed, r.RequiresConfirmation)

	if r.ProjectedFinishDelta != 0 || r.ProjectedCostDelta != 0 {
		fmt.Fprintf(w, "Projected finish delta: %+.1f  cost delta: %+.1f\n", r.ProjectedFinishDelta, r.ProjectedCostDelta)
	}

	if len(r.Findings) == 0 {
		fmt.Fprintln(w, "\nNo findings")
		return
	}
	fmt.Fprintln(w)
	for _, f := range r.Findings {
		fmt.Fprintf(w, "[%s] %s: %s\n", f.Severity, f.Category, f.Message)
	}
}

func writeList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s: %s\n", label, strings.Join(items, ", "))
}
