package listing

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dyluth/atelier/pkg/catalog"
)

// FormatTable writes templates as a formatted table to the provided writer.
// The table includes columns: ID, TYPOLOGY, CATEGORY, PRIO, TASKS, BASE and KEYWORDS (truncated).
// Returns the number of templates formatted.
func FormatTable(w io.Writer, templates []*catalog.TemplateDescriptor) int {
	if len(templates) == 0 {
		fmt.Fprintln(w, "No templates found")
		return 0
	}

	fmt.Fprintf(w, "%-20s %-14s %-14s %-5s %-5s %-7s %s\n",
		"ID", "TYPOLOGY", "CATEGORY", "PRIO", "TASKS", "BASE", "KEYWORDS")
	fmt.Fprintf(w, "%-20s %-14s %-14s %-5s %-5s %-7s %s\n",
		"--------------------", "--------------", "--------------", "-----", "-----", "-------", "------------------------------")

	for _, t := range templates {
		fmt.Fprintf(w, "%-20s %-14s %-14s %-5d %-5d %-7s %s\n",
			truncate(t.ID, 20),
			truncate(t.Typology, 14),
			orDash(truncate(t.Category, 14)),
			t.Priority,
			t.TaskCount(),
			formatNumber(t.BaseDuration),
			formatKeywords(t.Keywords),
		)
	}

	countMsg := "template"
	if len(templates) != 1 {
		countMsg = "templates"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(templates), countMsg)

	return len(templates)
}

// FormatJSONL writes templates as line-delimited JSON (JSONL) to the provided writer.
// Each template is written as a single JSON object on its own line.
func FormatJSONL(w io.Writer, templates []*catalog.TemplateDescriptor) error {
	for _, t := range templates {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal template to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// FormatSingleJSON writes v as pretty-printed JSON followed by a newline.
func FormatSingleJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)

	return nil
}

// formatKeywords joins keywords and truncates to 30 characters. Empty lists return "-".
func formatKeywords(keywords []string) string {
	if len(keywords) == 0 {
		return "-"
	}
	return truncate(strings.Join(keywords, ","), 30)
}

// formatNumber prints whole numbers without decimals.
func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sortByPriority(templates []*catalog.TemplateDescriptor) {
	sort.SliceStable(templates, func(i, j int) bool {
		if templates[i].Priority != templates[j].Priority {
			return templates[i].Priority < templates[j].Priority
		}
		return templates[i].ID < templates[j].ID
	})
}
