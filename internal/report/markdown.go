package report

import (
	"fmt"
	"strings"

	"github.com/amesworks/groundwork/internal/table"
)

// Markdown renders the audit as a readable report body. The artifact store
// adds the provenance frontmatter when the document is written.
func (a Audit) Markdown() []byte {
	var b strings.Builder
	nulls, invalid, outliers := a.Totals()

	b.WriteString("# Audit Findings\n\n")
	fmt.Fprintf(&b, "%d rows and %d columns audited against %d definitions: %d nulls, %d invalid values, %d outliers.\n",
		a.Rows, a.Columns, len(a.Variables), nulls, invalid, outliers)
	fmt.Fprintf(&b, "Outlier fences are Tukey fences at %s times the IQR.\n", table.FormatFloat(a.FenceFactor))

	b.WriteString("\n## Variables\n\n")
	b.WriteString("| Variable | Kind | Nulls | Invalid | Outliers |\n")
	b.WriteString("| --- | --- | ---: | ---: | ---: |\n")
	for _, v := range a.Variables {
		outlierCell := "-"
		if v.Kind.Quantitative() {
			outlierCell = fmt.Sprintf("%d", v.Outliers)
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %s |\n", v.Name, v.Kind, v.Nulls, v.Invalid, outlierCell)
	}

	if section := a.invalidSection(); section != "" {
		b.WriteString(section)
	}
	if section := a.fenceSection(); section != "" {
		b.WriteString(section)
	}
	b.WriteString(a.driftSection())
	return []byte(b.String())
}

func (a Audit) invalidSection() string {
	var b strings.Builder
	for _, v := range a.Variables {
		if len(v.InvalidValues) == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", v.Name, strings.Join(v.InvalidValues, ", "))
	}
	if b.Len() == 0 {
		return ""
	}
	return "\n## Invalid values\n\n" + b.String()
}

func (a Audit) fenceSection() string {
	var b strings.Builder
	for _, v := range a.Variables {
		if v.Bounds == nil || v.Outliers == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s: %d outside [%s, %s] (q1 %s, q3 %s)\n",
			v.Name, v.Outliers,
			table.FormatFloat(v.Bounds.Lower), table.FormatFloat(v.Bounds.Upper),
			table.FormatFloat(v.Bounds.Q1), table.FormatFloat(v.Bounds.Q3))
	}
	if b.Len() == 0 {
		return ""
	}
	return "\n## Outlier fences\n\n" + b.String()
}

func (a Audit) driftSection() string {
	if len(a.Undocumented) == 0 && len(a.Missing) == 0 {
		return "\n## Column drift\n\nDictionary and table columns agree.\n"
	}
	var b strings.Builder
	b.WriteString("\n## Column drift\n")
	if len(a.Undocumented) > 0 {
		b.WriteString("\nTable columns without a definition:\n\n")
		for _, name := range a.Undocumented {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}
	if len(a.Missing) > 0 {
		b.WriteString("\nDocumented variables missing from the table:\n\n")
		for _, name := range a.Missing {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}
	return b.String()
}
