package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/report"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Audit the raw table and print the per-variable findings",
		Long: "Audit checks every documented variable for nulls, undocumented\n" +
			"codes, non-numeric cells, and fence outliers. The dictionary is\n" +
			"parsed first when its artifacts are missing.",
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			pctx, reg, err := newStageRuntime(cfg)
			if err != nil {
				return err
			}
			dictionary, err := reg.Resolve("dictionary", nil)
			if err != nil {
				return err
			}
			done, err := dictionary.IsComplete(pctx)
			if err != nil {
				return err
			}
			if !done {
				if _, err := runRegisteredStage(pctx, reg, "dictionary"); err != nil {
					return err
				}
			}
			if _, err := runRegisteredStage(pctx, reg, "audit"); err != nil {
				return err
			}
			var findings report.Audit
			if _, err := pctx.Artifacts.ReadJSON(artifact.AuditJSON, &findings); err != nil {
				return err
			}
			printAuditTable(cmd.OutOrStdout(), findings)
			return nil
		},
	}
}

func printAuditTable(w io.Writer, findings report.Audit) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tKIND\tNULLS\tINVALID\tOUTLIERS\tFENCES")
	for _, v := range findings.Variables {
		fences := ""
		if v.Bounds != nil {
			fences = fmt.Sprintf("[%.6g, %.6g]", v.Bounds.Lower, v.Bounds.Upper)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", v.Name, v.Kind, v.Nulls, v.Invalid, v.Outliers, fences)
	}
	tw.Flush()
	nulls, invalid, outliers := findings.Totals()
	fmt.Fprintf(w, "%d rows, %d columns: %d nulls, %d invalid, %d outliers\n",
		findings.Rows, findings.Columns, nulls, invalid, outliers)
	if len(findings.Undocumented) > 0 {
		fmt.Fprintf(w, "undocumented columns: %v\n", findings.Undocumented)
	}
	if len(findings.Missing) > 0 {
		fmt.Fprintf(w, "documented but absent: %v\n", findings.Missing)
	}
}
