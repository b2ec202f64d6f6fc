package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"treasury/internal/export"
	"treasury/internal/format"
	"treasury/internal/report"
	"treasury/internal/services"
)

func newKindsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the available reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tTITLE\tGROUPED")
			for _, def := range report.Definitions() {
				fmt.Fprintf(tw, "%s\t%s\t%t\n", def.Slug, def.Title, def.Grouped)
			}
			return tw.Flush()
		},
	}
}

func newReportCommand(opts *options) *cobra.Command {
	var date string
	var abbreviate bool

	cmd := &cobra.Command{
		Use:   "report <kind>",
		Short: "Print a report as a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := report.Lookup(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s (see treasury-cli kinds)", err, args[0])
			}
			e, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}

			view, err := e.reports.Load(cmd.Context(), e.session, def.Slug, date)
			if err != nil {
				return err
			}
			if view.Notice != "" {
				return errors.New(view.Notice)
			}
			for _, w := range view.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			return printView(cmd.OutOrStdout(), view, abbreviate)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "report date, YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("date")
	cmd.Flags().BoolVar(&abbreviate, "abbreviate", false, "show amounts as K, L, Cr and Ar")

	return cmd
}

func newExportCommand(opts *options) *cobra.Command {
	var date string
	var out string

	cmd := &cobra.Command{
		Use:   "export <kind>",
		Short: "Write a report to an xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := report.Lookup(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s (see treasury-cli kinds)", err, args[0])
			}
			e, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}

			_, table, err := e.reports.ExportTable(cmd.Context(), e.session, def.Slug, date)
			if err != nil {
				return err
			}

			for _, w := range table.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			if out == "" {
				out = export.FileName(def.Slug, date)
			}
			if err := writeWorkbook(out, def, table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", len(table.Rows), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "report date, YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("date")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <kind>-<date>.xlsx)")

	return cmd
}

func writeWorkbook(path string, def report.Definition, table export.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WriteXLSX(f, export.SheetFor(def), table); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// printView writes the view as aligned columns. With abbreviate, currency
// amounts and their totals use the K/L/Cr/Ar ladder.
func printView(w io.Writer, v *report.View, abbreviate bool) error {
	if v.Empty() {
		_, err := fmt.Fprintf(w, "%s for %s: no data\n", v.Kind.Title, v.Date)
		return err
	}

	fmt.Fprintf(w, "%s, %s\n\n", v.Kind.Title, v.Date)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	headers := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		headers[i] = c.Header
	}
	writeLine(tw, headers)

	for i, sec := range v.Sections {
		items := sectionItems(v.Payload, i)
		if sec.Key != "" {
			writeLine(tw, []string{sec.Key})
		}
		for j, row := range sec.Rows {
			writeLine(tw, rowText(v, row, items, j, abbreviate))
		}
		if sec.Total != nil {
			writeLine(tw, totalText(v, *sec.Total, items, abbreviate))
		}
	}
	if v.GrandTotal != nil {
		writeLine(tw, totalText(v, *v.GrandTotal, v.Payload.All(), abbreviate))
	}
	return tw.Flush()
}

func writeLine(w io.Writer, cells []string) {
	fmt.Fprintln(w, strings.Join(cells, "\t")+"\t")
}

func sectionItems(p report.Payload, i int) []report.LineItem {
	if !p.Grouped {
		return p.Items
	}
	if i < len(p.Groups) {
		return p.Groups[i].Items
	}
	return nil
}

func rowText(v *report.View, row report.Row, items []report.LineItem, j int, abbreviate bool) []string {
	out := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = c.Text
		col := v.Columns[i]
		if abbreviate && col.Format == report.FormatCurrency && j < len(items) && !c.Invalid {
			out[i] = abbreviated(items[j].Number(col.Field), c.Text)
		}
	}
	return out
}

func totalText(v *report.View, row report.Row, items []report.LineItem, abbreviate bool) []string {
	out := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = c.Text
	}
	if !abbreviate {
		return out
	}
	totals, err := report.Sum(items, v.Kind.Totals)
	if err != nil {
		return out
	}
	for i, col := range v.Columns {
		if col.Format == report.FormatCurrency && v.Kind.IsTotal(col.Field) {
			out[i] = abbreviated(totals.Get(col.Field), out[i])
		}
	}
	return out
}

func abbreviated(n float64, fallback string) string {
	s, err := format.Abbreviate(n)
	if err != nil {
		return fallback
	}
	return s
}

// exitCode maps command errors to process exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, report.ErrUnknownKind), errors.Is(err, services.ErrMissingDate):
		return 2
	default:
		return 1
	}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	LoadEnvFile()
	return exitCode(NewRootCommand().Execute())
}
