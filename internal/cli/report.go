package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"fs-delta-tracker/internal/database"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	addedStyle    = cellStyle.Foreground(lipgloss.Color("42"))
	modifiedStyle = cellStyle.Foreground(lipgloss.Color("214"))
	deletedStyle  = cellStyle.Foreground(lipgloss.Color("196"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// ScanReport is the document printed by `report show`.
type ScanReport struct {
	Scan    *database.ScanRun                            `json:"scan" yaml:"scan"`
	Totals  map[database.ChangeType]database.ChangeTotal `json:"changeTotals" yaml:"change_totals"`
	Changes []database.FileChange                        `json:"changes,omitempty" yaml:"changes,omitempty"`
}

func newReportCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show recorded scan runs and their changes",
	}
	cmd.PersistentFlags().StringVarP(&format, "format", "f", formatTable, "output format: table, json or yaml")
	cmd.AddCommand(newReportListCommand(a, &format), newReportShowCommand(a, &format))
	return cmd
}

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
}

func newReportListCommand(a *app, format *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent scan runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(*format); err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB(db, a.logger)

			runs, err := db.ListScanRuns(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch *format {
			case formatJSON:
				return writeJSON(out, runs)
			case formatYAML:
				return writeYAML(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no scan runs recorded")
				return nil
			}
			fmt.Fprintln(out, runsTable(runs, terminalWidth(out)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of scan runs to show")
	return cmd
}

func newReportShowCommand(a *app, format *string) *cobra.Command {
	var (
		changes string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "show SCAN_ID",
		Short: "Show one scan run with its change totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(*format); err != nil {
				return err
			}
			scanID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || scanID <= 0 {
				return fmt.Errorf("invalid scan id %q", args[0])
			}
			changeType := database.ChangeType(changes)
			if changes == "all" {
				changeType = ""
			} else if changes != "" && !changeType.Valid() {
				return fmt.Errorf("unknown change type %q (want all, added, modified or deleted)", changes)
			}

			ctx := cmd.Context()
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB(db, a.logger)

			run, err := db.GetScanRun(ctx, scanID)
			if err != nil {
				return err
			}
			totals, err := db.ChangeTotals(ctx, scanID)
			if err != nil {
				return err
			}
			report := ScanReport{Scan: run, Totals: totals}
			if changes != "" {
				if report.Changes, err = db.ListChanges(ctx, scanID, changeType, limit); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			switch *format {
			case formatJSON:
				return writeJSON(out, report)
			case formatYAML:
				return writeYAML(out, report)
			}
			printReport(out, report, terminalWidth(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&changes, "changes", "", "also list changed paths: all, added, modified or deleted")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum changed paths to list")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// terminalWidth returns the width of w when it is a terminal, else 0.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

func newTable(width int, headers ...string) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if width > 0 {
		t = t.Width(width)
	}
	return t
}

func runsTable(runs []database.ScanRun, width int) string {
	t := newTable(width, "ID", "ROOT", "STARTED", "FINISHED", "PATHS", "ADDED", "MODIFIED", "DELETED")
	for _, r := range runs {
		t.Row(
			strconv.FormatInt(r.ScanID, 10),
			r.ScanRoot,
			r.StartedAt.Local().Format(timeLayout),
			finishedString(&r),
			countString(r.TotalPathsCount),
			changeString(r.AddedFilesCount, r.NewDataMB),
			changeString(r.ModifiedFilesCount, r.ModifiedDataMB),
			changeString(r.RemovedFilesCount, r.DeletedDataMB),
		)
	}
	return t.Render()
}

func printReport(w io.Writer, r ScanReport, width int) {
	run := r.Scan
	field := func(label, value string) {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", label+":")), value)
	}

	field("Scan", strconv.FormatInt(run.ScanID, 10))
	field("Root", run.ScanRoot)
	field("Started", run.StartedAt.Local().Format(timeLayout))
	field("Finished", finishedString(run))
	if run.FinishedAt != nil {
		field("Duration", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String())
	}
	field("Paths", countString(run.TotalPathsCount))

	if len(run.Metadata) > 0 {
		keys := make([]string, 0, len(run.Metadata))
		for k := range run.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w)
		for _, k := range keys {
			field(k, run.Metadata[k])
		}
	}

	totals := newTable(width, "CHANGE", "FILES", "SIZE")
	for _, ct := range database.ChangeTypes {
		total := r.Totals[ct]
		totals.Row(string(ct), humanize.Comma(total.Count), humanize.IBytes(uint64(total.Bytes)))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, totals.Render())

	if len(r.Changes) == 0 {
		return
	}
	changes := newTable(width, "CHANGE", "PATH", "OLD SIZE", "NEW SIZE").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(r.Changes) {
				return cellStyle
			}
			return changeStyle(r.Changes[row].ChangeType)
		})
	for _, c := range r.Changes {
		changes.Row(string(c.ChangeType), c.Path, sizeString(c.OldSizeBytes), sizeString(c.NewSizeBytes))
	}
	fmt.Fprintln(w, changes.Render())
}

func changeStyle(ct database.ChangeType) lipgloss.Style {
	switch ct {
	case database.ChangeAdded:
		return addedStyle
	case database.ChangeModified:
		return modifiedStyle
	case database.ChangeDeleted:
		return deletedStyle
	}
	return cellStyle
}

func finishedString(r *database.ScanRun) string {
	if r.FinishedAt == nil {
		return "open"
	}
	return humanize.Time(*r.FinishedAt)
}

func countString(n *int64) string {
	if n == nil {
		return "-"
	}
	return humanize.Comma(*n)
}

func sizeString(n *int64) string {
	if n == nil {
		return "-"
	}
	return humanize.IBytes(uint64(*n))
}

// changeString renders a finalized count and its data volume, e.g. "12 (3.4 MiB)".
func changeString(count *int64, mb *float64) string {
	if count == nil {
		return "-"
	}
	if mb == nil {
		return humanize.Comma(*count)
	}
	return fmt.Sprintf("%s (%s)", humanize.Comma(*count), humanize.IBytes(uint64(*mb*1024*1024)))
}
