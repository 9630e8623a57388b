package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/trackline/trackline"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect project...",
	Short: "Print a summary of projects",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for i, path := range args {
			p, err := loadProject(path)
			if err != nil {
				return err
			}
			if i > 0 {
				cmd.Println()
			}
			writeSummary(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var title = cases.Title(language.English)

func writeSummary(w io.Writer, p *trackline.Project) {
	tm := p.TimeModel()
	bars := p.LengthInBars()
	fmt.Fprintf(w, "%s\n", p.Name)
	fmt.Fprintf(w, "  %.2f bpm, %d/4, %.2f bars (%.1f s)\n", p.BPM, p.BeatsPerBar, bars, tm.BarsToSeconds(bars))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range p.Tracks {
		instrument := "-"
		if t.Instrument != nil {
			instrument = fmt.Sprintf("%s (%d samples)", t.Instrument.Name, len(t.Instrument.Resolve()))
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t\n", t.ID, t.Name, instrument)
		for _, c := range t.Clips {
			detail := c.Source
			if c.Kind == trackline.MIDIClip {
				detail = fmt.Sprintf("%d notes, %s", len(c.Notes), noteRange(c.Notes))
			}
			fmt.Fprintf(tw, "    %d\t%s %q\tbar %.2f+%.2f\t%s\n", c.ID, title.String(c.Kind.String()), c.Name, c.StartBar+1, c.LengthInBars, detail)
		}
	}
	tw.Flush()
}

func noteRange(notes []trackline.Note) string {
	if len(notes) == 0 {
		return "empty"
	}
	keys := make([]int, len(notes))
	for i, n := range notes {
		keys[i] = int(n.Number)
	}
	sort.Ints(keys)
	return fmt.Sprintf("keys %d-%d", keys[0], keys[len(keys)-1])
}

func writeExport(w io.Writer, r trackline.ExportRecord) {
	fmt.Fprintf(w, "  last export: %s %s", title.String(r.State), r.Destination)
	if !r.Finished.IsZero() {
		fmt.Fprintf(w, " in %v", r.Finished.Sub(r.Started).Round(time.Millisecond))
	}
	if r.Error != "" {
		fmt.Fprintf(w, ": %s", r.Error)
	}
	fmt.Fprintln(w)
}
