package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	decks "cube_wizard/internal/feature/decks/domain/entity"
	"cube_wizard/internal/feature/ingest/domain/entity"
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecord(out io.Writer, rec decks.DeckRecord) {
	fmt.Fprintf(out, "Deck:   %s\n", rec.DeckID)
	if rec.CubeID != "" {
		fmt.Fprintf(out, "Cube:   %s\n", rec.CubeID)
	}
	fmt.Fprintf(out, "Pilot:  %s (%d-%d-%d)\n", rec.Pilot.Name, rec.Pilot.MatchWins, rec.Pilot.MatchLosses, rec.Pilot.MatchDraws)
	fmt.Fprintf(out, "Cards:  %d resolved, %d unresolved\n", rec.ResolvedQuantity(), rec.UnresolvedQuantity())

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range rec.Resolved {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%.2f\n", c.Quantity, c.CanonicalName, c.Method, c.MatchConfidence)
	}
	_ = tw.Flush()

	if len(rec.Unresolved) == 0 {
		return
	}
	fmt.Fprintln(out, "Unresolved:")
	for i, u := range rec.Unresolved {
		line := fmt.Sprintf("  [%d] %d %s (%s)", i, u.Candidate.Quantity, u.Candidate.Name, u.Reason)
		if u.BestGuess != "" {
			line += fmt.Sprintf(" best guess: %s %.2f", u.BestGuess, u.BestScore)
		}
		fmt.Fprintln(out, line)
	}
}

func printReport(out io.Writer, report entity.BatchReport) {
	fmt.Fprintf(out, "Run %s: %d completed, %d failed", report.RunID, report.Completed, report.Failed)
	if report.Skipped > 0 {
		fmt.Fprintf(out, ", %d not started", report.Skipped)
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, u := range report.Units {
		detail := u.Destination
		switch u.State {
		case entity.StateFailed:
			detail = fmt.Sprintf("%s: %s", u.Stage, u.Reason)
		case entity.StatePending:
			detail = u.Reason
		}
		fmt.Fprintf(tw, "  %s\t%s\t%d decks\t%s\n", u.Name, u.State, len(u.DeckIDs), detail)
	}
	_ = tw.Flush()
}
