/*
Package notify reports run outcomes on the console and alerts by email when extraction fails.
*/
package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shanehull/bullionscraper/internal/orchestrator"
	"github.com/shanehull/bullionscraper/internal/types"
)

// ReportOutcome prints a run summary to stdout.
func ReportOutcome(out orchestrator.Outcome, outputPath string) {
	WriteReport(os.Stdout, out, outputPath)
}

// WriteReport writes the run summary: per-instrument prices for an accepted run, or the attempt
// trail for a rejected one.
func WriteReport(w io.Writer, out orchestrator.Outcome, outputPath string) {
	if out.State != orchestrator.Accepted {
		fmt.Fprintln(w, "\n-------------------------------------------")
		fmt.Fprintln(w, "❌ EXTRACTION REJECTED - nothing was written")
		fmt.Fprintln(w, "-------------------------------------------")
		fmt.Fprint(w, formatAttempts(out.Attempts))
		return
	}

	s := out.Snapshot
	fmt.Fprintln(w, "\n===========================================")
	fmt.Fprintf(w, "✅ %d/%d PRICES EXTRACTED from %s\n", s.Populated(), len(s.FieldKeys()), s.Source())
	fmt.Fprintln(w, "===========================================")

	for _, inst := range s.Instruments() {
		q, _ := s.Quote(inst)
		fmt.Fprintf(w, "%-7s %-4s sell: %-10s buy: %s\n", inst.Metal, inst.Grade, q.Sell, q.Buy)
	}

	fmt.Fprintln(w, "\n===========================================")
	if outputPath != "" {
		fmt.Fprintf(w, "Snapshot taken %s. Saved to %s.\n", s.TakenAt().Format(types.TimestampLayout), outputPath)
	} else {
		fmt.Fprintf(w, "Snapshot taken %s. Dry run, nothing saved.\n", s.TakenAt().Format(types.TimestampLayout))
	}
	fmt.Fprintln(w, "===========================================")
}

func formatAttempts(attempts []orchestrator.Attempt) string {
	if len(attempts) == 0 {
		return "No attempts were made.\n"
	}
	var sb strings.Builder
	for _, a := range attempts {
		sb.WriteString(fmt.Sprintf("\t- %s #%d (%s): %s\n", a.Source, a.Number, a.Elapsed.Round(time.Millisecond), attemptResult(a)))
	}
	return sb.String()
}

func attemptResult(a orchestrator.Attempt) string {
	if a.Err != nil {
		return "failed: " + a.Err.Error()
	}
	v := a.Verdict
	if v.Accepted {
		return fmt.Sprintf("accepted, %d/%d fields", v.ValidFields, v.TotalFields)
	}
	return fmt.Sprintf("rejected, %d/%d fields, %s", v.ValidFields, v.TotalFields, v.Reason)
}

// AlertFailure renders and sends the failure alert. It is a no-op when email is disabled.
func AlertFailure(data NotificationData, sender *EmailSender, renderer *HTMLEmailRenderer) error {
	if !sender.Enabled() {
		return nil
	}
	msg, err := renderer.Render(data)
	if err != nil {
		return err
	}
	return sender.Send(msg)
}
