package notify

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shanehull/bullionscraper/internal/orchestrator"
	"github.com/shanehull/bullionscraper/internal/types"
)

var gold24 = types.InstrumentKey{Metal: types.Gold, Grade: "24"}

func rejectedOutcome() orchestrator.Outcome {
	return orchestrator.Outcome{
		State: orchestrator.Rejected,
		Attempts: []orchestrator.Attempt{
			{Source: "isagha", Number: 1, Elapsed: 1500 * time.Millisecond, Verdict: types.Verdict{
				TotalFields: 12, ValidFields: 11, Reason: "1 suspicious field(s), first gold/24/sell",
				Suspicious: []types.FieldKey{{Instrument: gold24, Side: types.Sell}},
			}},
			{Source: "table", Number: 1, Err: errors.New("received non-OK status code 503")},
		},
	}
}

func TestWriteReportAccepted(t *testing.T) {
	s := types.NewSnapshot("isagha", time.Date(2026, 10, 18, 8, 30, 0, 0, time.UTC), []types.InstrumentKey{gold24},
		map[types.InstrumentKey]types.Quote{gold24: {Sell: types.Some(5765)}})
	out := orchestrator.Outcome{State: orchestrator.Accepted, Snapshot: s}

	var buf bytes.Buffer
	WriteReport(&buf, out, "prices.json")
	got := buf.String()

	for _, want := range []string{"1/2 PRICES EXTRACTED from isagha", "gold    24   sell: 5765", "buy: null", "Saved to prices.json"} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestWriteReportRejected(t *testing.T) {
	var buf bytes.Buffer
	WriteReport(&buf, rejectedOutcome(), "prices.json")
	got := buf.String()

	if !strings.Contains(got, "REJECTED") || !strings.Contains(got, "isagha #1 (1.5s): rejected, 11/12 fields") {
		t.Fatalf("report = %s", got)
	}
	if !strings.Contains(got, "table #1 (0s): failed: received non-OK status code 503") {
		t.Fatalf("report = %s", got)
	}
}

func TestRenderFailureAlert(t *testing.T) {
	data := NewNotificationData(rejectedOutcome(), orchestrator.ErrRejected, 2, time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC))
	msg, err := NewHTMLEmailRenderer().Render(data)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if msg.Subject != "Bullion scraper failed: 2 attempt(s), 2 failure(s) today" {
		t.Fatalf("Subject = %q", msg.Subject)
	}
	for _, want := range []string{"isagha #1", "failed: received non-OK status code 503", "no source produced an accepted snapshot"} {
		if !strings.Contains(msg.HTML, want) {
			t.Errorf("HTML missing %q", want)
		}
		if !strings.Contains(msg.Text, want) {
			t.Errorf("Text missing %q", want)
		}
	}
	if !strings.Contains(msg.HTML, `class="failed"`) {
		t.Errorf("HTML does not mark failed attempts")
	}
}

func TestAlertFailureDisabled(t *testing.T) {
	sender := NewEmailSender(EmailConfig{Enabled: false}, nil)
	if err := AlertFailure(NotificationData{}, sender, NewHTMLEmailRenderer()); err != nil {
		t.Fatalf("AlertFailure() error = %v", err)
	}
}
