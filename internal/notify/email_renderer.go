package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"strings"
	"time"

	"github.com/shanehull/bullionscraper/internal/orchestrator"
)

const alertTimeLayout = "02 Jan 2006 3:04 PM MST"

// AttemptRow is one line of the attempt trail in an alert.
type AttemptRow struct {
	Source  string
	Number  int
	Elapsed string
	Result  string
	Failed  bool
}

// NotificationData is everything the failure alert shows.
type NotificationData struct {
	Time          time.Time
	Host          string
	Reason        string
	FailuresToday int
	Attempts      []AttemptRow
}

// RenderedMessage is an email ready to send.
type RenderedMessage struct {
	Subject string
	Text    string
	HTML    string
}

// NewNotificationData summarises a rejected outcome. err is the error Run returned.
func NewNotificationData(out orchestrator.Outcome, err error, failuresToday int, at time.Time) NotificationData {
	host, _ := os.Hostname()
	data := NotificationData{
		Time:          at,
		Host:          host,
		FailuresToday: failuresToday,
	}
	if err != nil {
		data.Reason = err.Error()
	}
	for _, a := range out.Attempts {
		data.Attempts = append(data.Attempts, AttemptRow{
			Source:  a.Source,
			Number:  a.Number,
			Elapsed: a.Elapsed.Round(time.Millisecond).String(),
			Result:  attemptResult(a),
			Failed:  a.Err != nil || !a.Verdict.Accepted,
		})
	}
	return data
}

// HTMLEmailRenderer renders notifications as HTML emails with a plain text fallback.
type HTMLEmailRenderer struct {
	tmpl *template.Template
}

// NewHTMLEmailRenderer creates a renderer with the default email template.
func NewHTMLEmailRenderer() *HTMLEmailRenderer {
	t := template.Must(template.New("email").Parse(emailHTMLTemplate))
	return &HTMLEmailRenderer{tmpl: t}
}

// Render produces an HTML email with plain text alternative.
func (r *HTMLEmailRenderer) Render(data NotificationData) (*RenderedMessage, error) {
	subject := fmt.Sprintf("Bullion scraper failed: %d attempt(s), %d failure(s) today", len(data.Attempts), data.FailuresToday)

	var htmlBuf bytes.Buffer
	if err := r.tmpl.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &RenderedMessage{
		Subject: subject,
		Text:    renderPlainText(data),
		HTML:    htmlBuf.String(),
	}, nil
}

// renderPlainText produces a readable plain text version for email clients that don't support HTML.
func renderPlainText(data NotificationData) string {
	var sb strings.Builder

	sb.WriteString("PRICE EXTRACTION FAILED\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString(fmt.Sprintf("Time: %s\n", data.Time.Format(alertTimeLayout)))
	if data.Host != "" {
		sb.WriteString(fmt.Sprintf("Host: %s\n", data.Host))
	}
	sb.WriteString(fmt.Sprintf("Failures today: %d\n", data.FailuresToday))
	if data.Reason != "" {
		sb.WriteString(fmt.Sprintf("Reason: %s\n", data.Reason))
	}
	sb.WriteString("\n")

	if len(data.Attempts) > 0 {
		sb.WriteString("ATTEMPTS\n")
		sb.WriteString(strings.Repeat("-", 20) + "\n")
		for _, a := range data.Attempts {
			sb.WriteString(fmt.Sprintf("• %s #%d (%s): %s\n", a.Source, a.Number, a.Elapsed, a.Result))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("No snapshot was written. The previous prices file is unchanged.\n")
	return sb.String()
}
