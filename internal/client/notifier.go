package client

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
)

// EmailNotifier asks the server's notification relay to email the session
// user when a migration reaches a terminal status.
type EmailNotifier struct {
	api *API
	to  string
}

// NewEmailNotifier returns a notifier delivering to the address to
func NewEmailNotifier(api *API, to string) *EmailNotifier {
	return &EmailNotifier{api: api, to: to}
}

// NotifyMigration sends the outcome of rec
func (n *EmailNotifier) NotifyMigration(ctx context.Context, rec models.MigrationRecord) error {
	if n.to == "" {
		return fmt.Errorf("no recipient for migration %s", rec.ExecutionID)
	}
	record := rec
	err := n.api.SendEmail(ctx, EmailRequest{
		To:            n.to,
		Subject:       emailSubject(rec),
		Body:          emailBody(rec),
		MigrationData: &record,
	})
	if err != nil {
		return fmt.Errorf("failed to send notification for %s: %w", rec.ExecutionID, err)
	}
	return nil
}

func emailSubject(rec models.MigrationRecord) string {
	var outcome string
	switch rec.Status {
	case models.StatusSuccess:
		outcome = "completed"
	case models.StatusCancelled:
		outcome = "cancelled"
	default:
		outcome = "failed"
	}
	name := rec.FileName
	if name == "" {
		name = rec.ExecutionID
	}
	return fmt.Sprintf("Migration %s: %s", outcome, name)
}

// emailBody renders a small HTML summary; every value is escaped
func emailBody(rec models.MigrationRecord) string {
	rows := [][2]string{
		{"File", rec.FileName},
		{"Project", rec.ProjectName()},
		{"Status", string(rec.Status)},
		{"Execution ID", rec.ExecutionID},
		{"Started", rec.Started().UTC().Format(time.RFC1123)},
	}
	if rec.Duration != nil {
		rows = append(rows, [2]string{"Duration", (time.Duration(*rec.Duration) * time.Millisecond).String()})
	}
	rows = append(rows, [2]string{"Message", rec.Message})

	var b strings.Builder
	b.WriteString("<h2>Migration Accelerator</h2>\n<table>\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "<tr><th align=\"left\">%s</th><td>%s</td></tr>\n", row[0], html.EscapeString(row[1]))
	}
	b.WriteString("</table>\n")
	return b.String()
}
