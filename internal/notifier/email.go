package notifier

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/lab-api/internal/model"
)

type EmailConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// EmailNotifier delivers critical-value messages over SMTP. The
// per-attempt time bound lives in the dispatcher; this type does one
// blocking send.
type EmailNotifier struct {
	dialer    *gomail.Dialer
	from      string
	directory Directory
}

func NewEmailNotifier(cfg EmailConfig, directory Directory) *EmailNotifier {
	return &EmailNotifier{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:      cfg.From,
		directory: directory,
	}
}

func (n *EmailNotifier) NotifyCriticalResult(ctx context.Context, alert *model.Alert, result *model.Result) error {
	to, err := n.directory.ProviderEmail(ctx, alert.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("CRITICAL lab value: %s", alert.TestCode))
	m.SetBody("text/plain", renderBody(alert, result))

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}

func renderBody(alert *model.Alert, result *model.Result) string {
	unit := result.Unit
	if unit != "" {
		unit = " " + unit
	}
	return fmt.Sprintf(
		"A critical laboratory value requires your acknowledgment.\n\n"+
			"Test:     %s\n"+
			"Value:    %s%s\n"+
			"Patient:  %s\n"+
			"Order:    %s\n"+
			"Reported: %s\n\n"+
			"Acknowledge alert %s in the lab console.\n",
		alert.TestCode,
		result.Value, unit,
		result.PatientID,
		alert.OrderID,
		result.UpdatedAt.Format("2006-01-02 15:04:05 MST"),
		alert.ID,
	)
}
