package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html.tmpl"))

// Render executes the named template with the given data.
func Render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Template names used across the services.
const (
	TemplateWelcome             = "welcome.html.tmpl"
	TemplatePasswordReset       = "password_reset.html.tmpl"
	TemplateInitiativeSubmitted = "initiative_submitted.html.tmpl"
	TemplateInitiativeApproved  = "initiative_approved.html.tmpl"
	TemplateInitiativeRejected  = "initiative_rejected.html.tmpl"
	TemplateInitiativeReminder  = "initiative_reminder.html.tmpl"

	// TemplateInitiativeParticipant confirms a participation signup.
	TemplateInitiativeParticipant = "initiative_participant.html.tmpl"

	TemplateItemReported    = "item_reported.html.tmpl"
	TemplateItemApproved    = "item_approved.html.tmpl"
	TemplateItemRejected    = "item_rejected.html.tmpl"
	TemplateItemResolved    = "item_resolved.html.tmpl"
	TemplateDonationReceipt = "donation_receipt.html.tmpl"
	TemplateReportDownload  = "report_download.html.tmpl"
)
