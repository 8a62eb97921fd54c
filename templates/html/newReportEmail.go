package templates

import (
	"fmt"
	"strings"

	"github.com/linesmerrill/incident-report-api/models"
)

// RenderNewReportEmail builds the subject, HTML and plain text of the
// notification sent to administrators when a report comes in.
func RenderNewReportEmail(appName, baseURL string, incident models.Incident) (subject, htmlContent, plainText string) {
	subject = fmt.Sprintf("[%s] New incident report", appName)

	var b strings.Builder
	fmt.Fprintf(&b, "A new incident was reported at %s.\n\n", incident.Location.OriginalUserText)
	fmt.Fprintf(&b, "Date: %s\n", incident.Date.Time().Format("Jan 2, 2006 3:04 PM"))
	if incident.VehicleID != "" {
		fmt.Fprintf(&b, "Vehicle ID: %s\n", incident.VehicleID)
	}
	if incident.LicensePlate != "" {
		fmt.Fprintf(&b, "License plate: %s\n", incident.LicensePlate)
	}
	if incident.DurationMinutes > 0 {
		fmt.Fprintf(&b, "Duration: %d minutes\n", incident.DurationMinutes)
	}
	if incident.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", incident.Description)
	}
	fmt.Fprintf(&b, "\nReview it at %s/reports/%s", strings.TrimRight(baseURL, "/"), incident.ID.Hex())

	plainText = b.String()
	htmlContent = RenderGenericEmail(appName, baseURL, subject, plainText)
	return subject, htmlContent, plainText
}
