package templates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/incident-report-api/models"
)

func TestRenderNewReportEmail(t *testing.T) {
	id := primitive.NewObjectID()
	incident := models.Incident{
		ID:              id,
		Location:        models.IncidentLocation{OriginalUserText: "34th & Spruce"},
		Date:            primitive.NewDateTimeFromTime(time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)),
		VehicleID:       "105014",
		DurationMinutes: 15,
		Description:     "Driver <sleeping>",
	}

	subject, htmlContent, plain := RenderNewReportEmail("Idling Reports", "https://example.org/", incident)

	assert.Equal(t, "[Idling Reports] New incident report", subject)
	assert.Contains(t, plain, "Vehicle ID: 105014")
	assert.Contains(t, plain, "Duration: 15 minutes")
	assert.Contains(t, plain, "https://example.org/reports/"+id.Hex())
	assert.NotContains(t, plain, "License plate")
	assert.Contains(t, htmlContent, "Driver &lt;sleeping&gt;")
	assert.Contains(t, htmlContent, "34th &amp; Spruce")
}
