// Package intake runs the SMS report conversation. Each inbound message is
// one Turn over a Draft that travels in signed cookies, so no session state
// lives on the server.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/api/scheduler"
	"github.com/linesmerrill/incident-report-api/models"
)

// MediaRetention is how long provider-hosted media is kept after a report
const MediaRetention = 10 * time.Minute

// Message is one inbound text message
type Message struct {
	Body       string
	MediaURL   string
	MessageSID string
	From       string
}

// Turn is the outcome of handling one message
type Turn struct {
	Messages []string
	Draft    Draft
	// Incident is set when the message completed a report
	Incident *models.Incident
	// ImageJobID is the upload job started for an attached picture
	ImageJobID string
}

// ReportFinalizer stores a completed draft
type ReportFinalizer interface {
	Finalize(ctx context.Context, d Draft, from string) (*models.Incident, error)
	Acknowledge(incident *models.Incident) []string
}

// Machine advances a draft one message at a time
type Machine struct {
	AppName   string
	Finalizer ReportFinalizer
	Jobs      Enqueuer
}

// NewMachine creates a conversation machine
func NewMachine(appName string, f ReportFinalizer, jobs Enqueuer) *Machine {
	return &Machine{AppName: appName, Finalizer: f, Jobs: jobs}
}

// Handle applies msg to d and returns the replies and the new draft
func (m *Machine) Handle(ctx context.Context, d Draft, msg Message) Turn {
	body := strings.TrimSpace(msg.Body)

	if isKeyword(body, resetKeyword) {
		return Turn{
			Messages: []string{Prompt(StepLocation)},
			Draft:    Draft{Step: StepLocation},
		}
	}

	switch d.Step {
	case StepPicture:
		return m.finish(ctx, d, msg)
	case StepLocation, StepLicensePlate, StepVehicleID, StepDuration, StepDescription:
		return m.collect(d, body)
	default:
		return Turn{
			Messages: []string{m.welcome()},
			Draft:    d,
		}
	}
}

func (m *Machine) welcome() string {
	return fmt.Sprintf(`Welcome to %s! Please reply "report" to report an idling incident.`, m.AppName)
}

// collect validates body for the current step. The draft is only changed
// when validation passes.
func (m *Machine) collect(d Draft, body string) Turn {
	f := fields[d.Step]
	next := d
	if errs := f.apply(&next, body); len(errs) > 0 {
		return Turn{
			Messages: []string{
				fmt.Sprintf("Sorry, there were some errors with your response. Please enter the %s again.", f.label),
				"Errors:\n" + strings.Join(errs, "\n"),
			},
			Draft: d,
		}
	}
	next.Step = d.Step.Next()
	return Turn{
		Messages: []string{Prompt(next.Step)},
		Draft:    next,
	}
}

// finish stores the report and starts the picture jobs. The draft is cleared
// whatever the outcome.
func (m *Machine) finish(ctx context.Context, d Draft, msg Message) Turn {
	turn := Turn{Draft: Draft{Step: StepInit}}

	incident, err := m.Finalizer.Finalize(ctx, d, msg.From)
	switch {
	case errors.Is(err, ErrLocationNotFound):
		turn.Messages = []string{
			fmt.Sprintf(`Sorry, we could not find the location "%s" so your report was not submitted.`, d.Location),
			`Please reply "report" to start over.`,
		}
	case err != nil:
		zap.S().Errorw("failed to finalize sms report", "error", err, "messageSid", msg.MessageSID)
		turn.Messages = []string{`Sorry, something went wrong and your report was not submitted. Please reply "report" to try again.`}
	default:
		turn.Incident = incident
		turn.Messages = m.Finalizer.Acknowledge(incident)
	}

	if msg.MediaURL != "" && m.Jobs != nil {
		turn.ImageJobID = m.schedulePicture(ctx, incident, msg)
	}
	return turn
}

// schedulePicture enqueues the upload, the attach step that waits on it and
// the provider media cleanup. Without an incident only the cleanup runs.
func (m *Machine) schedulePicture(ctx context.Context, incident *models.Incident, msg Message) string {
	cleanup := []scheduler.Option{scheduler.In(MediaRetention)}
	var imageJobID string

	if incident != nil {
		id, err := m.Jobs.Enqueue(ctx, scheduler.TaskUploadImage, map[string]string{"image_url": msg.MediaURL})
		if err != nil {
			zap.S().Errorw("failed to enqueue image upload", "error", err, "incidentId", incident.ID.Hex())
		} else {
			imageJobID = id
			_, err = m.Jobs.Enqueue(ctx, scheduler.TaskAttachImage, map[string]string{
				"incident_id":  incident.ID.Hex(),
				"image_job_id": imageJobID,
			}, scheduler.DependsOn(imageJobID))
			if err != nil {
				zap.S().Errorw("failed to enqueue image attach", "error", err, "incidentId", incident.ID.Hex())
			}
			cleanup = append(cleanup, scheduler.DependsOn(imageJobID))
		}
	}

	if msg.MessageSID != "" {
		_, err := m.Jobs.Enqueue(ctx, scheduler.TaskDeleteMedia, map[string]string{"message_sid": msg.MessageSID}, cleanup...)
		if err != nil {
			zap.S().Errorw("failed to schedule media deletion", "error", err, "messageSid", msg.MessageSID)
		}
	}
	return imageJobID
}
