package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/api/scheduler"
	"github.com/linesmerrill/incident-report-api/config"
	"github.com/linesmerrill/incident-report-api/databases"
	"github.com/linesmerrill/incident-report-api/models"
)

// ErrLocationNotFound is returned when the draft location cannot be geocoded
var ErrLocationNotFound = errors.New("location could not be found")

// Geocoder resolves free text to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat float64, lng float64, err error)
}

// Enqueuer puts background work on the job queue
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, args map[string]string, opts ...scheduler.Option) (string, error)
}

// Finalizer turns a completed draft into a stored incident
type Finalizer struct {
	Geocoder   Geocoder
	IncidentDB databases.IncidentDatabase
	UserDB     databases.UserDatabase
	Jobs       Enqueuer
	BaseURL    string
	Location   *time.Location
	now        func() time.Time
}

// NewFinalizer creates a finalizer using the configured base URL and timezone
func NewFinalizer(conf *config.Config, g Geocoder, idb databases.IncidentDatabase, udb databases.UserDatabase, jobs Enqueuer) *Finalizer {
	return &Finalizer{
		Geocoder:   g,
		IncidentDB: idb,
		UserDB:     udb,
		Jobs:       jobs,
		BaseURL:    conf.BaseURL,
		Location:   conf.Location(),
		now:        time.Now,
	}
}

// NormalizePhone formats a phone number as E.164, assuming US numbers when
// no country code is given
func NormalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, "US")
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", fmt.Errorf("not a possible phone number: %s", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Finalize geocodes the draft location, links the sender's account when one
// matches their phone number and stores the incident. Nothing is stored when
// the location cannot be resolved.
func (f *Finalizer) Finalize(ctx context.Context, d Draft, from string) (*models.Incident, error) {
	lat, lng, err := f.Geocoder.Geocode(ctx, d.Location)
	if err != nil {
		zap.S().Errorw("failed to geocode report location, report discarded",
			"location", d.Location,
			"error", err)
		return nil, fmt.Errorf("%w: %q", ErrLocationNotFound, d.Location)
	}

	incident := models.NewIncident(models.Incident{
		Location: models.IncidentLocation{
			OriginalUserText: d.Location,
			Latitude:         lat,
			Longitude:        lng,
		},
		Date:            primitive.NewDateTimeFromTime(f.now().In(f.location())),
		VehicleID:       d.VehicleID,
		LicensePlate:    d.LicensePlate,
		DurationMinutes: d.Duration,
		Description:     d.Description,
		PictureURL:      d.PictureURL,
	}, f.now())

	if user := f.owner(ctx, from); user != nil {
		incident.UserID = &user.ID
	}

	if _, err := f.IncidentDB.InsertOne(ctx, incident); err != nil {
		return nil, fmt.Errorf("failed to insert incident: %w", err)
	}
	zap.S().Infow("created incident from sms",
		"incidentId", incident.ID.Hex(),
		"owned", incident.UserID != nil)

	if f.Jobs != nil {
		_, err := f.Jobs.Enqueue(ctx, scheduler.TaskNotifyNewReport, map[string]string{"incident_id": incident.ID.Hex()})
		if err != nil {
			zap.S().Errorw("failed to enqueue new report notification", "error", err, "incidentId", incident.ID.Hex())
		}
	}
	return &incident, nil
}

// owner returns the user registered with the sender's phone number, if any
func (f *Finalizer) owner(ctx context.Context, from string) *models.User {
	if f.UserDB == nil || strings.TrimSpace(from) == "" {
		return nil
	}
	phone, err := NormalizePhone(from)
	if err != nil {
		zap.S().Debugw("could not normalize sender phone", "error", err)
		return nil
	}
	user, err := f.UserDB.FindOne(ctx, bson.M{"user.phoneNumber": phone})
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			zap.S().Errorw("failed to look up report owner", "error", err)
		}
		return nil
	}
	return user
}

// Acknowledge builds the replies sent once an incident is stored
func (f *Finalizer) Acknowledge(incident *models.Incident) []string {
	base := strings.TrimRight(f.BaseURL, "/")
	msgs := []string{fmt.Sprintf("Thanks! See your report on the map at %s/", base)}
	if incident.UserID == nil {
		msgs = append(msgs, fmt.Sprintf("Want to keep track of all your reports? Create an account at %s/account/register", base))
	} else {
		msgs = append(msgs, fmt.Sprintf("See all your reports at %s/reports/my-reports", base))
	}
	return msgs
}

func (f *Finalizer) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}
