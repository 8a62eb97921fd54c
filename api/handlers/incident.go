package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shaj13/go-guardian/auth"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/api"
	"github.com/linesmerrill/incident-report-api/api/scheduler"
	"github.com/linesmerrill/incident-report-api/config"
	"github.com/linesmerrill/incident-report-api/databases"
	"github.com/linesmerrill/incident-report-api/intake"
	"github.com/linesmerrill/incident-report-api/models"
)

// Incident handles the incident report endpoints
type Incident struct {
	DB       databases.IncidentDatabase
	Geocoder intake.Geocoder
	Jobs     intake.Enqueuer
	Now      func() time.Time
}

func (i Incident) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

// CreateIncidentHandler stores an incident submitted through the web form.
// Coordinates sent by the client are kept; otherwise the address is geocoded.
func (i Incident) CreateIncidentHandler(w http.ResponseWriter, r *http.Request) {
	var incident models.Incident
	if err := json.NewDecoder(r.Body).Decode(&incident); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	incident.UserID = nil
	incident.PictureDeleteHash = ""

	if errs := incident.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.ValidationErrorResponse{Errors: errs})
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if !hasCoordinates(incident.Location) {
		if err := i.geocode(ctx, &incident.Location); err != nil {
			config.ErrorStatus("failed to geocode location", http.StatusUnprocessableEntity, w, err)
			return
		}
	}

	incident = models.NewIncident(incident, i.now())
	if _, err := i.DB.InsertOne(ctx, incident); err != nil {
		config.ErrorStatus("failed to create incident", http.StatusInternalServerError, w, err)
		return
	}
	zap.S().Infow("created incident from form", "incidentId", incident.ID.Hex())
	i.notify(ctx, incident)

	writeJSON(w, http.StatusCreated, incident)
}

// IncidentsHandler returns a page of incidents, newest first
func (i Incident) IncidentsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		limit = 10
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	total, err := i.DB.CountDocuments(ctx, bson.M{})
	if err != nil {
		config.ErrorStatus("failed to count incidents", http.StatusInternalServerError, w, err)
		return
	}
	incidents, err := i.DB.Find(ctx, bson.M{}, databases.NewPaginatedFindOptions(limit, page))
	if err != nil {
		config.ErrorStatus("failed to get incidents", http.StatusInternalServerError, w, err)
		return
	}
	// the frontend expects data to be an array even when empty
	if incidents == nil {
		incidents = []models.Incident{}
	}
	writeJSON(w, http.StatusOK, models.IncidentListResponse{
		Page:       page,
		TotalCount: total,
		Data:       incidents,
	})
}

// IncidentByIDHandler returns one incident to an admin or its owner
func (i Incident) IncidentByIDHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	incident, ok := i.load(ctx, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

// UpdateIncidentHandler edits an incident. The location is geocoded again
// when its text changed, unless the client sent coordinates of its own.
func (i Incident) UpdateIncidentHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	existing, ok := i.load(ctx, w, r)
	if !ok {
		return
	}

	var update models.Incident
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if errs := update.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.ValidationErrorResponse{Errors: errs})
		return
	}

	// coordinates echoed back from a GET are stale once the text changes
	staleCoordinates := !hasCoordinates(update.Location) || sameCoordinates(update.Location, existing.Location)
	textChanged := update.Location.OriginalUserText != existing.Location.OriginalUserText
	if !textChanged && staleCoordinates {
		update.Location = existing.Location
	} else if textChanged && staleCoordinates {
		if err := i.geocode(ctx, &update.Location); err != nil {
			config.ErrorStatus("failed to geocode location", http.StatusUnprocessableEntity, w, err)
			return
		}
	}
	if update.Date == 0 {
		update.Date = existing.Date
	}

	update.ID = existing.ID
	update.UserID = existing.UserID
	update.PictureDeleteHash = existing.PictureDeleteHash
	update.CreatedAt = existing.CreatedAt
	update.UpdatedAt = primitive.NewDateTimeFromTime(i.now())
	update.Description = models.NormalizeDescription(update.Description)

	err := i.DB.UpdateOne(ctx, bson.M{"_id": existing.ID}, bson.M{"$set": editableFields(update)})
	if err != nil {
		config.ErrorStatus("failed to update incident", http.StatusInternalServerError, w, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

// DeleteIncidentHandler removes an incident and releases its hosted picture
func (i Incident) DeleteIncidentHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	incident, ok := i.load(ctx, w, r)
	if !ok {
		return
	}
	if err := i.DB.DeleteOne(ctx, bson.M{"_id": incident.ID}); err != nil {
		config.ErrorStatus("failed to delete incident", http.StatusInternalServerError, w, err)
		return
	}

	if incident.PictureDeleteHash != "" && i.Jobs != nil {
		_, err := i.Jobs.Enqueue(ctx, scheduler.TaskDeleteImage, map[string]string{"deletehash": incident.PictureDeleteHash})
		if err != nil {
			zap.S().Errorw("failed to enqueue image deletion",
				"incidentId", incident.ID.Hex(),
				"error", err)
		}
	}
	zap.S().Infow("deleted incident", "incidentId", incident.ID.Hex())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "Incident deleted successfully"}`))
}

// UserIncidentsHandler returns the incidents owned by a user
func (i Incident) UserIncidentsHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	caller := api.UserFromContext(r.Context())
	if !api.IsAdmin(caller) && (caller == nil || caller.ID() != userID) {
		config.ErrorStatus("not allowed to view these incidents", http.StatusForbidden, w, errors.New("forbidden"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	incidents, err := i.DB.Find(ctx, bson.M{"userId": uID})
	if err != nil {
		config.ErrorStatus("failed to get incidents for user", http.StatusInternalServerError, w, err)
		return
	}
	if incidents == nil {
		incidents = []models.Incident{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

// load fetches the incident named in the path and checks the caller may see
// it. It writes the error response itself and returns false on failure.
func (i Incident) load(ctx context.Context, w http.ResponseWriter, r *http.Request) (*models.Incident, bool) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["incident_id"])
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return nil, false
	}

	incident, err := i.DB.FindOne(ctx, bson.M{"_id": id})
	if errors.Is(err, mongo.ErrNoDocuments) {
		config.ErrorStatus("incident not found", http.StatusNotFound, w, err)
		return nil, false
	}
	if err != nil {
		config.ErrorStatus("failed to get incident by ID", http.StatusInternalServerError, w, err)
		return nil, false
	}

	if !canManage(api.UserFromContext(r.Context()), incident) {
		config.ErrorStatus("not allowed to manage this incident", http.StatusForbidden, w, errors.New("forbidden"))
		return nil, false
	}
	return incident, true
}

func (i Incident) geocode(ctx context.Context, loc *models.IncidentLocation) error {
	lat, lng, err := i.Geocoder.Geocode(ctx, loc.OriginalUserText)
	if err != nil {
		return err
	}
	loc.Latitude, loc.Longitude = lat, lng
	return nil
}

func (i Incident) notify(ctx context.Context, incident models.Incident) {
	if i.Jobs == nil {
		return
	}
	_, err := i.Jobs.Enqueue(ctx, scheduler.TaskNotifyNewReport, map[string]string{"incident_id": incident.ID.Hex()})
	if err != nil {
		zap.S().Errorw("failed to enqueue new report notification",
			"incidentId", incident.ID.Hex(),
			"error", err)
	}
}

// canManage allows admins everything and users their own incidents
func canManage(caller auth.Info, incident *models.Incident) bool {
	if caller == nil {
		return false
	}
	if api.IsAdmin(caller) {
		return true
	}
	return incident.UserID != nil && incident.UserID.Hex() == caller.ID()
}

func hasCoordinates(loc models.IncidentLocation) bool {
	return loc.Latitude != 0 || loc.Longitude != 0
}

func sameCoordinates(a, b models.IncidentLocation) bool {
	return a.Latitude == b.Latitude && a.Longitude == b.Longitude
}

func editableFields(i models.Incident) bson.M {
	return bson.M{
		"location":            i.Location,
		"date":                i.Date,
		"vehicleId":           i.VehicleID,
		"licensePlate":        i.LicensePlate,
		"durationMinutes":     i.DurationMinutes,
		"automobileNum":       i.AutomobileNum,
		"bicycleNum":          i.BicycleNum,
		"pedestrianNum":       i.PedestrianNum,
		"otherNum":            i.OtherNum,
		"description":         i.Description,
		"injuries":            i.Injuries,
		"injuriesDescription": i.InjuriesDescription,
		"deaths":              i.Deaths,
		"witness":             i.Witness,
		"category":            i.Category,
		"roadConditions":      i.RoadConditions,
		"pictureUrl":          i.PictureURL,
		"contactName":         i.ContactName,
		"contactPhone":        i.ContactPhone,
		"contactEmail":        i.ContactEmail,
		"updatedAt":           i.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
