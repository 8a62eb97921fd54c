package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shaj13/go-guardian/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/incident-report-api/api"
	"github.com/linesmerrill/incident-report-api/api/handlers"
	"github.com/linesmerrill/incident-report-api/api/scheduler"
	"github.com/linesmerrill/incident-report-api/databases/mocks"
	"github.com/linesmerrill/incident-report-api/models"
)

var testNow = time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)

type stubGeocoder struct {
	calls []string
	lat   float64
	lng   float64
	err   error
}

func (g *stubGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	g.calls = append(g.calls, address)
	return g.lat, g.lng, g.err
}

type enqueued struct {
	kind string
	args map[string]string
}

type recordingJobs struct {
	jobs []enqueued
}

func (r *recordingJobs) Enqueue(ctx context.Context, kind string, args map[string]string, opts ...scheduler.Option) (string, error) {
	r.jobs = append(r.jobs, enqueued{kind: kind, args: args})
	return primitive.NewObjectID().Hex(), nil
}

func asUser(req *http.Request, id, role string) *http.Request {
	info := auth.NewDefaultUser(id+"@example.org", id, []string{role}, nil)
	return req.WithContext(api.WithUser(req.Context(), info))
}

func newIncidentHandler(db *mocks.IncidentDatabase, g *stubGeocoder, jobs *recordingJobs) handlers.Incident {
	return handlers.Incident{DB: db, Geocoder: g, Jobs: jobs, Now: func() time.Time { return testNow }}
}

func TestIncident_CreateIncidentHandler(t *testing.T) {
	db := &mocks.IncidentDatabase{}
	var stored models.Incident
	db.On("InsertOne", mock.Anything, mock.AnythingOfType("models.Incident")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(models.Incident) }).
		Return(nil, nil)
	g := &stubGeocoder{lat: 39.95, lng: -75.19}
	jobs := &recordingJobs{}
	h := newIncidentHandler(db, g, jobs)

	body := `{"location": {"originalUserText": "34th and Spruce"}, "vehicleId": "105014", "durationMinutes": 15, "description": "Bus idling\nagain", "userId": "608cafe595eb9dc05379b7f4"}`
	req := httptest.NewRequest("POST", "/api/v1/incidents", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.CreateIncidentHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, []string{"34th and Spruce"}, g.calls)
	assert.Equal(t, 39.95, stored.Location.Latitude)
	assert.Equal(t, "Bus idling again", stored.Description)
	assert.Nil(t, stored.UserID)
	assert.Equal(t, primitive.NewDateTimeFromTime(testNow), stored.CreatedAt)
	require.Len(t, jobs.jobs, 1)
	assert.Equal(t, enqueued{kind: scheduler.TaskNotifyNewReport, args: map[string]string{"incident_id": stored.ID.Hex()}}, jobs.jobs[0])

	var resp models.Incident
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, stored.ID, resp.ID)
}

func TestIncident_CreateIncidentHandlerClientCoordinates(t *testing.T) {
	db := &mocks.IncidentDatabase{}
	db.On("InsertOne", mock.Anything, mock.AnythingOfType("models.Incident")).Return(nil, nil)
	g := &stubGeocoder{}
	h := newIncidentHandler(db, g, &recordingJobs{})

	body := `{"location": {"originalUserText": "34th and Spruce", "latitude": 39.9, "longitude": -75.1}}`
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.CreateIncidentHandler).ServeHTTP(rr, httptest.NewRequest("POST", "/api/v1/incidents", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Empty(t, g.calls)
}

func TestIncident_CreateIncidentHandlerErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		geo  error
		want int
	}{
		{name: "bad json", body: `{`, want: http.StatusBadRequest},
		{name: "missing location", body: `{"durationMinutes": 5}`, want: http.StatusBadRequest},
		{name: "geocode failure", body: `{"location": {"originalUserText": "Nowhere"}}`, geo: errors.New("no match"), want: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mocks.IncidentDatabase{}
			h := newIncidentHandler(db, &stubGeocoder{err: tt.geo}, &recordingJobs{})

			rr := httptest.NewRecorder()
			http.HandlerFunc(h.CreateIncidentHandler).ServeHTTP(rr, httptest.NewRequest("POST", "/api/v1/incidents", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.want, rr.Code)
			db.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
		})
	}
}

func TestIncident_CreateIncidentHandlerValidationBody(t *testing.T) {
	h := newIncidentHandler(&mocks.IncidentDatabase{}, &stubGeocoder{}, &recordingJobs{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.CreateIncidentHandler).ServeHTTP(rr, httptest.NewRequest("POST", "/api/v1/incidents", bytes.NewBufferString(`{"durationMinutes": 20000}`)))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var resp models.ValidationErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Address is required."}, resp.Errors["location"])
	assert.Equal(t, []string{"Idling duration must be between 0 and 10000 minutes."}, resp.Errors["durationMinutes"])
}

func TestIncident_IncidentsHandler(t *testing.T) {
	db := &mocks.IncidentDatabase{}
	db.On("CountDocuments", mock.Anything, bson.M{}).Return(int64(12), nil)
	db.On("Find", mock.Anything, bson.M{}, mock.Anything).Return(nil, nil)
	h := newIncidentHandler(db, &stubGeocoder{}, &recordingJobs{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.IncidentsHandler).ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/incidents?page=2&limit=5", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"page": 2, "totalCount": 12, "data": []}`, rr.Body.String())

	opts := db.Calls[1].Arguments.Get(2).(*options.FindOptions)
	assert.Equal(t, int64(5), *opts.Limit)
	assert.Equal(t, int64(5), *opts.Skip)
}

func TestIncident_IncidentsHandlerCountError(t *testing.T) {
	db := &mocks.IncidentDatabase{}
	db.On("CountDocuments", mock.Anything, bson.M{}).Return(int64(0), errors.New("mocked-error"))
	h := newIncidentHandler(db, &stubGeocoder{}, &recordingJobs{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.IncidentsHandler).ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/incidents", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, `{"response": "failed to count incidents, mocked-error"}`, rr.Body.String())
}

func TestIncident_IncidentByIDHandler(t *testing.T) {
	ownerID := primitive.NewObjectID()
	incidentID := primitive.NewObjectID()
	incident := &models.Incident{ID: incidentID, UserID: &ownerID, Location: models.IncidentLocation{OriginalUserText: "34th and Spruce"}}

	tests := []struct {
		name   string
		id     string
		caller string
		role   string
		find   *models.Incident
		err    error
		want   int
	}{
		{name: "bad id", id: "1234", caller: "x", role: models.RoleAdmin, want: http.StatusBadRequest},
		{name: "not found", id: incidentID.Hex(), caller: "x", role: models.RoleAdmin, err: mongo.ErrNoDocuments, want: http.StatusNotFound},
		{name: "db error", id: incidentID.Hex(), caller: "x", role: models.RoleAdmin, err: errors.New("mocked-error"), want: http.StatusInternalServerError},
		{name: "admin", id: incidentID.Hex(), caller: "x", role: models.RoleAdmin, find: incident, want: http.StatusOK},
		{name: "owner", id: incidentID.Hex(), caller: ownerID.Hex(), role: models.RoleUser, find: incident, want: http.StatusOK},
		{name: "stranger", id: incidentID.Hex(), caller: primitive.NewObjectID().Hex(), role: models.RoleUser, find: incident, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mocks.IncidentDatabase{}
			db.On("FindOne", mock.Anything, bson.M{"_id": incidentID}).Return(tt.find, tt.err)
			h := newIncidentHandler(db, &stubGeocoder{}, &recordingJobs{})

			req := httptest.NewRequest("GET", "/api/v1/incidents/"+tt.id, nil)
			req = mux.SetURLVars(req, map[string]string{"incident_id": tt.id})
			req = asUser(req, tt.caller, tt.role)
			rr := httptest.NewRecorder()
			http.HandlerFunc(h.IncidentByIDHandler).ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestIncident_UpdateIncidentHandler(t *testing.T) {
	incidentID := primitive.NewObjectID()
	created := primitive.NewDateTimeFromTime(testNow.Add(-time.Hour))
	existing := &models.Incident{
		ID:                incidentID,
		Location:          models.IncidentLocation{OriginalUserText: "34th and Spruce", Latitude: 39.95, Longitude: -75.19},
		PictureDeleteHash: "idling/abc",
		CreatedAt:         created,
		Date:              created,
	}

	t.Run("unchanged address keeps coordinates", func(t *testing.T) {
		db := &mocks.IncidentDatabase{}
		db.On("FindOne", mock.Anything, bson.M{"_id": incidentID}).Return(existing, nil)
		var set bson.M
		db.On("UpdateOne", mock.Anything, bson.M{"_id": incidentID}, mock.Anything).
			Run(func(args mock.Arguments) { set = args.Get(2).(bson.M)["$set"].(bson.M) }).
			Return(nil)
		g := &stubGeocoder{}
		h := newIncidentHandler(db, g, &recordingJobs{})

		req := httptest.NewRequest("PUT", "/api/v1/incidents/"+incidentID.Hex(), bytes.NewBufferString(`{"location": {"originalUserText": "34th and Spruce"}, "description": "updated"}`))
		req = mux.SetURLVars(req, map[string]string{"incident_id": incidentID.Hex()})
		rr := httptest.NewRecorder()
		http.HandlerFunc(h.UpdateIncidentHandler).ServeHTTP(rr, asUser(req, "admin", models.RoleAdmin))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, g.calls)
		assert.Equal(t, existing.Location, set["location"])
		assert.Equal(t, "updated", set["description"])
		assert.Equal(t, created, set["date"])
		assert.Equal(t, primitive.NewDateTimeFromTime(testNow), set["updatedAt"])
		assert.NotContains(t, set, "_id")
		assert.NotContains(t, set, "pictureDeleteHash")
	})

	t.Run("changed address is geocoded", func(t *testing.T) {
		db := &mocks.IncidentDatabase{}
		db.On("FindOne", mock.Anything, bson.M{"_id": incidentID}).Return(existing, nil)
		var set bson.M
		db.On("UpdateOne", mock.Anything, bson.M{"_id": incidentID}, mock.Anything).
			Run(func(args mock.Arguments) { set = args.Get(2).(bson.M)["$set"].(bson.M) }).
			Return(nil)
		g := &stubGeocoder{lat: 39.95, lng: -75.16}
		h := newIncidentHandler(db, g, &recordingJobs{})

		req := httptest.NewRequest("PUT", "/api/v1/incidents/"+incidentID.Hex(), bytes.NewBufferString(`{"location": {"originalUserText": "Broad and Market"}}`))
		req = mux.SetURLVars(req, map[string]string{"incident_id": incidentID.Hex()})
		rr := httptest.NewRecorder()
		http.HandlerFunc(h.UpdateIncidentHandler).ServeHTTP(rr, asUser(req, "admin", models.RoleAdmin))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []string{"Broad and Market"}, g.calls)
		assert.Equal(t, models.IncidentLocation{OriginalUserText: "Broad and Market", Latitude: 39.95, Longitude: -75.16}, set["location"])
	})

	t.Run("changed address with echoed coordinates is geocoded", func(t *testing.T) {
		db := &mocks.IncidentDatabase{}
		db.On("FindOne", mock.Anything, bson.M{"_id": incidentID}).Return(existing, nil)
		var set bson.M
		db.On("UpdateOne", mock.Anything, bson.M{"_id": incidentID}, mock.Anything).
			Run(func(args mock.Arguments) { set = args.Get(2).(bson.M)["$set"].(bson.M) }).
			Return(nil)
		g := &stubGeocoder{lat: 39.95, lng: -75.16}
		h := newIncidentHandler(db, g, &recordingJobs{})

		body := `{"location": {"originalUserText": "Broad and Market", "latitude": 39.95, "longitude": -75.19}}`
		req := httptest.NewRequest("PUT", "/api/v1/incidents/"+incidentID.Hex(), bytes.NewBufferString(body))
		req = mux.SetURLVars(req, map[string]string{"incident_id": incidentID.Hex()})
		rr := httptest.NewRecorder()
		http.HandlerFunc(h.UpdateIncidentHandler).ServeHTTP(rr, asUser(req, "admin", models.RoleAdmin))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []string{"Broad and Market"}, g.calls)
		assert.Equal(t, models.IncidentLocation{OriginalUserText: "Broad and Market", Latitude: 39.95, Longitude: -75.16}, set["location"])
	})

	t.Run("changed address with new coordinates is kept", func(t *testing.T) {
		db := &mocks.IncidentDatabase{}
		db.On("FindOne", mock.Anything, bson.M{"_id": incidentID}).Return(existing, nil)
		var set bson.M
		db.On("UpdateOne", mock.Anything, bson.M{"_id": incidentID}, mock.Anything).
			Run(func(args mock.Arguments) { set = args.Get(2).(bson.M)["$set"].(bson.M) }).
			Return(nil)
		g := &stubGeocoder{}
		h := newIncidentHandler(db, g, &recordingJobs{})

		body := `{"location": {"originalUserText": "Broad and Market", "latitude": 39.9524, "longitude": -75.1636}}`
		req := httptest.NewRequest("PUT", "/api/v1/incidents/"+incidentID.Hex(), bytes.NewBufferString(body))
		req = mux.SetURLVars(req, map[string]string{"incident_id": incidentID.Hex()})
		rr := httptest.NewRecorder()
		http.HandlerFunc(h.UpdateIncidentHandler).ServeHTTP(rr, asUser(req, "admin", models.RoleAdmin))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, g.calls)
		assert.Equal(t, models.IncidentLocation{OriginalUserText: "Broad and Market", Latitude: 39.9524, Longitude: -75.1636}, set["location"])
	})

	t.Run("geocode failure", func(t *testing.T) {
		db := &mocks.IncidentDatabase{}
		db.On("FindOne", mock.Anything, bson.M{"_id": incidentID}).Return(existing, nil)
		h := newIncidentHandler(db, &stubGeocoder{err: errors.New("no match")}, &recordingJobs{})

		req := httptest.NewRequest("PUT", "/api/v1/incidents/"+incidentID.Hex(), bytes.NewBufferString(`{"location": {"originalUserText": "Nowhere"}}`))
		req = mux.SetURLVars(req, map[string]string{"incident_id": incidentID.Hex()})
		rr := httptest.NewRecorder()
		http.HandlerFunc(h.UpdateIncidentHandler).ServeHTTP(rr, asUser(req, "admin", models.RoleAdmin))

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		db.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestIncident_DeleteIncidentHandler(t *testing.T) {
	incidentID := primitive.NewObjectID()

	for _, hash := range []string{"", "idling/abc"} {
		db := &mocks.IncidentDatabase{}
		db.On("FindOne", mock.Anything, bson.M{"_id": incidentID}).Return(&models.Incident{ID: incidentID, PictureDeleteHash: hash}, nil)
		db.On("DeleteOne", mock.Anything, bson.M{"_id": incidentID}).Return(nil)
		jobs := &recordingJobs{}
		h := newIncidentHandler(db, &stubGeocoder{}, jobs)

		req := httptest.NewRequest("DELETE", "/api/v1/incidents/"+incidentID.Hex(), nil)
		req = mux.SetURLVars(req, map[string]string{"incident_id": incidentID.Hex()})
		rr := httptest.NewRecorder()
		http.HandlerFunc(h.DeleteIncidentHandler).ServeHTTP(rr, asUser(req, "admin", models.RoleAdmin))

		assert.Equal(t, http.StatusOK, rr.Code)
		db.AssertExpectations(t)
		if hash == "" {
			assert.Empty(t, jobs.jobs)
			continue
		}
		assert.Equal(t, []enqueued{{kind: scheduler.TaskDeleteImage, args: map[string]string{"deletehash": hash}}}, jobs.jobs)
	}
}

func TestIncident_UserIncidentsHandler(t *testing.T) {
	userID := primitive.NewObjectID()
	owned := []models.Incident{{ID: primitive.NewObjectID(), UserID: &userID}}

	tests := []struct {
		name   string
		caller string
		role   string
		want   int
	}{
		{name: "self", caller: userID.Hex(), role: models.RoleUser, want: http.StatusOK},
		{name: "admin", caller: "someone", role: models.RoleAdmin, want: http.StatusOK},
		{name: "other user", caller: primitive.NewObjectID().Hex(), role: models.RoleUser, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mocks.IncidentDatabase{}
			db.On("Find", mock.Anything, bson.M{"userId": userID}).Return(owned, nil)
			h := newIncidentHandler(db, &stubGeocoder{}, &recordingJobs{})

			req := httptest.NewRequest("GET", "/api/v1/users/"+userID.Hex()+"/incidents", nil)
			req = mux.SetURLVars(req, map[string]string{"user_id": userID.Hex()})
			rr := httptest.NewRecorder()
			http.HandlerFunc(h.UserIncidentsHandler).ServeHTTP(rr, asUser(req, tt.caller, tt.role))

			assert.Equal(t, tt.want, rr.Code)
			if tt.want == http.StatusOK {
				var got []models.Incident
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
				assert.Len(t, got, 1)
			}
		})
	}
}
