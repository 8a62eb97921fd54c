package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/api"
	"github.com/linesmerrill/incident-report-api/api/scheduler"
	"github.com/linesmerrill/incident-report-api/bulk"
	"github.com/linesmerrill/incident-report-api/config"
	"github.com/linesmerrill/incident-report-api/databases"
	"github.com/linesmerrill/incident-report-api/geocode"
	"github.com/linesmerrill/incident-report-api/imagehost"
	"github.com/linesmerrill/incident-report-api/intake"
	"github.com/linesmerrill/incident-report-api/models"
	"github.com/linesmerrill/incident-report-api/sms"
)

// RequestTimeout bounds every request
const RequestTimeout = 30 * time.Second

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Scheduler *scheduler.Scheduler

	client   databases.ClientHelper
	dbHelper databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	incidentDB := databases.NewIncidentDatabase(a.dbHelper)
	userDB := databases.NewUserDatabase(a.dbHelper)
	jobs := scheduler.NewQueue(databases.NewJobDatabase(a.dbHelper))
	geocoder := geocode.New(&a.Config)
	twilio := sms.New(&a.Config)
	loc := a.Config.Location()

	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: userDB, Secret: []byte(a.Config.JWTSecret)}
	m.SetupGoGuardian()

	finalizer := intake.NewFinalizer(&a.Config, geocoder, incidentDB, userDB, jobs)
	messaging := Messaging{
		Codec:        intake.NewSessionCodec([]byte(a.Config.SessionHashKey), a.Config.Env == "production"),
		Conversation: intake.NewMachine(a.Config.AppName, finalizer, jobs),
	}
	incident := Incident{DB: incidentDB, Geocoder: geocoder, Jobs: jobs}
	b := Bulk{DB: incidentDB, Importer: bulk.NewImporter(geocoder, incidentDB, loc), Location: loc}
	cloudinaryHandler := CloudinaryHandler{Conf: &a.Config}

	admin := func(h http.HandlerFunc) http.Handler {
		return m.Middleware(api.RequireAdmin(h))
	}

	r := mux.NewRouter()
	r.Use(api.LoggingMiddleware, api.TimeoutMiddleware(RequestTimeout))

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	var webhook http.Handler = http.HandlerFunc(messaging.ReportIncidentHandler)
	if a.Config.TwilioValidateWebhook {
		webhook = api.TwilioSignatureMiddleware(twilio, a.Config.BaseURL)(webhook)
	}
	r.Handle("/report_incident", webhook).Methods("GET", "POST")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/auth/token", m.Middleware(http.HandlerFunc(m.CreateToken))).Methods("POST")

	// export and import must stay above the {incident_id} routes
	apiCreate.Handle("/incidents/export", http.HandlerFunc(b.ExportIncidentsHandler)).Methods("GET")
	apiCreate.Handle("/incidents/import", admin(b.ImportIncidentsHandler)).Methods("POST")
	apiCreate.Handle("/incidents", http.HandlerFunc(incident.CreateIncidentHandler)).Methods("POST")
	apiCreate.Handle("/incidents", admin(incident.IncidentsHandler)).Methods("GET")
	apiCreate.Handle("/incidents/{incident_id}", m.Middleware(http.HandlerFunc(incident.IncidentByIDHandler))).Methods("GET")
	apiCreate.Handle("/incidents/{incident_id}", m.Middleware(http.HandlerFunc(incident.UpdateIncidentHandler))).Methods("PUT")
	apiCreate.Handle("/incidents/{incident_id}", admin(incident.DeleteIncidentHandler)).Methods("DELETE")

	apiCreate.Handle("/images/signature", http.HandlerFunc(cloudinaryHandler.GenerateSignature)).Methods("POST")

	apiCreate.Handle("/users/{user_id}/incidents", m.Middleware(http.HandlerFunc(incident.UserIncidentsHandler))).Methods("GET")

	return r
}

// Initialize is invoked by main to connect with the database, wire the
// background tasks and create a router
func (a *App) Initialize() error {
	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().Errorw("failed to create new client", "error", err)
		return err
	}

	a.client = client
	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().Errorw("failed to connect to database", "error", err)
		return err
	}
	zap.S().Infow("connected to the database", "app", a.Config.AppName)

	if a.Config.JWTSecret == "" {
		zap.S().Warn("no JWT secret configured, generating a random one")
		a.Config.JWTSecret = string(securecookie.GenerateRandomKey(32))
	}

	if err := a.initializeScheduler(); err != nil {
		return err
	}

	// initialize api router
	a.initializeRoutes()
	return nil
}

func (a *App) initializeScheduler() error {
	jobDB := databases.NewJobDatabase(a.dbHelper)
	twilio := sms.New(&a.Config)

	tasks := &scheduler.Tasks{
		Conf:       &a.Config,
		IncidentDB: databases.NewIncidentDatabase(a.dbHelper),
		JobDB:      jobDB,
		Fetcher:    twilio,
		Deleter:    twilio,
	}

	images, err := imagehost.New(&a.Config)
	switch {
	case errors.Is(err, imagehost.ErrNotConfigured):
		zap.S().Warn("cloudinary is not configured, pictures will not be uploaded")
	case err != nil:
		zap.S().Errorw("failed to create image host", "error", err)
		return err
	default:
		tasks.Images = images
	}

	if a.Config.SendgridAPIKey != "" {
		tasks.Mail = scheduler.NewSendgridMailer(a.Config.SendgridAPIKey, a.Config.AppName, a.Config.EmailSender)
	} else {
		zap.S().Warn("sendgrid is not configured, new report e-mails are disabled")
	}

	a.Scheduler = scheduler.NewScheduler(jobDB)
	tasks.Register(a.Scheduler)
	return nil
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

// Close stops the scheduler and disconnects from the database
func (a *App) Close(ctx context.Context) error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.client != nil {
		return a.client.Disconnect(ctx)
	}
	return nil
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
