package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Config holds the project config values. It is built once in main and
// handed to every component that needs credentials or settings.
type Config struct {
	URL          string
	DatabaseName string
	BaseURL      string
	Port         string
	Env          string
	LogFile      string
	AppName      string
	Timezone     string

	SessionHashKey string
	JWTSecret      string

	TwilioAccountSID      string
	TwilioAuthToken       string
	TwilioValidateWebhook bool

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	GoogleGeocodingAPIKey string

	SendgridAPIKey string
	EmailSender    string
	AdminEmail     string
}

// New sets up all config related services
func New() *Config {
	c := &Config{
		URL:                   os.Getenv("DB_URI"),
		DatabaseName:          os.Getenv("DB_NAME"),
		BaseURL:               os.Getenv("BASE_URL"),
		Port:                  getenv("PORT", "8080"),
		Env:                   getenv("APP_ENV", "development"),
		LogFile:               os.Getenv("LOG_FILE"),
		AppName:               getenv("APP_NAME", "Idling Reports"),
		Timezone:              getenv("TIMEZONE", "America/New_York"),
		SessionHashKey:        os.Getenv("SESSION_HASH_KEY"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		TwilioAccountSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:       os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioValidateWebhook: getbool("TWILIO_VALIDATE_WEBHOOK"),
		CloudinaryCloudName:   os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:      os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret:   os.Getenv("CLOUDINARY_API_SECRET"),
		GoogleGeocodingAPIKey: os.Getenv("GOOGLE_GEOCODING_API_KEY"),
		SendgridAPIKey:        os.Getenv("SENDGRID_API_KEY"),
		EmailSender:           getenv("EMAIL_SENDER", "no-reply@idlingreports.org"),
		AdminEmail:            os.Getenv("ADMIN_EMAIL"),
	}

	//setup zap logger and replace default logger
	logger, err := setLogger(c.Env, c.LogFile)
	if err != nil {
		logger = zap.NewExample()
	}
	_ = zap.ReplaceGlobals(logger)

	return c
}

// Location returns the configured timezone, falling back to UTC
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		zap.S().Warnw("unknown timezone, using UTC", "timezone", c.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().Errorw(message, "error", err, "status", httpStatusCode)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	w.Write([]byte(fmt.Sprintf(`{"response": "%s, %v"}`, message, err)))
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}
