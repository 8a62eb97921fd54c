package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/linesmerrill/incident-report-api/config"
	"github.com/linesmerrill/incident-report-api/imagehost"
)

// CloudinaryHandler handles Cloudinary related requests
type CloudinaryHandler struct {
	Conf *config.Config
	Now  func() time.Time
}

// GenerateSignature signs a direct upload for the report form's picture
func (c CloudinaryHandler) GenerateSignature(w http.ResponseWriter, r *http.Request) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	sig, err := imagehost.SignUpload(c.Conf, now())
	if errors.Is(err, imagehost.ErrNotConfigured) {
		config.ErrorStatus("picture uploads are disabled", http.StatusServiceUnavailable, w, err)
		return
	}
	if err != nil {
		config.ErrorStatus("failed to sign upload", http.StatusInternalServerError, w, err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}
