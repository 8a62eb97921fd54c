package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/api"
	"github.com/linesmerrill/incident-report-api/bulk"
	"github.com/linesmerrill/incident-report-api/config"
	"github.com/linesmerrill/incident-report-api/databases"
)

// maxImportBytes caps the size of an uploaded import file
const maxImportBytes = 10 << 20

// Bulk handles CSV import and export of incidents
type Bulk struct {
	DB       databases.IncidentDatabase
	Importer *bulk.Importer
	Location *time.Location
	Now      func() time.Time
}

// importResponse is the body returned by an import
type importResponse struct {
	Imported int              `json:"imported"`
	Errors   []bulk.LineError `json:"errors"`
	Report   string           `json:"report"`
}

// ImportIncidentsHandler stores every valid line of the uploaded "file".
// Bad lines are skipped and itemized in the response.
func (b Bulk) ImportIncidentsHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		config.ErrorStatus("failed to parse upload", http.StatusBadRequest, w, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		config.ErrorStatus("missing file", http.StatusBadRequest, w, err)
		return
	}
	defer file.Close()

	result, err := b.Importer.Import(r.Context(), file)
	if errors.Is(err, bulk.ErrBadHeader) {
		config.ErrorStatus("invalid import file", http.StatusBadRequest, w, err)
		return
	}
	if err != nil {
		config.ErrorStatus("failed to import incidents", http.StatusInternalServerError, w, err)
		return
	}
	zap.S().Infow("imported incidents",
		"file", header.Filename,
		"imported", result.Imported,
		"rejected", len(result.Errors))

	errs := result.Errors
	if errs == nil {
		errs = []bulk.LineError{}
	}
	writeJSON(w, http.StatusOK, importResponse{
		Imported: result.Imported,
		Errors:   errs,
		Report:   result.Report(),
	})
}

// ExportIncidentsHandler downloads every incident as CSV
func (b Bulk) ExportIncidentsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	incidents, err := b.DB.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"date": 1}))
	if err != nil {
		config.ErrorStatus("failed to get incidents", http.StatusInternalServerError, w, err)
		return
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", bulk.ExportFilename(now().In(loc))))
	w.WriteHeader(http.StatusOK)
	if err := bulk.Export(w, incidents, loc); err != nil {
		zap.S().Errorw("failed to write export", "error", err)
	}
}
