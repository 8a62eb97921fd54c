// Package bulk reads and writes incidents as CSV for administrators
package bulk

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/databases"
	"github.com/linesmerrill/incident-report-api/models"
)

// ImportHeader is the exact column order an import file must start with.
// Matching is case-insensitive.
var ImportHeader = []string{
	"DATE",
	"LOCATION",
	"NUMBER OF AUTOMOBILES",
	"NUMBER OF BICYCLES",
	"NUMBER OF PEDESTRIANS",
	"DESCRIPTION",
	"INJURIES",
	"INJURIES DESCRIPTION",
	"NUMBER OF DEATHS",
	"LICENSE PLATES",
	"PICTURE URL",
	"CONTACT NAME",
	"CONTACT PHONE",
	"CONTACT EMAIL",
}

const (
	colDate = iota
	colLocation
	colAutomobiles
	colBicycles
	colPedestrians
	colDescription
	colInjuries
	colInjuriesDescription
	colDeaths
	colLicensePlates
	colPictureURL
	colContactName
	colContactPhone
	colContactEmail
)

// ErrBadHeader is returned when the first line does not match ImportHeader
var ErrBadHeader = errors.New("the column names and order must match the specified form exactly")

var fieldLabels = map[string]string{
	"location":            "Location",
	"licensePlate":        "License Plates",
	"description":         "Description",
	"injuriesDescription": "Injuries Description",
	"pictureUrl":          "Picture URL",
	"contactName":         "Contact Name",
	"contactPhone":        "Contact Phone",
	"contactEmail":        "Contact Email",
	"automobileNum":       "Number of Automobiles",
	"bicycleNum":          "Number of Bicycles",
	"pedestrianNum":       "Number of Pedestrians",
	"deaths":              "Number of Deaths",
}

// LineError is a problem with one line of an import file. Lines are
// numbered from 1, so the first data line is 2.
type LineError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

func (e LineError) String() string {
	return fmt.Sprintf("Line: %d, Error: %s", e.Line, e.Error)
}

// ImportResult summarizes an import
type ImportResult struct {
	Imported int         `json:"imported"`
	Errors   []LineError `json:"errors"`
}

// Report renders the result the way it is shown to administrators
func (r ImportResult) Report() string {
	if len(r.Errors) == 0 {
		return "All lines were added successfully."
	}
	var b strings.Builder
	b.WriteString("We found errors in the following lines:\n")
	for _, e := range r.Errors {
		b.WriteString(e.String())
		b.WriteString("\n")
	}
	return b.String()
}

// Geocoder resolves free text to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat float64, lng float64, err error)
}

// Importer stores the rows of an import file as incidents
type Importer struct {
	Geocoder   Geocoder
	IncidentDB databases.IncidentDatabase
	Location   *time.Location
	now        func() time.Time
}

// NewImporter creates an importer parsing dates in loc
func NewImporter(g Geocoder, idb databases.IncidentDatabase, loc *time.Location) *Importer {
	if loc == nil {
		loc = time.UTC
	}
	return &Importer{Geocoder: g, IncidentDB: idb, Location: loc, now: time.Now}
}

// Import reads r and inserts every valid row. Bad rows are skipped and listed
// in the result. An error is returned only when the file itself is unusable.
func (im *Importer) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return ImportResult{}, ErrBadHeader
	}
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to read header: %w", err)
	}
	if !matchHeader(header) {
		return ImportResult{}, ErrBadHeader
	}

	result := ImportResult{Errors: []LineError{}}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			line := 0
			if errors.As(err, &perr) {
				line = perr.StartLine
			}
			result.Errors = append(result.Errors, LineError{Line: line, Error: "Malformed line"})
			continue
		}
		// physical line, so quoted multi-line cells do not shift later rows
		line, _ := reader.FieldPos(0)
		if errs := im.importRow(ctx, row); len(errs) > 0 {
			for _, e := range errs {
				result.Errors = append(result.Errors, LineError{Line: line, Error: e})
			}
			continue
		}
		result.Imported++
	}

	zap.S().Infow("imported incidents from csv",
		"imported", result.Imported,
		"errors", len(result.Errors))
	return result, nil
}

func matchHeader(header []string) bool {
	if len(header) != len(ImportHeader) {
		return false
	}
	for i, h := range header {
		// the first cell may carry a byte order mark from spreadsheet exports
		h = strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")
		if !strings.EqualFold(h, ImportHeader[i]) {
			return false
		}
	}
	return true
}

// importRow returns the labels of everything wrong with row, or stores it
func (im *Importer) importRow(ctx context.Context, row []string) []string {
	if len(row) != len(ImportHeader) {
		return []string{"Wrong number of columns"}
	}
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}

	var errs []string
	date, err := dateparse.ParseIn(row[colDate], im.Location)
	if err != nil {
		errs = append(errs, "Date/Time Format")
	}

	incident := models.Incident{
		Location:            models.IncidentLocation{OriginalUserText: row[colLocation]},
		Description:         row[colDescription],
		Injuries:            row[colInjuries],
		InjuriesDescription: row[colInjuriesDescription],
		LicensePlate:        row[colLicensePlates],
		PictureURL:          row[colPictureURL],
		ContactName:         row[colContactName],
		ContactPhone:        row[colContactPhone],
		ContactEmail:        row[colContactEmail],
	}
	for _, c := range []struct {
		col   int
		label string
		dst   *int
	}{
		{colAutomobiles, "Number of Automobiles", &incident.AutomobileNum},
		{colBicycles, "Number of Bicycles", &incident.BicycleNum},
		{colPedestrians, "Number of Pedestrians", &incident.PedestrianNum},
		{colDeaths, "Number of Deaths", &incident.Deaths},
	} {
		n, err := parseCount(row[c.col])
		if err != nil {
			errs = append(errs, c.label)
			continue
		}
		*c.dst = n
	}

	invalid := incident.Validate()
	// plates in a bulk file may list several vehicles
	delete(invalid, "licensePlate")
	keys := make([]string, 0, len(invalid))
	for k := range invalid {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		label, ok := fieldLabels[k]
		if !ok {
			label = k
		}
		errs = append(errs, label)
	}
	if len(errs) > 0 {
		return errs
	}

	lat, lng, err := im.Geocoder.Geocode(ctx, incident.Location.OriginalUserText)
	if err != nil {
		return []string{fmt.Sprintf("Failed to geocode %q", incident.Location.OriginalUserText)}
	}
	incident.Location.Latitude = lat
	incident.Location.Longitude = lng
	if !date.IsZero() {
		incident.Date = primitive.NewDateTimeFromTime(date)
	}

	if _, err := im.IncidentDB.InsertOne(ctx, models.NewIncident(incident, im.now())); err != nil {
		zap.S().Errorw("failed to insert imported incident", "error", err)
		return []string{"Other"}
	}
	return nil
}

// parseCount reads a count column. Blank means zero.
func parseCount(s string) (int, error) {
	s = models.StripNonAlphanumeric(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
