package bulk

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/linesmerrill/incident-report-api/models"
)

// ExportHeader is the column order of exported files
var ExportHeader = []string{
	"DATE",
	"LOCATION",
	"LATITUDE",
	"LONGITUDE",
	"VEHICLE ID",
	"DURATION",
	"LICENSE PLATE",
	"NUMBER OF AUTOMOBILES",
	"NUMBER OF BICYCLES",
	"NUMBER OF PEDESTRIANS",
	"NUMBER OF OTHER",
	"DESCRIPTION",
	"INJURIES",
	"PICTURE URL",
}

const exportDateLayout = "2006-01-02 15:04"

// ExportFilename names a download made at t
func ExportFilename(t time.Time) string {
	return "IncidentReports-" + t.Format("2006-01-02") + ".csv"
}

// Export writes one row per incident, dates shown in loc
func Export(w io.Writer, incidents []models.Incident, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for _, i := range incidents {
		record := []string{
			i.Date.Time().In(loc).Format(exportDateLayout),
			i.Location.OriginalUserText,
			strconv.FormatFloat(i.Location.Latitude, 'f', -1, 64),
			strconv.FormatFloat(i.Location.Longitude, 'f', -1, 64),
			i.VehicleID,
			strconv.Itoa(i.DurationMinutes),
			i.LicensePlate,
			strconv.Itoa(i.AutomobileNum),
			strconv.Itoa(i.BicycleNum),
			strconv.Itoa(i.PedestrianNum),
			strconv.Itoa(i.OtherNum),
			i.Description,
			i.Injuries,
			i.PictureURL,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
