package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Incident holds the structure for the incidents collection in mongo. The
// location is embedded so an incident and its location are always written
// together.
type Incident struct {
	ID                  primitive.ObjectID  `json:"_id" bson:"_id"`
	Location            IncidentLocation    `json:"location" bson:"location"`
	Date                primitive.DateTime  `json:"date" bson:"date"`
	VehicleID           string              `json:"vehicleId" bson:"vehicleId"`
	LicensePlate        string              `json:"licensePlate" bson:"licensePlate"`
	DurationMinutes     int                 `json:"durationMinutes" bson:"durationMinutes"`
	AutomobileNum       int                 `json:"automobileNum" bson:"automobileNum"`
	BicycleNum          int                 `json:"bicycleNum" bson:"bicycleNum"`
	PedestrianNum       int                 `json:"pedestrianNum" bson:"pedestrianNum"`
	OtherNum            int                 `json:"otherNum" bson:"otherNum"`
	Description         string              `json:"description" bson:"description"`
	Injuries            string              `json:"injuries" bson:"injuries"`
	InjuriesDescription string              `json:"injuriesDescription" bson:"injuriesDescription"`
	Deaths              int                 `json:"deaths" bson:"deaths"`
	Witness             string              `json:"witness" bson:"witness"`
	Category            string              `json:"category" bson:"category"`
	RoadConditions      string              `json:"roadConditions" bson:"roadConditions"`
	PictureURL          string              `json:"pictureUrl" bson:"pictureUrl"`
	PictureDeleteHash   string              `json:"-" bson:"pictureDeleteHash"`
	ContactName         string              `json:"contactName" bson:"contactName"`
	ContactPhone        string              `json:"contactPhone" bson:"contactPhone"`
	ContactEmail        string              `json:"contactEmail" bson:"contactEmail"`
	UserID              *primitive.ObjectID `json:"userId,omitempty" bson:"userId,omitempty"`
	CreatedAt           primitive.DateTime  `json:"createdAt" bson:"createdAt"`
	UpdatedAt           primitive.DateTime  `json:"updatedAt" bson:"updatedAt"`
}

// IncidentLocation is the raw address a reporter typed plus the coordinates
// it was geocoded to.
type IncidentLocation struct {
	OriginalUserText string  `json:"originalUserText" bson:"originalUserText"`
	Latitude         float64 `json:"latitude" bson:"latitude"`
	Longitude        float64 `json:"longitude" bson:"longitude"`
}

// String returns the address as the reporter typed it
func (l IncidentLocation) String() string {
	return l.OriginalUserText
}

// NewIncident stamps the bookkeeping fields of an incident before insert:
// a fresh id, the creation time, a report date when none was given, and a
// description with line breaks flattened to spaces.
func NewIncident(i Incident, now time.Time) Incident {
	i.ID = primitive.NewObjectID()
	if i.Date == 0 {
		i.Date = primitive.NewDateTimeFromTime(now)
	}
	i.CreatedAt = primitive.NewDateTimeFromTime(now)
	i.UpdatedAt = i.CreatedAt
	i.Description = NormalizeDescription(i.Description)
	return i
}

// NormalizeDescription replaces carriage returns and newlines with spaces
func NormalizeDescription(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// IncidentListResponse is the paginated body returned by the incident list endpoint
type IncidentListResponse struct {
	Page       int        `json:"page"`
	TotalCount int64      `json:"totalCount"`
	Data       []Incident `json:"data"`
}
