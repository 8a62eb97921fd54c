package intake

import (
	"strconv"
	"strings"

	"github.com/linesmerrill/incident-report-api/models"
)

// Step is the position of a conversation in the report sequence
type Step int

// Steps in the order they are visited
const (
	StepInit Step = iota
	StepLocation
	StepLicensePlate
	StepVehicleID
	StepDuration
	StepDescription
	StepPicture
)

var stepNames = [...]string{"INIT", "LOCATION", "LICENSE_PLATE", "VEHICLE_ID", "DURATION", "DESCRIPTION", "PICTURE"}

func (s Step) String() string {
	if !s.Valid() {
		return "Step(" + strconv.Itoa(int(s)) + ")"
	}
	return stepNames[s]
}

// Valid reports whether s is a known step
func (s Step) Valid() bool {
	return s >= StepInit && s <= StepPicture
}

// Next returns the step following s. PICTURE folds back to INIT.
func (s Step) Next() Step {
	if s >= StepPicture || s < StepInit {
		return StepInit
	}
	return s + 1
}

// Draft is the in-progress report carried between turns
type Draft struct {
	Step         Step
	Location     string
	LicensePlate string
	VehicleID    string
	Duration     int
	Description  string
	PictureURL   string
}

const (
	resetKeyword = "report"
	skipKeyword  = "no"
)

func isKeyword(body, keyword string) bool {
	return strings.EqualFold(strings.TrimSpace(body), keyword)
}

// field describes how a step collects its value. apply validates body and
// stores it on the draft only when there are no errors.
type field struct {
	label  string
	apply  func(d *Draft, body string) []string
	prompt string
}

var fields = map[Step]field{
	StepLocation: {
		label: "location",
		apply: func(d *Draft, body string) []string {
			if errs := models.ValidateAddress(body); len(errs) > 0 {
				return errs
			}
			d.Location = body
			return nil
		},
		prompt: `What is your location? Be specific! (e.g. "34th and Spruce in Philadelphia PA")`,
	},
	StepLicensePlate: {
		label: "license plate",
		apply: func(d *Draft, body string) []string {
			if isKeyword(body, skipKeyword) {
				body = ""
			}
			if errs := models.ValidateLicensePlate(body); len(errs) > 0 {
				return errs
			}
			d.LicensePlate = body
			return nil
		},
		prompt: `What is the license plate number? Reply "no" to skip. (e.g. MG1234E)`,
	},
	StepVehicleID: {
		label: "vehicle ID",
		apply: func(d *Draft, body string) []string {
			if errs := models.ValidateVehicleID(body); len(errs) > 0 {
				return errs
			}
			d.VehicleID = body
			return nil
		},
		prompt: "What is the Vehicle ID? This is usually on the back or side of the vehicle. (e.g. 105014)",
	},
	StepDuration: {
		label: "duration",
		apply: func(d *Draft, body string) []string {
			n, err := strconv.Atoi(body)
			if err != nil {
				return []string{"Please enter a valid integer."}
			}
			if errs := models.ValidateDuration(n); len(errs) > 0 {
				return errs
			}
			d.Duration = n
			return nil
		},
		prompt: "How many minutes have you observed the vehicle idling? (e.g. 10)",
	},
	StepDescription: {
		label: "description",
		apply: func(d *Draft, body string) []string {
			if errs := models.ValidateDescription(body); len(errs) > 0 {
				return errs
			}
			d.Description = body
			return nil
		},
		prompt: "Please describe the situation (e.g. The driver is sleeping)",
	},
	StepPicture: {
		label:  "picture",
		prompt: `Last, can you take a photo of the vehicle and text it back? Reply "no" to skip.`,
	},
}

// Prompt returns the question asked when a conversation enters s
func Prompt(s Step) string {
	return fields[s].prompt
}
