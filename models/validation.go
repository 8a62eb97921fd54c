package models

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// Field limits shared by the web form, the SMS conversation and CSV import
const (
	MaxAddressLength      = 500
	MaxDescriptionLength  = 5000
	MaxContactNameLength  = 1000
	MaxContactPhoneLength = 1000
	MaxContactEmailLength = 100
	MinVehicleIDLength    = 2
	MaxVehicleIDLength    = 15
	MinLicensePlateLength = 4
	MaxLicensePlateLength = 8
	MinDurationMinutes    = 0
	MaxDurationMinutes    = 10000
)

// Categories accepted for an incident
var Categories = []string{
	"Failure to stop",
	"Running a red light",
	"Swerving vehicle",
	"Tailgating",
	"Cycling on sidewalk",
	"Car door",
	"Crossing against signal",
	"Other",
}

// StripNonAlphanumeric drops every rune that is not a letter or digit
func StripNonAlphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateAddress checks that an address is present and plausible. It does
// not check that the address can be geocoded.
func ValidateAddress(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{"Address is required."}
	}
	var errs []string
	if len(s) > MaxAddressLength {
		errs = append(errs, fmt.Sprintf("Address must be at most %d characters.", MaxAddressLength))
	}
	if StripNonAlphanumeric(s) == "" {
		errs = append(errs, "Address must contain at least one letter or number.")
	}
	return errs
}

// ValidateVehicleID requires 2 to 15 alphanumeric characters
func ValidateVehicleID(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{"Vehicle ID is required."}
	}
	n := len(StripNonAlphanumeric(s))
	if n < MinVehicleIDLength || n > MaxVehicleIDLength {
		return []string{"Vehicle ID must be between 2 to 15 characters after removing all non-alphanumeric characters."}
	}
	return nil
}

// ValidateLicensePlate accepts an empty plate or 4 to 8 alphanumeric characters
func ValidateLicensePlate(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	n := len(StripNonAlphanumeric(s))
	if n < MinLicensePlateLength || n > MaxLicensePlateLength {
		return []string{"License plate must be between 4 to 8 characters after removing all non-alphanumeric characters."}
	}
	return nil
}

// ValidateDuration bounds an idling duration in minutes
func ValidateDuration(minutes int) []string {
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return []string{"Idling duration must be between 0 and 10000 minutes."}
	}
	return nil
}

// ValidateDescription caps the free-text description
func ValidateDescription(s string) []string {
	return maxLength(s, MaxDescriptionLength)
}

// ValidatePictureURL accepts an empty value or an absolute http(s) URL
func ValidatePictureURL(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []string{"Picture URL must be a valid URL. Please upload the image to an image hosting website and paste the link here."}
	}
	return nil
}

// ValidateCategory accepts an empty value or one of Categories
func ValidateCategory(s string) []string {
	if s == "" {
		return nil
	}
	for _, c := range Categories {
		if c == s {
			return nil
		}
	}
	return []string{"Not a valid choice."}
}

func maxLength(s string, max int) []string {
	if len(s) > max {
		return []string{fmt.Sprintf("Field cannot be longer than %d characters.", max)}
	}
	return nil
}

// Validate runs every field validator on an incident submitted through the
// form or the CSV import. Keys are the json field names.
func (i Incident) Validate() map[string][]string {
	errs := map[string][]string{}
	add := func(field string, msgs []string) {
		if len(msgs) > 0 {
			errs[field] = append(errs[field], msgs...)
		}
	}
	add("location", ValidateAddress(i.Location.OriginalUserText))
	if i.VehicleID != "" {
		add("vehicleId", ValidateVehicleID(i.VehicleID))
	}
	add("licensePlate", ValidateLicensePlate(i.LicensePlate))
	add("durationMinutes", ValidateDuration(i.DurationMinutes))
	add("description", ValidateDescription(i.Description))
	add("injuriesDescription", maxLength(i.InjuriesDescription, MaxDescriptionLength))
	add("roadConditions", maxLength(i.RoadConditions, MaxDescriptionLength))
	add("pictureUrl", ValidatePictureURL(i.PictureURL))
	add("category", ValidateCategory(i.Category))
	add("contactName", maxLength(i.ContactName, MaxContactNameLength))
	add("contactPhone", maxLength(i.ContactPhone, MaxContactPhoneLength))
	add("contactEmail", maxLength(i.ContactEmail, MaxContactEmailLength))
	if i.Injuries == "Yes" && strings.TrimSpace(i.InjuriesDescription) == "" {
		add("injuriesDescription", []string{"Please describe the injuries."})
	}
	for field, n := range map[string]int{
		"automobileNum": i.AutomobileNum,
		"bicycleNum":    i.BicycleNum,
		"pedestrianNum": i.PedestrianNum,
		"otherNum":      i.OtherNum,
		"deaths":        i.Deaths,
	} {
		if n < 0 {
			add(field, []string{"Number must be at least 0."})
		}
	}
	return errs
}
