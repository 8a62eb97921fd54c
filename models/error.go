package models

// ValidationErrorResponse lists every failed field of a submitted incident
type ValidationErrorResponse struct {
	Errors map[string][]string `json:"errors"`
}

// HealthCheckResponse is returned by the health endpoint
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}
