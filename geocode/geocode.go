// Package geocode resolves free-text addresses to coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	geo "github.com/codingsince1985/geo-golang"
	"github.com/codingsince1985/geo-golang/google"
	"github.com/codingsince1985/geo-golang/openstreetmap"
	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/config"
)

// ErrNoMatch is returned when the provider has no result for an address
var ErrNoMatch = errors.New("address could not be geocoded")

// Client wraps a geo-golang provider
type Client struct {
	geocoder geo.Geocoder
}

// New picks Google when an API key is configured and OpenStreetMap otherwise
func New(conf *config.Config) *Client {
	if conf.GoogleGeocodingAPIKey != "" {
		return NewWithGeocoder(google.Geocoder(conf.GoogleGeocodingAPIKey))
	}
	return NewWithGeocoder(openstreetmap.Geocoder())
}

// NewWithGeocoder wraps any geo-golang provider
func NewWithGeocoder(g geo.Geocoder) *Client {
	return &Client{geocoder: g}
}

type result struct {
	loc *geo.Location
	err error
}

// Geocode returns the latitude and longitude of address, or ErrNoMatch
func (c *Client) Geocode(ctx context.Context, address string) (float64, float64, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0, 0, ErrNoMatch
	}

	ch := make(chan result, 1)
	go func() {
		loc, err := c.geocoder.Geocode(address)
		ch <- result{loc: loc, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			zap.S().Warnw("geocoder returned an error", "address", address, "error", r.err)
			return 0, 0, fmt.Errorf("geocode %q: %w", address, r.err)
		}
		if r.loc == nil {
			return 0, 0, ErrNoMatch
		}
		return r.loc.Lat, r.loc.Lng, nil
	}
}
