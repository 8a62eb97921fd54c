// Package sms talks to Twilio: it renders TwiML replies, fetches and deletes
// the media attached to inbound messages and checks webhook signatures.
package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/config"
)

// maxMediaBytes caps how much of an MMS attachment is read into memory
const maxMediaBytes = 10 << 20

type mediaAPI interface {
	ListMedia(messageSid string, params *openapi.ListMediaParams) ([]openapi.ApiV2010Media, error)
	DeleteMedia(messageSid string, sid string, params *openapi.DeleteMediaParams) error
}

// Client holds the Twilio credentials and REST client
type Client struct {
	accountSID string
	authToken  string
	api        mediaAPI
	httpClient *http.Client
}

// New creates a Twilio client from the config
func New(conf *config.Config) *Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: conf.TwilioAccountSID,
		Password: conf.TwilioAuthToken,
	})
	return &Client{
		accountSID: conf.TwilioAccountSID,
		authToken:  conf.TwilioAuthToken,
		api:        rest.Api,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchMedia downloads an inbound media URL. Twilio media URLs accept the
// account credentials as basic auth and redirect to the stored file.
func (c *Client) FetchMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	if c.accountSID != "" {
		req.SetBasicAuth(c.accountSID, c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch media: status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read media: %w", err)
	}
	if len(b) > maxMediaBytes {
		return nil, fmt.Errorf("failed to read media: larger than %d bytes", maxMediaBytes)
	}
	return b, nil
}

// DeleteMessageMedia deletes every media item attached to a message and
// returns how many were removed. It stops at the first failure.
func (c *Client) DeleteMessageMedia(ctx context.Context, messageSID string) (int, error) {
	media, err := c.api.ListMedia(messageSID, &openapi.ListMediaParams{})
	if err != nil {
		return 0, fmt.Errorf("failed to list media for %s: %w", messageSID, err)
	}
	deleted := 0
	for _, m := range media {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if m.Sid == nil {
			continue
		}
		if err := c.api.DeleteMedia(messageSID, *m.Sid, &openapi.DeleteMediaParams{}); err != nil {
			return deleted, fmt.Errorf("failed to delete media %s: %w", *m.Sid, err)
		}
		deleted++
	}
	zap.S().Infow("deleted message media", "messageSid", messageSID, "count", deleted)
	return deleted, nil
}

// ValidSignature checks the X-Twilio-Signature header of a webhook request.
// fullURL must be the URL Twilio requested, including any query string.
func (c *Client) ValidSignature(fullURL string, params map[string]string, signature string) bool {
	v := client.NewRequestValidator(c.authToken)
	return v.Validate(fullURL, params, signature)
}

// Reply renders outbound messages as a TwiML document
func Reply(messages ...string) (string, error) {
	verbs := make([]twiml.Element, 0, len(messages))
	for _, m := range messages {
		verbs = append(verbs, &twiml.MessagingMessage{Body: m})
	}
	return twiml.Messages(verbs)
}
