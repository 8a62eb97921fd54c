package sms

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type mockMediaAPI struct {
	mock.Mock
}

func (m *mockMediaAPI) ListMedia(messageSid string, params *openapi.ListMediaParams) ([]openapi.ApiV2010Media, error) {
	ret := m.Called(messageSid, params)
	var r0 []openapi.ApiV2010Media
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]openapi.ApiV2010Media)
	}
	return r0, ret.Error(1)
}

func (m *mockMediaAPI) DeleteMedia(messageSid string, sid string, params *openapi.DeleteMediaParams) error {
	return m.Called(messageSid, sid, params).Error(0)
}

func strPtr(s string) *string { return &s }

func TestDeleteMessageMedia(t *testing.T) {
	m := &mockMediaAPI{}
	m.On("ListMedia", "MM123", mock.Anything).Return([]openapi.ApiV2010Media{
		{Sid: strPtr("ME1")}, {Sid: nil}, {Sid: strPtr("ME2")},
	}, nil)
	m.On("DeleteMedia", "MM123", mock.Anything, mock.Anything).Return(nil)

	c := &Client{api: m}
	n, err := c.DeleteMessageMedia(context.Background(), "MM123")

	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	m.AssertCalled(t, "DeleteMedia", "MM123", "ME1", mock.Anything)
	m.AssertCalled(t, "DeleteMedia", "MM123", "ME2", mock.Anything)
}

func TestDeleteMessageMediaListError(t *testing.T) {
	m := &mockMediaAPI{}
	m.On("ListMedia", "MM123", mock.Anything).Return(nil, errors.New("not found"))

	c := &Client{api: m}
	n, err := c.DeleteMessageMedia(context.Background(), "MM123")

	assert.Equal(t, 0, n)
	assert.ErrorContains(t, err, "not found")
	m.AssertNotCalled(t, "DeleteMedia", mock.Anything, mock.Anything, mock.Anything)
}

func TestFetchMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("jpeg bytes"))
	}))
	defer srv.Close()

	c := &Client{accountSID: "AC1", authToken: "token", httpClient: srv.Client()}
	b, err := c.FetchMedia(context.Background(), srv.URL+"/Media/ME1")
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(b))

	c.authToken = "wrong"
	_, err = c.FetchMedia(context.Background(), srv.URL+"/Media/ME1")
	assert.ErrorContains(t, err, "status 401")
}

func TestReply(t *testing.T) {
	out, err := Reply("What is your location?", "Errors:\nAddress is required.")

	require.NoError(t, err)
	assert.Contains(t, out, "<Response>")
	assert.Contains(t, out, "<Message>What is your location?</Message>")
	assert.Contains(t, out, "Address is required.")
}

func TestFetchMediaTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("a"), maxMediaBytes+1))
	}))
	defer srv.Close()

	c := &Client{httpClient: srv.Client()}
	b, err := c.FetchMedia(context.Background(), srv.URL+"/Media/ME1")
	assert.Nil(t, b)
	assert.ErrorContains(t, err, "larger than")
}

func sign(token, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := url
	for _, k := range keys {
		buf += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(buf))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidSignature(t *testing.T) {
	c := &Client{authToken: "12345"}
	url := "https://example.com/report_incident"
	params := map[string]string{"Body": "hello", "From": "+12155551234", "MessageSid": "SM1"}
	good := sign("12345", url, params)

	assert.True(t, c.ValidSignature(url, params, good))
	assert.False(t, c.ValidSignature(url, params, sign("other", url, params)))

	params["Body"] = "tampered"
	assert.False(t, c.ValidSignature(url, params, good))
}
