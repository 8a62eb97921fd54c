package intake

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

// SessionTTL is how long an unfinished draft survives between messages
const SessionTTL = time.Hour

// Cookie names, one per draft field
const (
	CookieStep         = "messagecount"
	CookieLocation     = "location"
	CookieLicensePlate = "license_plate"
	CookieVehicleID    = "vehicle_id"
	CookieDuration     = "duration"
	CookieDescription  = "description"
	CookiePictureURL   = "picture_url"
)

// sessionValue is what gets signed into each cookie. Expiry travels inside
// the signed payload so a client cannot extend it.
type sessionValue struct {
	V   string `json:"v"`
	Exp int64  `json:"e"`
}

// SessionCodec carries a Draft in signed, expiring cookies
type SessionCodec struct {
	sc     *securecookie.SecureCookie
	ttl    time.Duration
	now    func() time.Time
	secure bool
}

// NewSessionCodec signs cookies with hashKey. An empty key gets a random one,
// which invalidates every session on restart.
func NewSessionCodec(hashKey []byte, secure bool) *SessionCodec {
	if len(hashKey) == 0 {
		zap.S().Warn("no session hash key configured, generating a random one")
		hashKey = securecookie.GenerateRandomKey(32)
	}
	sc := securecookie.New(hashKey, nil)
	sc.SetSerializer(securecookie.JSONEncoder{})
	// expiry is checked against our own clock
	sc.MaxAge(0)
	return &SessionCodec{
		sc:     sc,
		ttl:    SessionTTL,
		now:    time.Now,
		secure: secure,
	}
}

// Encode writes every draft field as its own cookie, refreshing the expiry
// of all of them
func (c *SessionCodec) Encode(w http.ResponseWriter, d Draft) error {
	now := c.now()
	expires := now.Add(c.ttl)
	for _, kv := range []struct{ name, value string }{
		{CookieStep, strconv.Itoa(int(d.Step))},
		{CookieVehicleID, d.VehicleID},
		{CookieLicensePlate, d.LicensePlate},
		{CookieDuration, strconv.Itoa(d.Duration)},
		{CookieDescription, d.Description},
		{CookieLocation, d.Location},
		{CookiePictureURL, d.PictureURL},
	} {
		encoded, err := c.sc.Encode(kv.name, sessionValue{V: kv.value, Exp: expires.Unix()})
		if err != nil {
			return fmt.Errorf("failed to encode cookie %s: %w", kv.name, err)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     kv.name,
			Value:    encoded,
			Path:     "/",
			Expires:  expires.UTC(),
			MaxAge:   int(c.ttl.Seconds()),
			HttpOnly: true,
			Secure:   c.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return nil
}

// Decode rebuilds the draft from the request cookies. A missing, tampered or
// expired cookie yields the field's zero value.
func (c *SessionCodec) Decode(r *http.Request) Draft {
	d := Draft{
		Step:         Step(c.int(r, CookieStep)),
		Location:     c.value(r, CookieLocation),
		LicensePlate: c.value(r, CookieLicensePlate),
		VehicleID:    c.value(r, CookieVehicleID),
		Duration:     c.int(r, CookieDuration),
		Description:  c.value(r, CookieDescription),
		PictureURL:   c.value(r, CookiePictureURL),
	}
	if !d.Step.Valid() {
		d.Step = StepInit
	}
	return d
}

func (c *SessionCodec) value(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	var v sessionValue
	if err := c.sc.Decode(name, cookie.Value, &v); err != nil {
		var scErr securecookie.Error
		if errors.As(err, &scErr) && scErr.IsDecode() {
			zap.S().Debugw("rejected session cookie", "cookie", name, "error", err)
		}
		return ""
	}
	if c.now().Unix() >= v.Exp {
		return ""
	}
	return v.V
}

func (c *SessionCodec) int(r *http.Request, name string) int {
	n, err := strconv.Atoi(c.value(r, name))
	if err != nil {
		return 0
	}
	return n
}
