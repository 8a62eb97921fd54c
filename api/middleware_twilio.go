package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/config"
)

// ErrInvalidSignature is reported when a webhook signature does not match
var ErrInvalidSignature = errors.New("invalid signature")

// SignatureValidator checks a Twilio webhook signature
type SignatureValidator interface {
	ValidSignature(fullURL string, params map[string]string, signature string) bool
}

// TwilioSignatureMiddleware rejects webhook calls whose X-Twilio-Signature
// does not match. baseURL is the public scheme and host Twilio calls, since
// the request may arrive through a proxy.
func TwilioSignatureMiddleware(v SignatureValidator, baseURL string) func(http.Handler) http.Handler {
	base := strings.TrimRight(baseURL, "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				config.ErrorStatus("malformed request", http.StatusBadRequest, w, err)
				return
			}
			params := map[string]string{}
			if r.Method == http.MethodPost {
				for k, vals := range r.PostForm {
					if len(vals) > 0 {
						params[k] = vals[0]
					}
				}
			}
			fullURL := base + r.URL.RequestURI()
			if !v.ValidSignature(fullURL, params, r.Header.Get("X-Twilio-Signature")) {
				zap.S().Warnw("rejected webhook with bad signature", "url", fullURL)
				config.ErrorStatus("failed to validate webhook", http.StatusForbidden, w, ErrInvalidSignature)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
