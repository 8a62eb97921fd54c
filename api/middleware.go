package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/basic"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/incident-report-api/databases"
	"github.com/linesmerrill/incident-report-api/models"
)

// TokenTTL is how long an issued token stays valid
const TokenTTL = 24 * time.Hour

// MiddlewareDB authenticates requests against the users collection. Basic
// auth (email and password) is accepted everywhere; bearer tokens are JWTs
// issued by CreateToken.
type MiddlewareDB struct {
	DB     databases.UserDatabase
	Secret []byte

	authenticator auth.Authenticator
	now           func() time.Time
}

type tokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// SetupGoGuardian sets up the go-guardian strategies
func (m *MiddlewareDB) SetupGoGuardian() {
	if m.now == nil {
		m.now = time.Now
	}
	m.authenticator = auth.New()
	cache := store.NewFIFO(context.Background(), 10*time.Minute)
	basicStrategy := basic.New(m.ValidateUser, cache)
	tokenStrategy := bearer.New(m.ValidateToken, cache)

	m.authenticator.EnableStrategy(basic.StrategyKey, basicStrategy)
	m.authenticator.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)
}

// Middleware rejects unauthenticated requests and stores the caller on the
// request context
func (m *MiddlewareDB) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.authenticator.Authenticate(r)
		if err != nil {
			zap.S().Warnw("unauthorized",
				"url", r.URL.String(),
				"error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}
		zap.S().Debugw("user authenticated", "user", user.UserName())
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireAdmin only lets administrators through. It must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(UserFromContext(r.Context())) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": "forbidden"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsAdmin reports whether info belongs to an administrator
func IsAdmin(info auth.Info) bool {
	if info == nil {
		return false
	}
	for _, g := range info.Groups() {
		if g == models.RoleAdmin {
			return true
		}
	}
	return false
}

// ValidateUser checks an email and password against the users collection
func (m *MiddlewareDB) ValidateUser(ctx context.Context, r *http.Request, email, password string) (auth.Info, error) {
	user, err := m.DB.FindOne(ctx, bson.M{"user.email": email})
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Details.Password), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}
	return auth.NewDefaultUser(user.Details.Email, user.ID.Hex(), []string{user.Details.Role}, nil), nil
}

// ValidateToken verifies a JWT issued by CreateToken
func (m *MiddlewareDB) ValidateToken(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return auth.NewDefaultUser(claims.Email, claims.Subject, []string{claims.Role}, nil), nil
}

// IssueToken signs a token for info
func (m *MiddlewareDB) IssueToken(info auth.Info) (string, error) {
	now := m.now()
	role := ""
	if groups := info.Groups(); len(groups) > 0 {
		role = groups[0]
	}
	claims := tokenClaims{
		Email: info.UserName(),
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   info.ID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.Secret)
}

// CreateToken returns a token for the basic-auth caller. It must run after
// Middleware.
func (m *MiddlewareDB) CreateToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	user := UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "basic auth failed", http.StatusUnauthorized)
		return
	}

	token, err := m.IssueToken(user)
	if err != nil {
		http.Error(w, "failed to sign token", http.StatusInternalServerError)
		return
	}

	responseBody, err := json.Marshal(map[string]string{
		"token": token,
		"_id":   user.ID(),
	})
	if err != nil {
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(responseBody)
}
