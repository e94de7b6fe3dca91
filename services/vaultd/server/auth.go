package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"arbvault/crypto"
)

// AuthConfig configures HS256 bearer tokens whose subject is the signer.
type AuthConfig struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// Authenticator resolves the signer of a request from its bearer token.
type Authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
	logger *slog.Logger
}

type signerContextKey struct{}

// SignerFromContext returns the signer authenticated for the request.
func SignerFromContext(ctx context.Context) (crypto.Address, bool) {
	if ctx == nil {
		return crypto.Address{}, false
	}
	signer, ok := ctx.Value(signerContextKey{}).(crypto.Address)
	if !ok || signer.IsZero() {
		return crypto.Address{}, false
	}
	return signer, true
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) (*Authenticator, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secret: []byte(secret),
		issuer: strings.TrimSpace(cfg.Issuer),
		leeway: cfg.Leeway,
		now:    time.Now,
		logger: logger,
	}, nil
}

// Middleware rejects requests without a valid token and stores the signer
// in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := parseBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeErrorCode(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}
		signer, err := a.verify(token)
		if err != nil {
			a.logger.Warn("token rejected", "requestId", RequestIDFromContext(r.Context()), "error", err)
			writeErrorCode(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), signerContextKey{}, signer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) verify(token string) (crypto.Address, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return a.now() }),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return crypto.Address{}, err
	}
	if !parsed.Valid {
		return crypto.Address{}, errors.New("token invalid")
	}
	signer, err := crypto.ParseAddress(claims.Subject)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("subject: %w", err)
	}
	return signer, nil
}

// IssueToken mints a bearer token for signer. vault-cli uses it for local
// development against a daemon whose secret it shares.
func IssueToken(secret, issuer string, signer crypto.Address, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("jwt secret required")
	}
	if signer.IsZero() {
		return "", fmt.Errorf("signer required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwt.RegisteredClaims{
		Subject:   signer.String(),
		Issuer:    strings.TrimSpace(issuer),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}

func parseBearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
