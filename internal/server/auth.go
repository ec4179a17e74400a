package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/resibo-ph/resibo/internal/common"
)

const userContextKey = "user_id"

// Authenticator resolves bearer tokens to opaque subject ids. When a
// userinfo endpoint is configured the token is verified against it and the
// resolved subject cached; without one, the unverified JWT subject claim is
// used, which is only acceptable behind a trusted gateway.
type Authenticator struct {
	cfg    common.AuthConfig
	client *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	subject string
	expires time.Time
}

func NewAuthenticator(cfg common.AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Authenticator{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// Middleware rejects requests without a resolvable subject and stashes the
// subject id on the echo context and the request context.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				return common.UnauthorizedError("missing bearer token")
			}
			subject, err := a.Resolve(c.Request().Context(), token)
			if err != nil {
				a.logger.Warn("token resolution failed", "error", err)
				return common.UnauthorizedError("invalid token")
			}
			c.Set(userContextKey, subject)
			c.SetRequest(c.Request().WithContext(common.WithUserID(c.Request().Context(), subject)))
			return next(c)
		}
	}
}

// Resolve returns the subject id for a bearer token.
func (a *Authenticator) Resolve(ctx context.Context, token string) (string, error) {
	if a.cfg.UserInfoURL == "" {
		return unverifiedSubject(token)
	}

	now := time.Now()
	a.mu.Lock()
	if entry, ok := a.cache[token]; ok && now.Before(entry.expires) {
		a.mu.Unlock()
		return entry.subject, nil
	}
	a.mu.Unlock()

	subject, err := a.lookup(ctx, token)
	if err != nil {
		return "", err
	}

	ttl := a.cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	a.mu.Lock()
	a.cache[token] = cacheEntry{subject: subject, expires: now.Add(ttl)}
	a.mu.Unlock()
	return subject, nil
}

func (a *Authenticator) lookup(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.UserInfoURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if a.cfg.APIKey != "" {
		req.Header.Set("apikey", a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("userinfo request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var body struct {
		ID  string `json:"id"`
		Sub string `json:"sub"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("userinfo decode: %w", err)
	}
	subject := body.ID
	if subject == "" {
		subject = body.Sub
	}
	if subject == "" {
		return "", fmt.Errorf("userinfo response has no subject")
	}
	return subject, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// unverifiedSubject pulls the sub claim out of a JWT without verifying the
// signature.
func unverifiedSubject(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("token is not a JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("jwt payload decode: %w", err)
	}
	var claims struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("jwt claims decode: %w", err)
	}
	if claims.Sub == "" {
		return "", fmt.Errorf("jwt has no sub claim")
	}
	return claims.Sub, nil
}
