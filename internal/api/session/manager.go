package session

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/zatekoja/telehealth-meet/internal/domain/providers"
	"github.com/zatekoja/telehealth-meet/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/telehealth-meet/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	// CookieName is the session cookie name
	CookieName = "session"
	// MaxAge is the session lifetime in seconds
	MaxAge = 7 * 60 * 60
	// AuthPath starts the login flow
	AuthPath = "/authenticate"

	tokenKey    = "token"
	stateKey    = "oauth_state"
	returnToKey = "return_to"
)

// Manager owns the cookie session and the calendar OAuth2 flow
type Manager struct {
	store sessions.Store
	oauth *oauth2.Config
}

// NewManager creates a session manager. oauth may be nil when no calendar
// OAuth client is configured; sessions then never carry credentials.
func NewManager(secret string, secure bool, oauth *oauth2.Config) *Manager {
	hashKey := sha256.Sum256([]byte("session-auth:" + secret))
	blockKey := sha256.Sum256([]byte("session-encrypt:" + secret))

	store := sessions.NewCookieStore(hashKey[:], blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   MaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{
		store: store,
		oauth: oauth,
	}
}

func (m *Manager) session(r *http.Request) *sessions.Session {
	// A cookie that fails to decode (rotated secret, tampering) yields a fresh session
	sess, err := m.store.Get(r, CookieName)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Debug().Err(err).Msg("Discarding undecodable session cookie")
	}
	return sess
}

// Authenticate starts the OAuth2 flow, or completes it when the provider
// redirects back with a code. Both paths end in a redirect.
func (m *Manager) Authenticate(w http.ResponseWriter, r *http.Request) error {
	logger := observability.LoggerFromContext(r.Context())

	if m.oauth == nil {
		logger.Warn().Msg("Calendar OAuth client not configured, nothing to authenticate")
		http.Redirect(w, r, "/", http.StatusFound)
		return nil
	}

	query := r.URL.Query()
	sess := m.session(r)

	if providerErr := query.Get("error"); providerErr != "" {
		delete(sess.Values, stateKey)
		_ = sess.Save(r, w)
		return apperrors.NewUnauthorizedError(fmt.Sprintf("authorization denied: %s", providerErr))
	}

	code := query.Get("code")
	if code == "" {
		state := uuid.NewString()
		sess.Values[stateKey] = state
		sess.Values[returnToKey] = safeReturnTo(query.Get("returnTo"))
		if err := sess.Save(r, w); err != nil {
			return apperrors.NewInternalError("failed to save session", err)
		}
		http.Redirect(w, r, m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), http.StatusFound)
		return nil
	}

	expected, _ := sess.Values[stateKey].(string)
	if expected == "" || query.Get("state") != expected {
		return apperrors.NewValidationError("invalid oauth state")
	}

	token, err := m.oauth.Exchange(r.Context(), code)
	if err != nil {
		return apperrors.NewUnauthorizedError(fmt.Sprintf("failed to exchange authorization code: %v", err))
	}

	if err := storeToken(sess, token); err != nil {
		return err
	}
	returnTo, _ := sess.Values[returnToKey].(string)
	delete(sess.Values, stateKey)
	delete(sess.Values, returnToKey)
	if err := sess.Save(r, w); err != nil {
		return apperrors.NewInternalError("failed to save session", err)
	}

	logger.Debug().Msg("User signed in to calendar")
	http.Redirect(w, r, safeReturnTo(returnTo), http.StatusFound)
	return nil
}

// Logout clears the session and redirects to the start page
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess := m.session(r)
	sess.Values = make(map[interface{}]interface{})
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return apperrors.NewInternalError("failed to clear session", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

// Client returns an HTTP client authorized with the session's calendar token.
// An expired token is refreshed and written back to the session, so it must
// run before anything is written to w. Without an OAuth client configured it
// returns a nil client.
func (m *Manager) Client(ctx context.Context, w http.ResponseWriter, r *http.Request) (*http.Client, error) {
	if m.oauth == nil {
		return nil, nil
	}

	sess := m.session(r)
	token, err := loadToken(sess)
	if err != nil {
		return nil, err
	}

	fresh, err := m.oauth.TokenSource(ctx, token).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, apperrors.NewUnauthorizedError("calendar authorization expired, sign in again")
		}
		return nil, apperrors.NewExternalError("failed to refresh calendar token", err)
	}

	if fresh.AccessToken != token.AccessToken {
		if err := storeToken(sess, fresh); err != nil {
			return nil, err
		}
		if err := sess.Save(r, w); err != nil {
			return nil, apperrors.NewInternalError("failed to save session", err)
		}
	}

	return oauth2.NewClient(ctx, m.oauth.TokenSource(ctx, fresh)), nil
}

// Credentials binds Client to one request
func (m *Manager) Credentials(w http.ResponseWriter, r *http.Request) providers.CredentialSource {
	return func(ctx context.Context) (*http.Client, error) {
		return m.Client(ctx, w, r)
	}
}

func loadToken(sess *sessions.Session) (*oauth2.Token, error) {
	raw, _ := sess.Values[tokenKey].(string)
	if raw == "" {
		return nil, apperrors.NewUnauthorizedError("not signed in to calendar")
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, apperrors.NewUnauthorizedError("stored calendar token is unreadable, sign in again")
	}
	return &token, nil
}

func storeToken(sess *sessions.Session, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return apperrors.NewInternalError("failed to encode token", err)
	}
	sess.Values[tokenKey] = string(data)
	return nil
}

// safeReturnTo only allows local paths. Browsers read "\" as "/" in a
// Location header, so any backslash is rejected.
func safeReturnTo(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, "\\") {
		return "/"
	}
	if u, err := url.Parse(target); err != nil || u.Host != "" {
		return "/"
	}
	return target
}
