// Package supabase implements store.Client against a Supabase-style backend:
// GoTrue-compatible auth endpoints plus PostgREST-compatible table CRUD.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"taskdeck/internal/ratelimit"
	"taskdeck/internal/utils"
	"taskdeck/store"
)

// PlaceholderURL is the deliberately non-functional endpoint used when the
// configured store URL is invalid. Startup proceeds; every request against it
// fails with a store error instead of the process crashing.
const PlaceholderURL = "http://localhost:54321"

// Config holds Supabase connection settings.
type Config struct {
	URL     string
	AnonKey string
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		URL:     os.Getenv("TASKDECK_SUPABASE_URL"),
		AnonKey: os.Getenv("TASKDECK_SUPABASE_ANON_KEY"),
	}
}

// Client implements store.Client over HTTP.
type Client struct {
	config  Config
	client  *http.Client
	limiter *ratelimit.Client
	baseURL string

	mu       sync.RWMutex
	session  *store.Session
	notifier store.Notifier
}

// New creates a Supabase client. A malformed URL does not fail startup: the
// client falls back to PlaceholderURL and the configuration error is logged.
func New(cfg Config) (*Client, error) {
	if cfg.AnonKey == "" {
		return nil, utils.ErrMissingAnonKey()
	}

	baseURL, err := normalizeBaseURL(cfg.URL)
	if err != nil {
		utils.Errorf("%v", err)
		utils.Errorf("falling back to placeholder endpoint %s; requests will fail until the URL is fixed", PlaceholderURL)
		baseURL = PlaceholderURL
	}

	httpClient := createHTTPClient()
	return &Client{
		config: cfg,
		client: httpClient,
		limiter: ratelimit.NewClient(ratelimit.Config{
			MaxRetries:   3,
			BaseDelay:    500 * time.Millisecond,
			EnableJitter: true,
			Backend:      "supabase",
			Transport:    httpClient,
		}),
		baseURL: baseURL,
	}, nil
}

// normalizeBaseURL validates the store URL and strips any trailing slash.
func normalizeBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", utils.ErrInvalidStoreURL(raw)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", utils.ErrInvalidStoreURL(raw)
	}
	s := u.String()
	if s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s, nil
}

// createHTTPClient creates an HTTP client with proper connection pooling.
func createHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

// Close closes the client.
func (c *Client) Close() error {
	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// BaseURL returns the effective endpoint, after any placeholder fallback.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// extraHeader is an additional request header for doRequest, such as the
// PostgREST Prefer header on writes.
type extraHeader struct {
	key, value string
}

// doRequest performs an authenticated request. The apikey header always
// carries the anon key; the bearer token is the session's access token when
// signed in, the anon key otherwise. Every operation goes through here so
// the rate limiter sees the full request stream.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any, extra ...extraHeader) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("apikey", c.config.AnonKey)
	req.Header.Set("Authorization", "Bearer "+c.bearerToken())
	req.Header.Set("Content-Type", "application/json")
	for _, h := range extra {
		req.Header.Set(h.key, h.value)
	}

	resp, err := c.limiter.Do(req)
	if err != nil {
		return nil, utils.ErrStoreOffline(err.Error())
	}
	return resp, nil
}

// bearerToken returns the session access token, or the anon key when signed out.
func (c *Client) bearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session != nil {
		return c.session.AccessToken
	}
	return c.config.AnonKey
}

// errorDetail extracts the human-readable message from an error response body.
func errorDetail(body io.Reader) string {
	var payload struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return ""
	}
	for _, s := range []string{payload.ErrorDescription, payload.Message, payload.Msg, payload.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// =============================================================================
// Auth Operations
// =============================================================================

// authResponse is the token payload returned by the auth endpoints.
type authResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int64      `json:"expires_in"`
	User         store.User `json:"user"`
}

func (a *authResponse) toSession() *store.Session {
	return &store.Session{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(a.ExpiresIn) * time.Second),
		User:         a.User,
	}
}

// SignIn authenticates with email and password and installs the session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*store.Session, error) {
	query := url.Values{"grant_type": {"password"}}
	body := map[string]string{"email": email, "password": password}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/v1/token", query, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return nil, utils.ErrAuthenticationFailed(errorDetail(resp.Body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, utils.ErrStoreStatus("sign in", resp.StatusCode, errorDetail(resp.Body))
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, err
	}

	session := auth.toSession()
	c.setSession(session)
	c.notifier.Notify(store.EventSignedIn, session)
	return session, nil
}

// SignUp registers a new account. The account may require email confirmation
// before the first sign-in succeeds; no session is installed here.
func (c *Client) SignUp(ctx context.Context, email, password string) (*store.User, error) {
	body := map[string]string{"email": email, "password": password}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/v1/signup", nil, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, utils.ErrAuthenticationFailed(errorDetail(resp.Body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, utils.ErrStoreStatus("sign up", resp.StatusCode, errorDetail(resp.Body))
	}

	// The signup endpoint returns either the bare user or a user field,
	// depending on whether email confirmation is required.
	var payload struct {
		ID    string     `json:"id"`
		Email string     `json:"email"`
		User  store.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.ID != "" {
		return &store.User{ID: payload.ID, Email: payload.Email}, nil
	}
	return &payload.User, nil
}

// SignOut revokes the session server-side, clears the local session and
// notifies subscribers. The local session is cleared even when the revocation
// request fails; a stale token is the server's problem, not the UI's.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.RLock()
	hasSession := c.session != nil
	c.mu.RUnlock()

	var requestErr error
	if hasSession {
		resp, err := c.doRequest(ctx, http.MethodPost, "/auth/v1/logout", nil, nil)
		if err != nil {
			requestErr = err
		} else {
			_ = resp.Body.Close()
			if resp.StatusCode >= 500 {
				requestErr = utils.ErrStoreStatus("sign out", resp.StatusCode, "")
			}
		}
	}

	c.setSession(nil)
	c.notifier.Notify(store.EventSignedOut, nil)
	return requestErr
}

// GetUser fetches the current user from the auth service.
func (c *Client) GetUser(ctx context.Context) (*store.User, error) {
	c.mu.RLock()
	hasSession := c.session != nil
	c.mu.RUnlock()
	if !hasSession {
		return nil, utils.ErrNotSignedIn()
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/auth/v1/user", nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, utils.ErrSessionExpired()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, utils.ErrStoreStatus("get user", resp.StatusCode, errorDetail(resp.Body))
	}

	var user store.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetSession returns the current session, refreshing it first when expired.
// A signed-out client returns (nil, nil).
func (c *Client) GetSession(ctx context.Context) (*store.Session, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	if session == nil {
		return nil, nil
	}
	if time.Now().Before(session.ExpiresAt) {
		return session, nil
	}
	return c.refreshSession(ctx, session.RefreshToken)
}

// refreshSession exchanges a refresh token for a new session. Failure clears
// the session and notifies subscribers, since the credential is dead.
func (c *Client) refreshSession(ctx context.Context, refreshToken string) (*store.Session, error) {
	query := url.Values{"grant_type": {"refresh_token"}}
	body := map[string]string{"refresh_token": refreshToken}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/v1/token", query, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.setSession(nil)
		c.notifier.Notify(store.EventSignedOut, nil)
		return nil, utils.ErrSessionExpired()
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, err
	}

	session := auth.toSession()
	c.setSession(session)
	return session, nil
}

// SetSession installs a previously persisted session (e.g. restored from the
// keyring at startup) and notifies subscribers.
func (c *Client) SetSession(session *store.Session) {
	c.setSession(session)
	if session != nil {
		c.notifier.Notify(store.EventSignedIn, session)
	}
}

func (c *Client) setSession(session *store.Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
}

// OnSessionChange subscribes to session state changes.
func (c *Client) OnSessionChange(fn func(store.Event, *store.Session)) func() {
	return c.notifier.Subscribe(fn)
}

// =============================================================================
// Table Operations
// =============================================================================

// buildQuery translates a store.Query into PostgREST query parameters.
func buildQuery(q store.Query) url.Values {
	values := url.Values{}
	for _, f := range q.Filters {
		values.Set(f.Column, "eq."+f.Value)
	}
	if q.OrderBy != "" {
		direction := "desc"
		if q.Ascending {
			direction = "asc"
		}
		values.Set("order", q.OrderBy+"."+direction)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	return values
}

// decodeRows decodes a JSON array response into raw rows.
func decodeRows(body io.Reader) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	if err := json.NewDecoder(body).Decode(&rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []json.RawMessage{}
	}
	return rows, nil
}

// Select fetches rows from a table.
func (c *Client) Select(ctx context.Context, table string, q store.Query) ([]json.RawMessage, error) {
	query := buildQuery(q)
	query.Set("select", "*")

	resp, err := c.doRequest(ctx, http.MethodGet, "/rest/v1/"+table, query, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, utils.ErrSessionExpired()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, utils.ErrStoreStatus("select "+table, resp.StatusCode, errorDetail(resp.Body))
	}

	return decodeRows(resp.Body)
}

// Insert adds one or more rows to a table and returns the created rows.
func (c *Client) Insert(ctx context.Context, table string, rows any) ([]json.RawMessage, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/rest/v1/"+table, nil, rows,
		extraHeader{"Prefer", "return=representation"})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, utils.ErrSessionExpired()
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, utils.ErrStoreStatus("insert "+table, resp.StatusCode, errorDetail(resp.Body))
	}

	return decodeRows(resp.Body)
}

// Update modifies rows matching the filters and returns the updated rows.
// At least one filter is required; a filterless update would touch the whole
// table.
func (c *Client) Update(ctx context.Context, table string, fields map[string]any, filters []store.Filter) ([]json.RawMessage, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("update %s: at least one filter is required", table)
	}

	query := buildQuery(store.Query{Filters: filters})
	resp, err := c.doRequest(ctx, http.MethodPatch, "/rest/v1/"+table, query, fields,
		extraHeader{"Prefer", "return=representation"})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, utils.ErrSessionExpired()
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return nil, utils.ErrStoreStatus("update "+table, resp.StatusCode, errorDetail(resp.Body))
	}

	if resp.StatusCode == http.StatusNoContent {
		return []json.RawMessage{}, nil
	}
	return decodeRows(resp.Body)
}

// Delete removes rows matching the filters. At least one filter is required.
func (c *Client) Delete(ctx context.Context, table string, filters []store.Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("delete %s: at least one filter is required", table)
	}

	query := buildQuery(store.Query{Filters: filters})

	resp, err := c.doRequest(ctx, http.MethodDelete, "/rest/v1/"+table, query, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return utils.ErrSessionExpired()
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return utils.ErrStoreStatus("delete "+table, resp.StatusCode, errorDetail(resp.Body))
	}

	return nil
}

// Verify interface compliance at compile time
var _ store.Client = (*Client)(nil)
