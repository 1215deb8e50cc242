package routes_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/telehealth-meet/internal/adapters/healthcare"
	"github.com/zatekoja/telehealth-meet/internal/adapters/lock"
	"github.com/zatekoja/telehealth-meet/internal/api/handlers"
	"github.com/zatekoja/telehealth-meet/internal/api/routes"
	"github.com/zatekoja/telehealth-meet/internal/api/session"
	"github.com/zatekoja/telehealth-meet/internal/application/services"
	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
	"google.golang.org/api/option"
)

const storeName = "projects/p/locations/l/datasets/d/fhirStores/s"

// fakeFHIRStore keeps Encounters in memory behind the Healthcare API paths
type fakeFHIRStore struct {
	mu         sync.Mutex
	encounters map[string]map[string]any
}

func (s *fakeFHIRStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimPrefix(r.URL.Path, "/v1/"+storeName+"/fhir/Encounter/")
	w.Header().Set("Content-Type", "application/fhir+json")

	switch r.Method {
	case http.MethodGet:
		enc, ok := s.encounters[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"resourceType":"OperationOutcome"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(enc)
	case http.MethodPut:
		var enc map[string]any
		if err := json.NewDecoder(r.Body).Decode(&enc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		version := 1
		if prev, ok := s.encounters[id]; ok {
			prevVersion := prev["meta"].(map[string]any)["versionId"].(string)
			if match := r.Header.Get("If-Match"); match != "" && match != `W/"`+prevVersion+`"` {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			n, _ := strconv.Atoi(prevVersion)
			version = n + 1
		}
		meta, _ := enc["meta"].(map[string]any)
		if meta == nil {
			meta = map[string]any{}
		}
		meta["versionId"] = strconv.Itoa(version)
		enc["meta"] = meta
		s.encounters[id] = enc
		_ = json.NewEncoder(w).Encode(enc)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *fakeFHIRStore) tags(id string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, _ := s.encounters[id]["meta"].(map[string]any)
	tags, _ := meta["tag"].([]any)
	return tags
}

// stubCalendar hands out a fixed meeting link
type stubCalendar struct {
	url   string
	calls int
}

func (c *stubCalendar) CreateEvent(ctx context.Context, client *http.Client, req entities.MeetingRequest) (*entities.MeetingEvent, error) {
	c.calls++
	return &entities.MeetingEvent{EncounterID: req.EncounterID, EventID: "evt-1", URL: c.url}, nil
}

func (c *stubCalendar) DeleteEvent(ctx context.Context, client *http.Client, eventID string) error {
	return nil
}

type testServer struct {
	handler  http.Handler
	store    *fakeFHIRStore
	calendar *stubCalendar
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := &fakeFHIRStore{encounters: map[string]map[string]any{
		"enc-1": {
			"resourceType": "Encounter",
			"id":           "enc-1",
			"status":       "in-progress",
			"meta": map[string]any{
				"versionId": "1",
				"tag":       []any{map[string]any{"system": "https://meet.google.com", "code": "abc-defg"}},
			},
		},
		"enc-2": {
			"resourceType": "Encounter",
			"id":           "enc-2",
			"status":       "planned",
			"meta":         map[string]any{"versionId": "1"},
		},
	}}
	fhirSrv := httptest.NewServer(store)
	t.Cleanup(fhirSrv.Close)

	encounters, err := healthcare.NewFHIRStoreAdapter(context.Background(), storeName,
		option.WithEndpoint(fhirSrv.URL+"/"),
		option.WithHTTPClient(fhirSrv.Client()),
	)
	require.NoError(t, err)

	calendar := &stubCalendar{url: "https://meet.google.com/xyz-1234"}
	service := services.NewMeetingService(encounters, calendar, lock.NewMemoryLocker(time.Minute), nil, nil)
	sessions := session.NewManager("test-secret", false, nil)

	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>launch</html>"), 0o600))

	router := routes.NewRouter(
		handlers.NewMeetingHandler(service, sessions),
		handlers.NewAuthHandler(sessions),
		handlers.NewSettingsHandler("smart-client"),
		routes.StaticDirs{Root: staticDir},
		[]string{"*"},
		nil,
	)

	return &testServer{handler: router.SetupRoutes(), store: store, calendar: calendar}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_GetMeetingForTaggedEncounter(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/hangouts/enc-1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"https://meet.google.com/abc-defg"}`, rec.Body.String())
}

func TestRouter_GetMeetingForUnknownEncounter(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/hangouts/missing", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestRouter_CreateMeetingPersistsTag(t *testing.T) {
	srv := newTestServer(t)

	form := url.Values{"encounter": {`{"resourceType":"Encounter","id":"enc-2","status":"planned"}`}}
	req := httptest.NewRequest(http.MethodPost, "/hangouts", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := srv.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"url":"https://meet.google.com/xyz-1234"}`, rec.Body.String())
	assert.Equal(t, []any{map[string]any{"system": "https://meet.google.com", "code": "xyz-1234"}}, srv.store.tags("enc-2"))

	// a second request reuses the stored link
	req = httptest.NewRequest(http.MethodPost, "/hangouts", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = srv.do(req)

	assert.JSONEq(t, `{"url":"https://meet.google.com/xyz-1234"}`, rec.Body.String())
	assert.Equal(t, 1, srv.calendar.calls)
	assert.Len(t, srv.store.tags("enc-2"), 1)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/hangouts/enc-2", nil))
	assert.JSONEq(t, `{"url":"https://meet.google.com/xyz-1234"}`, rec.Body.String())
}

func TestRouter_CreateMeetingRejectsBadPayload(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/hangouts", strings.NewReader("encounter=%7Bbroken"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := srv.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, srv.calendar.calls)
}

func TestRouter_SettingsAndHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/settings", nil))
	assert.JSONEq(t, `{"fhirClientId":"smart-client"}`, rec.Body.String())

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRouter_LogoutRedirectsHome(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/logout", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestRouter_ServesStaticAssets(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "launch")
}
