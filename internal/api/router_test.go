package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/app"
	iauth "github.com/charlesng35/blotter/internal/auth"
	"github.com/charlesng35/blotter/internal/database/testutil"
	"github.com/charlesng35/blotter/internal/models"
	"github.com/charlesng35/blotter/internal/ratelimit"
	"github.com/charlesng35/blotter/internal/realtime"
	"github.com/charlesng35/blotter/internal/services"
	"github.com/charlesng35/blotter/internal/storage"
	"github.com/charlesng35/blotter/pkg/response"
)

const staffID = "5b0c7f4e-8d1a-4c36-9a57-1f1b2c3d4e5f"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	bearer string
	store  *storage.FilesystemStore
}

func newTestServer(t *testing.T, maxUpload int64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret", Issuer: "case-system", AccessTokenTTL: time.Hour})
	require.NoError(t, err)
	bearer, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: staffID, Name: "Officer"})
	require.NoError(t, err)

	cfg := &app.Config{
		Guest: app.GuestConfig{SessionTTL: 24 * time.Hour},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true},
		},
	}

	store, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	pinLimiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Points: 5, Duration: 10 * time.Minute})
	hub := realtime.NewHub()

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)
	notifications, err := services.NewNotificationService(db, hub)
	require.NoError(t, err)
	access, err := services.NewGuestAccessService(db, pinLimiter)
	require.NoError(t, err)
	evidence, err := services.NewEvidenceService(db, access, store, auditSvc, notifications, services.WithMaxUploadSize(maxUpload))
	require.NoError(t, err)
	links, err := services.NewGuestLinkService(db, auditSvc, nil, services.WithLinkLimiter(pinLimiter))
	require.NoError(t, err)

	router, err := NewRouter(db, jwtSvc, cfg, Services{
		Access:        access,
		Evidence:      evidence,
		Links:         links,
		Audit:         auditSvc,
		Notifications: notifications,
		Hub:           hub,
	})
	require.NoError(t, err)

	return &testServer{router: router, db: db, bearer: bearer, store: store}
}

func (s *testServer) seedCase(t *testing.T, status string) *models.BlotterCase {
	t.Helper()
	return testutil.SeedCase(t, s.db, status, staffID)
}

func (s *testServer) do(t *testing.T, req *http.Request, cookies ...*http.Cookie) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var payload response.Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func (s *testServer) staff(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+s.bearer)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeData[T any](t *testing.T, payload response.Response) T {
	t.Helper()
	raw, err := json.Marshal(payload.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func uploadRequest(t *testing.T, path, fileName, contentType string, body []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

type issuedPayload struct {
	Link struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"link"`
	PIN string `json:"pin"`
}

func (s *testServer) issue(t *testing.T, caseID string) (token, pin, linkID string) {
	t.Helper()
	rec, payload := s.do(t, s.staff(http.MethodPost, "/api/cases/"+caseID+"/guest-links", map[string]any{"recipient_name": "Jane"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	issued := decodeData[issuedPayload](t, payload)
	require.True(t, strings.HasPrefix(issued.Link.URL, "/guest/"))
	return strings.TrimPrefix(issued.Link.URL, "/guest/"), issued.PIN, issued.Link.ID
}

func (s *testServer) verify(t *testing.T, token, pin string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/guest/"+token+"/verify", strings.NewReader(`{"pin":"`+pin+`"}`))
	req.Header.Set("Content-Type", "application/json")
	return s.do(t, req)
}

func TestRouterOpsRoutes(t *testing.T) {
	s := newTestServer(t, 1<<20)

	rec, payload := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, payload.Success)

	rec, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "blotter_api_latency_seconds")

	rec, payload = s.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", payload.Error.Code)
}

func TestRouterStaffRoutesRequireBearer(t *testing.T) {
	s := newTestServer(t, 1<<20)
	c := s.seedCase(t, models.CaseStatusNew)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/cases/"+c.ID+"/guest-links", nil),
		httptest.NewRequest(http.MethodPost, "/api/guest-links/x/toggle", nil),
		httptest.NewRequest(http.MethodGet, "/api/notifications", nil),
		httptest.NewRequest(http.MethodGet, "/api/notifications/stream", nil),
	} {
		rec, _ := s.do(t, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, req.URL.Path)
	}
}

func TestGuestPortalFlow(t *testing.T) {
	s := newTestServer(t, 1<<20)
	c := s.seedCase(t, models.CaseStatusUnderInvestigation)
	token, pin, linkID := s.issue(t, c.ID)

	// Unauthenticated describe reveals status only.
	rec, payload := s.do(t, httptest.NewRequest(http.MethodGet, "/guest/"+token, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	desc := decodeData[map[string]any](t, payload)
	require.Equal(t, "active", desc["status"])
	require.Equal(t, false, desc["authenticated"])
	require.NotContains(t, desc, "case")

	rec, payload = s.verify(t, token, wrongPIN(pin))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "guest.invalid_credentials", payload.Error.Code)

	rec, _ = s.verify(t, token, pin)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	session := cookies[0]
	require.Equal(t, "guest_pin_"+token, session.Name)
	require.Equal(t, "/guest/"+token, session.Path)
	require.True(t, session.HttpOnly)
	require.Equal(t, http.SameSiteStrictMode, session.SameSite)
	require.Equal(t, 86400, session.MaxAge)

	rec, payload = s.do(t, httptest.NewRequest(http.MethodGet, "/guest/"+token, nil), session)
	require.Equal(t, http.StatusOK, rec.Code)
	desc = decodeData[map[string]any](t, payload)
	require.Equal(t, true, desc["authenticated"])
	require.Contains(t, desc, "case")

	body := append(append([]byte{}, pngBytes...), make([]byte, 1024)...)
	rec, payload = s.do(t, uploadRequest(t, "/guest/"+token+"/evidence", "door.png", "image/png", body,
		map[string]string{"description": "front door", "visible_to_others": "true"}), session)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	uploaded := decodeData[map[string]any](t, payload)
	require.Equal(t, "door.png", uploaded["file_name"])
	require.Equal(t, true, uploaded["is_visible_to_others"])
	require.NotContains(t, uploaded, "storage_key")

	rec, payload = s.do(t, httptest.NewRequest(http.MethodGet, "/guest/"+token+"/evidence", nil), session)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeData[[]map[string]any](t, payload)
	require.Len(t, listed, 1)
	require.Equal(t, true, listed[0]["deletable"])

	var notifications []models.Notification
	require.NoError(t, s.db.Find(&notifications).Error)
	require.Len(t, notifications, 1)
	require.Equal(t, staffID, notifications[0].UserID)

	rec, payload = s.do(t, s.staff(http.MethodGet, "/api/notifications/unread-count", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]int{"unread": 1}, decodeData[map[string]int](t, payload))

	rec, _ = s.do(t, httptest.NewRequest(http.MethodDelete, "/guest/"+token+"/evidence/"+listed[0]["id"].(string), nil), session)
	require.Equal(t, http.StatusOK, rec.Code)

	// Deactivating the link ends the session without touching the cookie.
	rec, _ = s.do(t, s.staff(http.MethodPost, "/api/guest-links/"+linkID+"/toggle", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, payload = s.do(t, uploadRequest(t, "/guest/"+token+"/evidence", "door.png", "image/png", body, nil), session)
	require.Equal(t, http.StatusGone, rec.Code)
	require.Equal(t, "guest.link_expired", payload.Error.Code)

	rec, payload = s.do(t, s.staff(http.MethodGet, "/api/cases/"+c.ID+"/audit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 4, payload.Meta.Total)

	rec, payload = s.do(t, s.staff(http.MethodGet, "/api/cases/"+c.ID+"/audit?action="+url.QueryEscape(services.AuditGuestUpload), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, payload.Meta.Total)

	rec, _ = s.do(t, s.staff(http.MethodGet, "/api/cases/"+c.ID+"/audit?since=yesterday", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGuestVerifyIsRateLimited(t *testing.T) {
	s := newTestServer(t, 1<<20)
	c := s.seedCase(t, models.CaseStatusNew)
	token, pin, _ := s.issue(t, c.ID)

	for i := 0; i < 5; i++ {
		rec, _ := s.verify(t, token, wrongPIN(pin))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec, payload := s.verify(t, token, pin)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "guest.rate_limited", payload.Error.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Rotation clears the attempt budget and hands out a working PIN.
	var link models.GuestLink
	require.NoError(t, s.db.Where("token = ?", token).First(&link).Error)
	rec, payload = s.do(t, s.staff(http.MethodPost, "/api/guest-links/"+link.ID+"/rotate-pin", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decodeData[issuedPayload](t, payload)
	require.NotEqual(t, pin, rotated.PIN)

	rec, _ = s.verify(t, token, rotated.PIN)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGuestUploadRejectsOversizedAndUnauthenticated(t *testing.T) {
	s := newTestServer(t, 2048)
	c := s.seedCase(t, models.CaseStatusNew)
	token, pin, _ := s.issue(t, c.ID)

	rec, _ := s.do(t, uploadRequest(t, "/guest/"+token+"/evidence", "door.png", "image/png", pngBytes, nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.verify(t, token, pin)
	require.Equal(t, http.StatusOK, rec.Code)
	session := rec.Result().Cookies()[0]

	big := append(append([]byte{}, pngBytes...), make([]byte, 4096)...)
	rec, payload := s.do(t, uploadRequest(t, "/guest/"+token+"/evidence", "big.png", "image/png", big, nil), session)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "evidence.file_too_large", payload.Error.Code)

	rec, payload = s.do(t, uploadRequest(t, "/guest/"+token+"/evidence", "run.exe", "application/x-msdownload", []byte("MZ\x90\x00"), nil), session)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	require.Equal(t, "evidence.unsupported_type", payload.Error.Code)
}

func TestGuestLinksOnClosedCase(t *testing.T) {
	s := newTestServer(t, 1<<20)
	c := s.seedCase(t, models.CaseStatusClosed)

	rec, payload := s.do(t, s.staff(http.MethodPost, "/api/cases/"+c.ID+"/guest-links", map[string]any{}))
	require.Equal(t, http.StatusGone, rec.Code)
	require.Equal(t, "guest.case_closed", payload.Error.Code)

	rec, _ = s.do(t, s.staff(http.MethodPost, "/api/cases/missing/guest-links", map[string]any{}))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func wrongPIN(pin string) string {
	if pin == "111111" {
		return "222222"
	}
	return "111111"
}
