package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking-agent/internal/conversation"
	"github.com/wolfman30/clinic-booking-agent/internal/http/handlers"
	"github.com/wolfman30/clinic-booking-agent/internal/intake"
	"github.com/wolfman30/clinic-booking-agent/internal/messaging/evolution"
	"github.com/wolfman30/clinic-booking-agent/internal/reminders"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

const adminSecret = "test-secret"

type nopGate struct{}

func (nopGate) HandleEvent(context.Context, evolution.WebhookEvent) (intake.Result, error) {
	return intake.ResultIgnored, nil
}

type nopSweeper struct{}

func (nopSweeper) RunOnce(context.Context) (reminders.Result, error) { return reminders.Result{}, nil }

func newTestRouter(t *testing.T) (http.Handler, *conversation.MemoryJobStore) {
	t.Helper()
	logger := logging.New("error")
	jobs := conversation.NewMemoryJobStore()
	return New(&Config{
		Logger:       logger,
		Webhook:      handlers.NewEvolutionWebhookHandler(nopGate{}, time.Second, logger),
		WebhookToken: "hook",
		AdminSecret:  adminSecret,
		Reminders:    handlers.NewAdminRemindersHandler(nopSweeper{}, logger),
		Jobs:         conversation.NewJobHandler(jobs, logger),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	}), jobs
}

func adminToken(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(adminSecret))
	require.NoError(t, err)
	return tok
}

func TestRouterHealthAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestRouterWebhookRequiresToken(t *testing.T) {
	r, _ := newTestRouter(t)
	body := `{"event":"connection.update"}`

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/evolution", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/evolution", strings.NewReader(body))
	req.Header.Set(WebhookTokenHeader, "hook")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterAdminRoutesRequireJWT(t *testing.T) {
	r, jobs := newTestRouter(t)
	require.NoError(t, jobs.PutPending(context.Background(), &conversation.JobRecord{JobID: "job-1", Address: "5511999990000"}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/turns/job-1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/turns/job-1", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "job-1")

	req = httptest.NewRequest(http.MethodPost, "/admin/reminders/sweep", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/escalations", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code, "escalation routes are unmounted without a handler")
}
