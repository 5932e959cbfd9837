package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/sta1300/notifier-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopConfig(t *testing.T, extra map[string]string) *config.Config {
	env := map[string]string{
		"FIREBASE_DATABASE_URL": "NOOP",
		"PROJECT_ID":            "NOOP",
	}
	for k, v := range extra {
		env[k] = v
	}
	conf, err := config.LoadFrom(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	return conf
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNoopApp(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, noopConfig(t, nil))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Feed)

	h := a.Handler(ctx)
	token := "device-1:APA91b" + strings.Repeat("x", 120)

	rr := post(h, "/api/register-token", `{"token":"`+token+`","deviceId":"device-1"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = post(h, "/api/device-status", `{"Stability":{"Errors":{"EVT":400}}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = post(h, "/api/announcement", `{"title":"Hello","body":"World"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Announcement processing complete","stats":{"success":1,"failure":0}}`, rr.Body.String())
}

func TestNoopAppWithAPIKey(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, noopConfig(t, map[string]string{"ANNOUNCEMENT_API_KEY": "secret"}))
	require.NoError(t, err)

	rr := post(a.Handler(ctx), "/api/announcement", `{"title":"Hello","body":"World"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestInvalidCalendar(t *testing.T) {
	_, err := New(context.Background(), noopConfig(t, map[string]string{"ANNOUNCEMENT_CALENDAR_FILE": "/does/not/exist.json"}))
	assert.Error(t, err)
}

func TestInvalidTimezone(t *testing.T) {
	_, err := New(context.Background(), noopConfig(t, map[string]string{"ANNOUNCEMENT_TIMEZONE": "Mars/Olympus"}))
	assert.Error(t, err)
}
