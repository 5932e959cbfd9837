package devicestatus

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sta1300/notifier-backend/internal/cooldown"
	"github.com/sta1300/notifier-backend/internal/devicestatus"
	"github.com/sta1300/notifier-backend/internal/dispatch"
	"github.com/sta1300/notifier-backend/internal/messaging"
	"github.com/sta1300/notifier-backend/internal/pubsub"
	"github.com/sta1300/notifier-backend/internal/registry"
	"github.com/sta1300/notifier-backend/internal/statusarchive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*Handler, *messaging.ScriptedClient, *statusarchive.MemoryArchive) {
	gateway := messaging.NewScriptedClient()
	archive := &statusarchive.MemoryArchive{}
	repo := registry.NewMemoryRepository(registry.Registration{
		ID:    "device-1",
		Token: "device-1:APA91b" + string(bytes.Repeat([]byte("x"), 120)),
	})

	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Registry:  repo,
		Gateway:   gateway,
		Publisher: pubsub.MockClient{},
		Policy:    dispatch.TokenPolicy{MinLength: 100, Separator: ":"},
	})
	limiter := cooldown.NewLimiter(cooldown.NewMemoryLockStore(), 10*time.Second, cooldown.FailOpen)

	return NewHandler(devicestatus.NewProcessor(limiter, dispatcher, archive)), gateway, archive
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/device-status", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestDeviceStatusAlerts(t *testing.T) {
	h, gateway, archive := newTestHandler()

	rr := post(h, `{"Stability":{"Errors":{"EVT":400},"Temp":21.5}}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Data processed successfully"}`, rr.Body.String())

	sent := gateway.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Error 400: Chamber Overheat Warning", sent[0].Notification.Body)
	assert.Len(t, archive.Records(), 1)

	rr = post(h, `{"Stability":{"Errors":{"EVT":400}}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, gateway.Sent(), 1, "cooldown")
	assert.Len(t, archive.Records(), 2)
}

func TestDeviceStatusWithoutErrors(t *testing.T) {
	h, gateway, archive := newTestHandler()

	rr := post(h, `{"Stability":{}}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, gateway.Sent())
	assert.Len(t, archive.Records(), 1)
}

func TestDeviceStatusMalformed(t *testing.T) {
	h, _, archive := newTestHandler()

	for _, body := range []string{`{}`, `null`, `{"Stability":null}`, `[1,2]`, `{"Stability":`} {
		rr := post(h, body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}

	rr := post(h, `{}`)
	assert.JSONEq(t, `{"error":"Invalid data format"}`, rr.Body.String())
	assert.Empty(t, archive.Records())
}

func TestDeviceStatusArchiveFailure(t *testing.T) {
	h, _, archive := newTestHandler()
	archive.SetError(assert.AnError)

	rr := post(h, `{"Stability":{}}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
