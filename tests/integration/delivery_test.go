//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/notify-garden/internal/pkg/correlation"
	"github.com/bissquit/notify-garden/internal/testutil"
)

func TestWebhookDelivery_Success(t *testing.T) {
	client := newTestClient(t, "user-webhook-ok")

	received := make(chan map[string]interface{}, 1)
	correlationHeaders := make(chan string, 1)

	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- body
		correlationHeaders <- r.Header.Get(correlation.Header)
		w.WriteHeader(http.StatusOK)
	}))
	defer endpoint.Close()

	envelope := createNotification(t, client, map[string]interface{}{
		"title":    "Build broke",
		"body":     "main is red",
		"channel":  "webhook",
		"metadata": map[string]string{"webhook_url": endpoint.URL},
	})

	waitForStatus(t, client, envelope.Data.NotificationID, "sent", 10*time.Second)

	select {
	case body := <-received:
		assert.Equal(t, envelope.Data.NotificationID, body["id"])
		assert.Equal(t, "Build broke", body["title"])
		assert.Equal(t, "webhook", body["channel"])
	case <-time.After(time.Second):
		t.Fatal("webhook endpoint never received the payload")
	}

	assert.Equal(t, envelope.Data.CorrelationID, <-correlationHeaders)
}

func TestWebhookDelivery_ExhaustsAttemptsThenFails(t *testing.T) {
	client := newTestClient(t, "user-webhook-fail")

	var hits atomic.Int32
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer endpoint.Close()

	envelope := createNotification(t, client, map[string]interface{}{
		"title":    "Flaky",
		"body":     "b",
		"channel":  "webhook",
		"metadata": map[string]string{"webhook_url": endpoint.URL},
	})

	// Each attempt writes failed, so wait on the attempt count instead of
	// the status.
	require.Eventually(t, func() bool {
		return hits.Load() == 3
	}, 15*time.Second, 100*time.Millisecond, "every attempt should hit the endpoint")

	waitForStatus(t, client, envelope.Data.NotificationID, "failed", 10*time.Second)

	// The queue gave up; no further attempts arrive.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, int32(3), hits.Load(), "an exhausted job must not be redelivered")
}

func TestWebhookDelivery_PermanentErrorFailsWithoutRetry(t *testing.T) {
	client := newTestClient(t, "user-webhook-4xx")

	var hits atomic.Int32
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer endpoint.Close()

	envelope := createNotification(t, client, map[string]interface{}{
		"title":    "Rejected",
		"body":     "b",
		"channel":  "webhook",
		"metadata": map[string]string{"webhook_url": endpoint.URL},
	})

	waitForStatus(t, client, envelope.Data.NotificationID, "failed", 10*time.Second)
	assert.Equal(t, int32(1), hits.Load(), "a 400 response should not be retried")
}

func TestRetryEndpoint_RedeliversFailedNotification(t *testing.T) {
	client := newTestClient(t, "user-retry")

	// First broken, then fixed.
	var healthy atomic.Bool
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer endpoint.Close()

	envelope := createNotification(t, client, map[string]interface{}{
		"title":    "Recoverable",
		"body":     "b",
		"channel":  "webhook",
		"metadata": map[string]string{"webhook_url": endpoint.URL},
	})
	id := envelope.Data.NotificationID

	waitForStatus(t, client, id, "failed", 10*time.Second)

	healthy.Store(true)

	resp, err := client.POST("/api/v1/notifications/"+id+"/retry", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var retried struct {
		Data struct {
			OK bool `json:"ok"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &retried)
	assert.True(t, retried.Data.OK)

	waitForStatus(t, client, id, "sent", 10*time.Second)
}
