//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bissquit/notify-garden/internal/testutil"
)

// notificationData mirrors the notification JSON exposed by the API.
type notificationData struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	Channel       string            `json:"channel"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata"`
	CorrelationID string            `json:"correlation_id"`
	ReadAt        *time.Time        `json:"read_at"`
	CreatedAt     time.Time         `json:"created_at"`
}

type notificationEnvelope struct {
	Data notificationData `json:"data"`
}

type notificationListEnvelope struct {
	Data []notificationData `json:"data"`
}

type dispatchEnvelope struct {
	Data struct {
		NotificationID string `json:"notification_id"`
		JobID          string `json:"job_id"`
		CorrelationID  string `json:"correlation_id"`
	} `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// createNotification posts a notification and returns the dispatch response.
func createNotification(t *testing.T, client *testutil.Client, body map[string]interface{}) dispatchEnvelope {
	t.Helper()

	resp, err := client.POST("/api/v1/notifications", body)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var envelope dispatchEnvelope
	testutil.DecodeJSON(t, resp, &envelope)
	require.NotEmpty(t, envelope.Data.NotificationID)
	require.NotEmpty(t, envelope.Data.JobID)
	return envelope
}

// getNotification fetches a single notification as the client's user.
func getNotification(t *testing.T, client *testutil.Client, id string) notificationData {
	t.Helper()

	resp, err := client.GET("/api/v1/notifications/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope notificationEnvelope
	testutil.DecodeJSON(t, resp, &envelope)
	return envelope.Data
}

// waitForStatus polls a notification until it reaches the wanted status.
// Fails the test if the status is not reached within the timeout.
func waitForStatus(t *testing.T, client *testutil.Client, id, want string, timeout time.Duration) notificationData {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var last notificationData

	for time.Now().Before(deadline) {
		last = getNotification(t, client, id)
		if last.Status == want {
			return last
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("notification %s stuck in status %q, wanted %q", id, last.Status, want)
	return last
}
