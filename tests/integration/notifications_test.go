//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/notify-garden/internal/testutil"
)

func TestCreateInAppNotification_DeliveredAsynchronously(t *testing.T) {
	client := newTestClient(t, "user-inapp")

	envelope := createNotification(t, client, map[string]interface{}{
		"title":   "Deploy finished",
		"body":    "All green",
		"channel": "in-app",
	})
	assert.NotEmpty(t, envelope.Data.CorrelationID)

	n := waitForStatus(t, client, envelope.Data.NotificationID, "sent", 10*time.Second)
	assert.Equal(t, "Deploy finished", n.Title)
	assert.Equal(t, "in-app", n.Channel)
	assert.Equal(t, envelope.Data.CorrelationID, n.CorrelationID)
}

func TestCreateNotification_ValidationErrors(t *testing.T) {
	client := newTestClient(t, "user-validation")

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing title", map[string]interface{}{"body": "b", "channel": "email"}},
		{"missing body", map[string]interface{}{"title": "t", "channel": "email"}},
		{"unknown channel", map[string]interface{}{"title": "t", "body": "b", "channel": "sms"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.POST("/api/v1/notifications", tt.body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

			var envelope errorEnvelope
			testutil.DecodeJSON(t, resp, &envelope)
			assert.NotEmpty(t, envelope.Error.Message)
		})
	}
}

func TestListNotifications_FilterAndPagination(t *testing.T) {
	client := newTestClient(t, "user-list")

	for i := 0; i < 3; i++ {
		createNotification(t, client, map[string]interface{}{
			"title":   "Item",
			"body":    "b",
			"channel": "in-app",
		})
	}

	resp, err := client.GET("/api/v1/notifications")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list notificationListEnvelope
	testutil.DecodeJSON(t, resp, &list)
	assert.Len(t, list.Data, 3)

	resp, err = client.GET("/api/v1/notifications?limit=2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.DecodeJSON(t, resp, &list)
	assert.Len(t, list.Data, 2)

	resp, err = client.GET("/api/v1/notifications?limit=2&offset=2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.DecodeJSON(t, resp, &list)
	assert.Len(t, list.Data, 1)

	resp, err = client.WithoutValidation().GET("/api/v1/notifications?status=bogus")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestGetNotification_TenantIsolation(t *testing.T) {
	owner := newTestClient(t, "user-owner")
	other := newTestClient(t, "user-other")

	envelope := createNotification(t, owner, map[string]interface{}{
		"title":   "Private",
		"body":    "b",
		"channel": "in-app",
	})
	id := envelope.Data.NotificationID

	// The owner sees it.
	n := getNotification(t, owner, id)
	assert.Equal(t, "user-owner", n.UserID)

	// Everyone else gets a 404, indistinguishable from a missing row.
	resp, err := other.GET("/api/v1/notifications/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = other.DELETE("/api/v1/notifications/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = other.POST("/api/v1/notifications/"+id+"/retry", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestGetNotification_UnknownID(t *testing.T) {
	client := newTestClient(t, "user-unknown")

	resp, err := client.GET("/api/v1/notifications/" + uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestDeleteNotification(t *testing.T) {
	client := newTestClient(t, "user-delete")

	envelope := createNotification(t, client, map[string]interface{}{
		"title":   "Ephemeral",
		"body":    "b",
		"channel": "in-app",
	})
	id := envelope.Data.NotificationID

	resp, err := client.DELETE("/api/v1/notifications/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.GET("/api/v1/notifications/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestBulkMarkReadUnread(t *testing.T) {
	client := newTestClient(t, "user-bulk")

	for i := 0; i < 2; i++ {
		createNotification(t, client, map[string]interface{}{
			"title":   "Unread",
			"body":    "b",
			"channel": "in-app",
		})
	}

	resp, err := client.POST("/api/v1/notifications/bulk", map[string]string{"action": "read"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var marked struct {
		Data struct {
			OK      bool  `json:"ok"`
			Updated int64 `json:"updated"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &marked)
	assert.True(t, marked.Data.OK)
	assert.Equal(t, int64(2), marked.Data.Updated)

	resp, err = client.GET("/api/v1/notifications")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list notificationListEnvelope
	testutil.DecodeJSON(t, resp, &list)
	for _, n := range list.Data {
		assert.NotNil(t, n.ReadAt, "notification %s should be read", n.ID)
	}

	// Marking read again changes nothing.
	resp, err = client.POST("/api/v1/notifications/bulk", map[string]string{"action": "read"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.DecodeJSON(t, resp, &marked)
	assert.Equal(t, int64(0), marked.Data.Updated)

	resp, err = client.POST("/api/v1/notifications/bulk", map[string]string{"action": "unread"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.DecodeJSON(t, resp, &marked)
	assert.Equal(t, int64(2), marked.Data.Updated)

	resp, err = client.POST("/api/v1/notifications/bulk", map[string]string{"action": "archive"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuthRequired(t *testing.T) {
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)

	resp, err := client.GET("/api/v1/notifications")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.WithToken("not-a-token").GET("/api/v1/notifications")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}
