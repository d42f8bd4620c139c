package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notifyd/internal/dispatcher"
	"github.com/charlesng35/notifyd/internal/models"
)

func newTestStream(t *testing.T, userID string) (*dispatcher.Dispatcher, *websocket.Conn) {
	t.Helper()

	d := dispatcher.New()
	hub := NewHub(d)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(r.URL.Query().Get("user_id"), w, r)
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Serve registers the subscription after the upgrade completes; wait for it
	// so a publish that follows the dial cannot race the registration.
	require.Eventually(t, func() bool {
		return d.SubscriberCount(userID) == 1
	}, time.Second, 5*time.Millisecond)

	return d, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubStreamsPublishedNotifications(t *testing.T) {
	d, conn := newTestStream(t, "alice")

	d.Publish(models.Notification{UserID: "alice", Message: "first"})
	d.Publish(models.Notification{UserID: "alice", Message: "second"})

	msg := readMessage(t, conn)
	require.Equal(t, EventCreated, msg.Event)
	require.NotNil(t, msg.Data)
	require.Equal(t, "first", msg.Data.Message)

	msg = readMessage(t, conn)
	require.Equal(t, "second", msg.Data.Message)
}

func TestHubDoesNotLeakOtherUsersNotifications(t *testing.T) {
	d, conn := newTestStream(t, "alice")

	d.Publish(models.Notification{UserID: "bob", Message: "private"})
	d.Publish(models.Notification{UserID: "alice", Message: "mine"})

	msg := readMessage(t, conn)
	require.Equal(t, "mine", msg.Data.Message)
	require.Equal(t, "alice", msg.Data.UserID)
}

func TestHubUnsubscribesOnDisconnect(t *testing.T) {
	d, conn := newTestStream(t, "alice")

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return d.SubscriberCount("alice") == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Publishing after disconnect must not panic or block.
	d.Publish(models.Notification{UserID: "alice", Message: "late"})
}

func TestHostWithoutPort(t *testing.T) {
	cases := map[string]string{
		"example.com":              "example.com",
		"example.com:8080":         "example.com",
		"http://example.com:8080":  "example.com",
		"https://notify.internal":  "notify.internal",
		"127.0.0.1:9000":           "127.0.0.1",
		"":                         "",
	}
	for in, want := range cases {
		require.Equal(t, want, hostWithoutPort(in), "input %q", in)
	}
}

func TestIsLoopback(t *testing.T) {
	require.True(t, isLoopback("127.0.0.1"))
	require.True(t, isLoopback("::1"))
	require.True(t, isLoopback("localhost"))
	require.False(t, isLoopback("example.com"))
	require.False(t, isLoopback("10.0.0.1"))
}
