package syncro

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"einvoice-analytics/pkg/types"
)

func TestSynchronizer_BroadcastReachesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sync := NewStateSynchronizer(nil, nil)
	go sync.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(sync.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return sync.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	sync.EntityUpdated(types.RoleAPP, "invoice", "inv-42")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event types.SyncEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, types.SyncEventEntityUpdated, event.Kind)
	assert.Equal(t, "invoice", event.EntityKind)
	assert.Equal(t, "inv-42", event.EntityID)
	assert.Equal(t, types.RoleAPP, event.Role)
	assert.NotEmpty(t, event.EventID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestSynchronizer_ClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sync := NewStateSynchronizer(nil, nil)
	go sync.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(sync.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sync.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return sync.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSynchronizer_DisconnectAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sync := NewStateSynchronizer(nil, nil)
	stopped := make(chan struct{})
	go func() {
		sync.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	// Nobody drains unregister once the hub has exited; a late disconnect
	// must still return instead of stranding its pump goroutine.
	released := make(chan struct{})
	go func() {
		sync.drop(&wsClient{id: "late", send: make(chan types.SyncEvent, 1)})
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("client disconnect blocked after hub shutdown")
	}
}

func TestSynchronizer_BroadcastWithoutClients(t *testing.T) {
	sync := NewStateSynchronizer(nil, nil)
	// No hub running; the buffered channel absorbs the event.
	sync.Broadcast(types.SyncEvent{Kind: types.SyncEventCacheInvalidated})
}
