package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/vm-autoscaler/pkg/config"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

func testClient(h *Hub) *Client {
	return &Client{hub: h, send: make(chan []byte, 8)}
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestNewSettings(t *testing.T) {
	s := NewSettings(nil)
	assert.Equal(t, 60*time.Second, s.PongWait)
	assert.Equal(t, 54*time.Second, s.PingPeriod)

	s = NewSettings(&config.WebSocketConfig{PingInterval: 27 * time.Second, ClientBuffer: 4, MaxMessageSize: 1024})
	assert.Equal(t, 30*time.Second, s.PongWait)
	assert.Equal(t, 4, s.ClientBuffer)
	assert.Equal(t, int64(1024), s.MaxMessageSize)
}

func TestToMessage(t *testing.T) {
	ev := models.NewEvent(models.EventTypeCPUGrown, 12.5, "grew cpu").WithVM(3)
	msg := ToMessage(ev)
	require.NotNil(t, msg)
	assert.Equal(t, "scaling_action", msg.Type)
	assert.Equal(t, 12.5, msg.SimTime)
	require.NotNil(t, msg.VMID)
	assert.Equal(t, 3, *msg.VMID)

	assert.Nil(t, ToMessage(models.NewEvent(models.EventType("internal"), 0, "")))
}

func TestHub_BroadcastAndVMFilter(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	all := testClient(h)
	filtered := testClient(h)
	h.Register(all)
	h.Register(filtered)

	vm := 1
	filtered.mu.Lock()
	filtered.vmID = &vm
	filtered.mu.Unlock()

	other, _ := json.Marshal(ToMessage(models.NewEvent(models.EventTypeVMAdded, 10, "added").WithVM(0)))
	fleetWide, _ := json.Marshal(ToMessage(models.NewEvent(models.EventTypeTickEvaluated, 10, "tick")))

	require.True(t, h.Broadcast(other))
	require.True(t, h.Broadcast(fleetWide))

	assert.JSONEq(t, string(other), string(receive(t, all)))
	assert.JSONEq(t, string(fleetWide), string(receive(t, all)))
	assert.JSONEq(t, string(fleetWide), string(receive(t, filtered)), "frames for other VMs are skipped")
	assert.Equal(t, 2, h.ClientCount())

	h.Unregister(all)
	_, open := <-all.send
	assert.False(t, open)
}

func TestEventBridge_ForwardsUntilSourceCloses(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := testClient(h)
	h.Register(c)

	source := make(chan *models.Event, 2)
	bridge := NewEventBridge(h, source)
	bridge.Start(ctx)

	source <- models.NewEvent(models.EventTypeSimulationFinished, 40, "done")
	close(source)

	var msg Message
	require.NoError(t, json.Unmarshal(receive(t, c), &msg))
	assert.Equal(t, "finished", msg.Type)
	assert.Equal(t, 40.0, msg.SimTime)

	bridge.Stop()
}

func TestClient_HandleSubscribe(t *testing.T) {
	h := NewHub(nil)
	c := testClient(h)

	vm := 4
	c.handleMessage(&IncomingMessage{Type: "subscribe", VMID: &vm})
	require.NotNil(t, c.vmID)
	assert.Equal(t, 4, *c.vmID)

	var msg Message
	require.NoError(t, json.Unmarshal(receive(t, c), &msg))
	assert.Equal(t, "subscription_update", msg.Type)
	assert.Equal(t, "subscribed", msg.Message)

	c.handleMessage(&IncomingMessage{Type: "unsubscribe"})
	assert.Nil(t, c.vmID)
}
