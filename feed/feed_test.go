package feed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/nftspace-settlement-go/events"
)

var market = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	hub := NewHub(logger)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("settlement_calls_total 1\n"))
	})
	server := httptest.NewServer(Router(hub, metrics))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func settlement(price string) events.Event {
	return events.New(events.SettlementCompleted, market, 1_700_000_000).With("price", price)
}

func TestHubDeliversSubscribedChannels(t *testing.T) {
	hub, server := newServer(t)
	conn := dial(t, server)

	require.NoError(t, conn.WriteJSON(SubscribeMessage{Action: ActionSubscribe, Channel: ChannelSettlementCompleted}))
	var ack SubscribeMessage
	readJSON(t, conn, &ack)
	assert.Equal(t, SubscribeMessage{Action: ActionSubscribe, Channel: ChannelSettlementCompleted}, ack)
	assert.Equal(t, 1, hub.Subscribers(ChannelSettlementCompleted))

	hub.Publish(events.New(events.OrderCancelled, market, 1_700_000_000))
	sent := settlement("10000")
	hub.Publish(sent)

	var msg EventMessage
	readJSON(t, conn, &msg)
	assert.Equal(t, ActionEvent, msg.Action)
	assert.Equal(t, ChannelSettlementCompleted, msg.Channel)
	assert.Equal(t, sent.ID, msg.Event.ID)
	assert.Equal(t, "10000", msg.Event.Data["price"])
	assert.Equal(t, market, msg.Event.Contract)
}

func TestHubUnsubscribe(t *testing.T) {
	hub, server := newServer(t)
	conn := dial(t, server)

	require.NoError(t, conn.WriteJSON(SubscribeMessage{Action: ActionSubscribe, Channel: ChannelRentalStarted}))
	var ack SubscribeMessage
	readJSON(t, conn, &ack)
	require.NoError(t, conn.WriteJSON(SubscribeMessage{Action: ActionUnsubscribe, Channel: ChannelRentalStarted}))
	readJSON(t, conn, &ack)
	assert.Equal(t, ActionUnsubscribe, ack.Action)
	assert.Equal(t, 0, hub.Subscribers(ChannelRentalStarted))
}

func TestHubHeartbeatAndErrors(t *testing.T) {
	_, server := newServer(t)
	conn := dial(t, server)

	require.NoError(t, conn.WriteJSON(HeartbeatMessage{Action: ActionHeartbeat}))
	var hb HeartbeatMessage
	readJSON(t, conn, &hb)
	assert.Equal(t, ActionHeartbeat, hb.Action)

	require.NoError(t, conn.WriteJSON(SubscribeMessage{Action: ActionSubscribe, Channel: "market.depth.diff"}))
	var rejected ErrorMessage
	readJSON(t, conn, &rejected)
	assert.Equal(t, ActionError, rejected.Action)
	assert.Contains(t, rejected.Message, "unknown channel")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	readJSON(t, conn, &rejected)
	assert.Equal(t, "malformed message", rejected.Message)
}

func TestRouter(t *testing.T) {
	_, server := newServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "settlement_calls_total")

	resp, err = http.Post(server.URL+"/health", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestClientReceivesEvents(t *testing.T) {
	hub, server := newServer(t)

	received := make(chan events.Event, 4)
	var mu sync.Mutex
	var errs []error
	client := NewClient(ClientConfig{
		Endpoint: wsURL(server),
		OnEvent:  func(evt events.Event) { received <- evt },
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect()
	assert.True(t, client.IsConnected())

	require.NoError(t, client.SubscribeSettlements())
	require.NoError(t, client.SubscribeRentals())
	assert.ElementsMatch(t, []string{ChannelSettlementCompleted, ChannelRentalStarted, ChannelRentalReturned}, client.GetSubscriptions())
	require.Eventually(t, func() bool {
		return hub.Subscribers(ChannelSettlementCompleted) == 1 && hub.Subscribers(ChannelRentalReturned) == 1
	}, 5*time.Second, 10*time.Millisecond)

	sent := settlement("42")
	hub.Publish(sent)

	select {
	case evt := <-received:
		assert.Equal(t, sent.ID, evt.ID)
		assert.Equal(t, "42", evt.Data["price"])
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, client.Disconnect())
	assert.False(t, client.IsConnected())
	assert.Error(t, client.Subscribe(ChannelOrderCancelled))

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, errs)
}

func TestClientConnectFailure(t *testing.T) {
	client := NewClient(ClientConfig{Endpoint: "ws://127.0.0.1:1/ws"})
	err := client.Connect(context.Background())
	assert.Error(t, err)
	assert.False(t, client.IsConnected())
}
