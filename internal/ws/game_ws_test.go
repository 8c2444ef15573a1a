package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/auth"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/game"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/limiter"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/task"
)

func newGameServer(t *testing.T) (*httptest.Server, *game.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	timings := game.DefaultTimings()
	timings.CountdownTick = time.Millisecond
	reg := game.NewRegistry(task.NewSeeded(7), game.RegistryConfig{Timings: timings})

	gw := NewGameGateway(reg, auth.NewService("", false), limiter.NewConnLimiter(), nil)
	r := gin.New()
	r.GET("/ws/game", gw.Handle())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reg
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil discards frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var obj map[string]any
		require.NoError(t, conn.ReadJSON(&obj))
		if obj["type"] == typ {
			return obj
		}
	}
	t.Fatalf("timed out waiting for %s", typ)
	return nil
}

func TestCreateAndJoinPrivateRoom(t *testing.T) {
	srv, reg := newGameServer(t)

	a := dialWS(t, srv, "/ws/game")
	sendJSON(t, a, map[string]any{"type": "room:create", "playerName": "Alice"})
	created := readUntil(t, a, "room:created")

	roomID, _ := created["roomId"].(string)
	require.Len(t, roomID, 6)
	assert.Equal(t, false, created["isPublic"])
	assert.Len(t, created["players"].([]any), 1)
	assert.Equal(t, 1, reg.RoomCount())

	b := dialWS(t, srv, "/ws/game")
	sendJSON(t, b, map[string]any{"type": "room:join", "roomId": roomID, "playerName": "Bob"})
	joined := readUntil(t, b, "room:joined")
	assert.Len(t, joined["players"].([]any), 2)

	evt := readUntil(t, a, "room:player_joined")
	player := evt["player"].(map[string]any)
	assert.Equal(t, "Bob", player["name"])
}

func TestJoinUnknownRoom(t *testing.T) {
	srv, _ := newGameServer(t)

	a := dialWS(t, srv, "/ws/game")
	sendJSON(t, a, map[string]any{"type": "room:join", "roomId": "ZZZZZZ", "playerName": "X"})
	errEvt := readUntil(t, a, "room:error")
	assert.Equal(t, "Room not found", errEvt["message"])
}

func TestUnknownMessageType(t *testing.T) {
	srv, _ := newGameServer(t)

	a := dialWS(t, srv, "/ws/game")
	sendJSON(t, a, map[string]any{"type": "bogus:event"})
	errEvt := readUntil(t, a, "error")
	assert.Equal(t, "Unknown message type", errEvt["message"])
}

// answer replies to a task with its completing input.
func answer(t *testing.T, conn *websocket.Conn, taskObj map[string]any) {
	t.Helper()
	switch taskObj["type"] {
	case "navigate":
		sendJSON(t, conn, map[string]any{"type": "player:cursor", "offset": taskObj["targetOffset"]})
	case "delete":
		sendJSON(t, conn, map[string]any{"type": "player:editorText", "text": taskObj["expectedResult"]})
	default:
		t.Fatalf("unexpected task type %v", taskObj["type"])
	}
}

// finishRace completes every task for one connection and returns once the
// player has finished.
func finishRace(t *testing.T, conn *websocket.Conn, initial map[string]any, numTasks int) {
	t.Helper()
	current := initial
	for progress := 0; progress < numTasks; progress++ {
		answer(t, conn, current)
		done := readUntil(t, conn, "game:player_finished_task")
		if next, ok := done["newTask"].(map[string]any); ok {
			current = next
		}
	}
}

func TestFullRaceOverWebsocket(t *testing.T) {
	srv, _ := newGameServer(t)

	a := dialWS(t, srv, "/ws/game")
	sendJSON(t, a, map[string]any{"type": "room:create", "playerName": "Alice"})
	created := readUntil(t, a, "room:created")
	roomID := created["roomId"].(string)

	b := dialWS(t, srv, "/ws/game")
	sendJSON(t, b, map[string]any{"type": "room:join", "roomId": roomID, "playerName": "Bob"})
	readUntil(t, b, "room:joined")

	sendJSON(t, a, map[string]any{"type": "player:ready_to_play"})
	sendJSON(t, b, map[string]any{"type": "player:ready_to_play"})

	startA := readUntil(t, a, "game:start")
	startB := readUntil(t, b, "game:start")
	numTasks := int(startA["num_tasks"].(float64))
	require.Equal(t, task.DefaultNumTasks, numTasks)

	finishRace(t, a, startA["initialTask"].(map[string]any), numTasks)
	finishRace(t, b, startB["initialTask"].(map[string]any), numTasks)

	complete := readUntil(t, a, "game:complete")
	rankings := complete["rankings"].([]any)
	require.Len(t, rankings, 2)
	first := rankings[0].(map[string]any)
	assert.EqualValues(t, 1, first["position"])
}

func TestConnectionCapPerIP(t *testing.T) {
	srv, _ := newGameServer(t)

	for i := 0; i < limiter.MaxConnsPerIP; i++ {
		dialWS(t, srv, "/ws/game")
	}

	extra := dialWS(t, srv, "/ws/game")
	errEvt := readUntil(t, extra, "error")
	assert.Equal(t, "Too many connections from your IP", errEvt["message"])
}
