package ws

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/auth"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/fabric"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/limiter"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/matchmaker"
)

func newMatchmakingServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mm := matchmaker.New(fabric.NewLocalFabric("localhost", 3001), nil, 2)
	gw := NewMatchmakingGateway(mm, auth.NewService("", false), limiter.NewConnLimiter(), nil)
	r := gin.New()
	r.GET("/ws/matchmaking", gw.Handle())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestPingPong(t *testing.T) {
	srv := newMatchmakingServer(t)

	conn := dialWS(t, srv, "/ws/matchmaking")
	sendJSON(t, conn, map[string]any{"type": "ping"})
	readUntil(t, conn, "pong")
}

func TestQueueJoinAndMatch(t *testing.T) {
	srv := newMatchmakingServer(t)

	a := dialWS(t, srv, "/ws/matchmaking")
	sendJSON(t, a, map[string]any{"type": "queue:join", "playerName": "Alice"})
	joined := readUntil(t, a, "queue:joined")
	require.NotEmpty(t, joined["playerId"])

	b := dialWS(t, srv, "/ws/matchmaking")
	sendJSON(t, b, map[string]any{"type": "queue:join", "playerName": "Bob"})
	readUntil(t, b, "queue:joined")

	foundA := readUntil(t, a, "match:found")
	foundB := readUntil(t, b, "match:found")
	assert.Equal(t, foundA["roomId"], foundB["roomId"])
	assert.Len(t, foundA["players"].([]any), 2)
}

func TestQueueLeave(t *testing.T) {
	srv := newMatchmakingServer(t)

	conn := dialWS(t, srv, "/ws/matchmaking")
	sendJSON(t, conn, map[string]any{"type": "queue:join", "playerName": "Solo"})
	readUntil(t, conn, "queue:joined")

	sendJSON(t, conn, map[string]any{"type": "queue:leave"})
	readUntil(t, conn, "queue:left")
}
