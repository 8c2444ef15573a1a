package ws

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/auth"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/limiter"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/logger"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/matchmaker"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/protocol"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/validate"
)

// MatchmakingGateway serves the /ws/matchmaking endpoint.
type MatchmakingGateway struct {
	mm       *matchmaker.Matchmaker
	auth     *auth.Service
	conns    *limiter.ConnLimiter
	upgrader websocket.Upgrader
}

func NewMatchmakingGateway(mm *matchmaker.Matchmaker, authSvc *auth.Service, conns *limiter.ConnLimiter, origins []string) *MatchmakingGateway {
	return &MatchmakingGateway{
		mm:       mm,
		auth:     authSvc,
		conns:    conns,
		upgrader: newUpgrader(origins),
	}
}

func (g *MatchmakingGateway) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := limiter.ClientIP(c.Request)

		conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("ws upgrade failed", "error", err)
			return
		}
		if !g.conns.Acquire(ip) {
			_ = conn.WriteJSON(protocol.NewError(limiter.ErrTooManyConnections.Error()))
			_ = conn.Close()
			return
		}
		defer g.conns.Release(ip)

		client := NewClient(conn, "matchmaking", ip)
		sess := &queueSession{gw: g, client: client}
		client.Run(sess.handle, sess.closed)
	}
}

// queueSession is one player's matchmaking connection. playerID is empty
// until a queue:join authenticates.
type queueSession struct {
	gw       *MatchmakingGateway
	client   *Client
	playerID string
}

func (s *queueSession) handle(msg []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.client.Send(protocol.NewError("Invalid message format"))
		return
	}

	switch env.Type {
	case protocol.MsgQueueJoin:
		var p protocol.QueueJoin
		if err := json.Unmarshal(msg, &p); err != nil {
			s.client.Send(protocol.NewError("Invalid message format"))
			return
		}
		s.join(p)
	case protocol.MsgQueueLeave:
		if s.playerID != "" && s.gw.mm.Leave(s.playerID) {
			s.client.Send(protocol.QueueLeft{Type: protocol.MsgQueueLeft})
		}
	case protocol.MsgPing:
		s.client.Send(protocol.Pong{Type: protocol.MsgPong})
	default:
		s.client.Send(protocol.NewError("Unknown message type"))
	}
}

func (s *queueSession) join(p protocol.QueueJoin) {
	id, err := s.gw.auth.Authenticate(p.Token)
	if err != nil {
		s.client.Send(protocol.NewError(err.Error()))
		s.client.Close()
		return
	}

	// Rejoining replaces this socket's previous entry.
	if s.playerID != "" && s.playerID != id {
		s.gw.mm.Leave(s.playerID)
	}
	s.playerID = id

	s.gw.mm.Join(&matchmaker.QueuedPlayer{
		ID:   id,
		Name: validate.PlayerName(p.PlayerName),
		Conn: s.client,
	})
}

// closed cancels the queue entry when the socket dies.
func (s *queueSession) closed() {
	if s.playerID != "" {
		s.gw.mm.Leave(s.playerID)
	}
}
