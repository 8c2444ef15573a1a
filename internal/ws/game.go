package ws

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/auth"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/game"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/limiter"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/logger"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/protocol"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/validate"
)

func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 {
				return true
			}
			if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
				return true
			}
			for _, o := range origins {
				if origin == o {
					return true
				}
			}
			return false
		},
	}
}

// GameGateway serves the /ws/game endpoint.
type GameGateway struct {
	registry *game.Registry
	auth     *auth.Service
	conns    *limiter.ConnLimiter
	upgrader websocket.Upgrader
}

func NewGameGateway(registry *game.Registry, authSvc *auth.Service, conns *limiter.ConnLimiter, origins []string) *GameGateway {
	return &GameGateway{
		registry: registry,
		auth:     authSvc,
		conns:    conns,
		upgrader: newUpgrader(origins),
	}
}

func (g *GameGateway) Handle() gin.HandlerFunc {
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

		// The token is either a match ticket (preferred, binds the player
		// to a room) or a plain auth token.
		token := c.Query("token")
		playerID := ""
		ticketRoom := ""
		if g.auth.CanSign() && token != "" {
			if ticket, terr := g.auth.VerifyTicket(token); terr == nil {
				playerID = ticket.PlayerID
				ticketRoom = ticket.RoomID
			}
		}
		if playerID == "" {
			id, aerr := g.auth.Authenticate(token)
			if aerr != nil {
				_ = conn.WriteJSON(protocol.NewError(aerr.Error()))
				_ = conn.Close()
				return
			}
			playerID = id
		}

		client := NewClient(conn, "game", ip)
		sess := &gameSession{
			gw:         g,
			client:     client,
			playerID:   playerID,
			ticketRoom: ticketRoom,
			name:       "Player",
		}
		client.Run(sess.handle, sess.closed)
	}
}

// gameSession is the per-connection state of one player on the game endpoint.
// All fields are touched only from the read loop's goroutine.
type gameSession struct {
	gw         *GameGateway
	client     *Client
	playerID   string
	name       string
	ticketRoom string
	room       *game.Room
}

func (s *gameSession) handle(msg []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.client.Send(protocol.NewError("Invalid message format"))
		return
	}

	switch env.Type {
	case protocol.MsgRoomCreate:
		var p protocol.RoomCreate
		if err := json.Unmarshal(msg, &p); err != nil {
			s.client.Send(protocol.NewError("Invalid message format"))
			return
		}
		s.createRoom(p)
	case protocol.MsgRoomJoin:
		var p protocol.RoomJoin
		if err := json.Unmarshal(msg, &p); err != nil {
			s.client.Send(protocol.NewError("Invalid message format"))
			return
		}
		s.joinRoom(p, false)
	case protocol.MsgRoomJoinMatched:
		var p protocol.RoomJoin
		if err := json.Unmarshal(msg, &p); err != nil {
			s.client.Send(protocol.NewError("Invalid message format"))
			return
		}
		s.joinRoom(p, true)
	case protocol.MsgRoomLeave:
		s.leaveRoom()
	case protocol.MsgPlayerReady:
		if s.room == nil {
			s.client.Send(protocol.NewRoomError(game.ErrRoomNotFound.Error()))
			return
		}
		if err := s.room.Ready(s.playerID); err != nil {
			s.client.Send(protocol.NewRoomError(err.Error()))
		}
	case protocol.MsgPlayerCursor:
		var p protocol.PlayerCursor
		if err := json.Unmarshal(msg, &p); err != nil || !validate.CursorOffset(p.Offset) {
			s.client.Send(protocol.NewError("Invalid cursor offset"))
			return
		}
		if s.room != nil {
			s.room.Cursor(s.playerID, p.Offset)
		}
	case protocol.MsgPlayerEditor:
		var p protocol.PlayerEditor
		if err := json.Unmarshal(msg, &p); err != nil || !validate.EditorText(p.Text) {
			s.client.Send(protocol.NewError("Invalid editor text"))
			return
		}
		if s.room != nil {
			s.room.EditorText(s.playerID, p.Text)
		}
	case protocol.MsgTaskComplete:
		if s.room != nil {
			s.room.TaskComplete(s.playerID)
		}
	default:
		s.client.Send(protocol.NewError("Unknown message type"))
	}
}

func (s *gameSession) createRoom(p protocol.RoomCreate) {
	s.leaveRoom()
	s.name = validate.PlayerName(p.PlayerName)

	roomID := ""
	if p.RoomID != "" {
		id, ok := validate.RoomID(p.RoomID)
		if !ok {
			s.client.Send(protocol.NewRoomError("Invalid room id"))
			return
		}
		roomID = id
	}
	isPublic := validate.BoolOr(p.IsPublic, false)
	player := game.NewPlayer(s.playerID, s.name, s.client)

	var room *game.Room
	var err error
	if isPublic && roomID == "" {
		// Local quick match: fill the oldest waiting public room first.
		room, _, err = s.gw.registry.QuickMatch(player)
	} else {
		room, err = s.gw.registry.CreateRoom(roomID, isPublic, 0)
		if err == nil {
			err = room.Join(player)
		}
	}
	if err != nil {
		s.client.Send(protocol.NewRoomError(err.Error()))
		return
	}
	s.room = room
	s.client.Send(protocol.RoomCreated{
		Type:     protocol.MsgRoomCreated,
		RoomID:   room.ID,
		IsPublic: room.IsPublic,
		Players:  room.Views(),
	})
}

func (s *gameSession) joinRoom(p protocol.RoomJoin, matched bool) {
	roomID, ok := validate.RoomID(p.RoomID)
	if !ok {
		s.client.Send(protocol.NewRoomError(game.ErrRoomNotFound.Error()))
		return
	}
	if matched && s.ticketRoom != "" && roomID != s.ticketRoom {
		s.client.Send(protocol.NewError(auth.ErrTampered.Error()))
		s.client.Close()
		return
	}

	// A duplicate join for the room we are already in must not leave it.
	if s.room == nil || s.room.ID != roomID {
		s.leaveRoom()
	}
	s.name = validate.PlayerName(p.PlayerName)
	player := game.NewPlayer(s.playerID, s.name, s.client)

	var room *game.Room
	var err error
	if matched {
		// Create-or-join: the first arrival of a matched pair creates
		// the fabric-provisioned room.
		room, err = s.gw.registry.JoinMatched(roomID, player)
	} else {
		var found bool
		room, found = s.gw.registry.GetRoom(roomID)
		if !found {
			s.client.Send(protocol.NewRoomError(game.ErrRoomNotFound.Error()))
			return
		}
		err = room.Join(player)
	}
	if err != nil {
		s.client.Send(protocol.NewRoomError(err.Error()))
		return
	}

	s.room = room
	s.client.Send(protocol.RoomJoined{
		Type:    protocol.MsgRoomJoined,
		RoomID:  room.ID,
		Players: room.Views(),
	})
}

func (s *gameSession) leaveRoom() {
	if s.room == nil {
		return
	}
	s.room.Leave(s.playerID)
	s.room = nil
}

// closed runs when the socket dies; a vanished player counts as room:leave.
func (s *gameSession) closed() {
	s.leaveRoom()
}
