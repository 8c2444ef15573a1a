// Package protocol defines the JSON event vocabulary shared by the
// matchmaking and game gateways. Every frame is a flat object carrying a
// "type" field next to its payload.
package protocol

import "github.com/Swaggermuffin64/vim-racing-sub000/internal/task"

// Client → server, matchmaking endpoint.
const (
	MsgQueueJoin  = "queue:join"
	MsgQueueLeave = "queue:leave"
	MsgPing       = "ping"
)

// Server → client, matchmaking endpoint.
const (
	MsgQueueJoined = "queue:joined"
	MsgQueueLeft   = "queue:left"
	MsgPong        = "pong"
	MsgMatchFound  = "match:found"
	MsgError       = "error"
)

// Client → server, game endpoint.
const (
	MsgRoomCreate      = "room:create"
	MsgRoomJoin        = "room:join"
	MsgRoomJoinMatched = "room:join_matched"
	MsgRoomLeave       = "room:leave"
	MsgPlayerReady     = "player:ready_to_play"
	MsgPlayerCursor    = "player:cursor"
	MsgPlayerEditor    = "player:editorText"
	MsgTaskComplete    = "player:task_complete"
)

// Server → client, game endpoint.
const (
	MsgRoomCreated          = "room:created"
	MsgRoomJoined           = "room:joined"
	MsgRoomPlayerJoined     = "room:player_joined"
	MsgRoomPlayerLeft       = "room:player_left"
	MsgRoomPlayerReady      = "room:player_ready"
	MsgRoomReset            = "room:reset"
	MsgRoomError            = "room:error"
	MsgGameCountdown        = "game:countdown"
	MsgGameStart            = "game:start"
	MsgPlayerFinishedTask   = "game:player_finished_task"
	MsgOpponentFinishedTask = "game:opponent_finished_task"
	MsgPlayerFinished       = "game:player_finished"
	MsgGameComplete         = "game:complete"
	MsgValidationFailed     = "game:validation_failed"
)

// Envelope is decoded first to pick the handler for a frame.
type Envelope struct {
	Type string `json:"type"`
}

// Inbound payloads.

type QueueJoin struct {
	PlayerName string `json:"playerName"`
	Token      string `json:"token"`
}

type RoomCreate struct {
	PlayerName string `json:"playerName"`
	RoomID     string `json:"roomId"`
	IsPublic   *bool  `json:"isPublic"`
}

type RoomJoin struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
}

type PlayerCursor struct {
	Offset int `json:"offset"`
}

type PlayerEditor struct {
	Text string `json:"text"`
}

// Outbound payloads.

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) Error {
	return Error{Type: MsgError, Message: message}
}

type RoomErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewRoomError(message string) RoomErrorEvent {
	return RoomErrorEvent{Type: MsgRoomError, Message: message}
}

type QueueJoined struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

type QueueLeft struct {
	Type string `json:"type"`
}

type Pong struct {
	Type string `json:"type"`
}

// MatchPlayer identifies one member of a formed match.
type MatchPlayer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MatchFound struct {
	Type          string        `json:"type"`
	RoomID        string        `json:"roomId"`
	ConnectionURL string        `json:"connectionUrl"`
	Players       []MatchPlayer `json:"players"`
	Token         string        `json:"token,omitempty"`
}

// PlayerView is the public shape of a player inside a room.
type PlayerView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ReadyToPlay  bool   `json:"readyToPlay"`
	TaskProgress int    `json:"taskProgress"`
	IsFinished   bool   `json:"isFinished"`
}

type RoomCreated struct {
	Type     string       `json:"type"`
	RoomID   string       `json:"roomId"`
	IsPublic bool         `json:"isPublic"`
	Players  []PlayerView `json:"players"`
}

type RoomJoined struct {
	Type    string       `json:"type"`
	RoomID  string       `json:"roomId"`
	Players []PlayerView `json:"players"`
}

type RoomPlayerJoined struct {
	Type   string     `json:"type"`
	Player PlayerView `json:"player"`
}

type RoomPlayerLeft struct {
	Type     string       `json:"type"`
	PlayerID string       `json:"playerId"`
	Players  []PlayerView `json:"players"`
}

type RoomPlayerReady struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

type RoomReset struct {
	Type    string       `json:"type"`
	Players []PlayerView `json:"players"`
}

type GameCountdown struct {
	Type    string `json:"type"`
	Seconds int    `json:"seconds"`
}

type GameStart struct {
	Type        string    `json:"type"`
	StartTime   int64     `json:"startTime"`
	InitialTask task.Task `json:"initialTask"`
	NumTasks    int       `json:"num_tasks"`
}

type PlayerFinishedTask struct {
	Type         string     `json:"type"`
	PlayerID     string     `json:"playerId"`
	TaskProgress int        `json:"taskProgress"`
	NewTask      *task.Task `json:"newTask"`
}

type OpponentFinishedTask struct {
	Type         string `json:"type"`
	PlayerID     string `json:"playerId"`
	TaskProgress int    `json:"taskProgress"`
}

type PlayerFinished struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Time     int64  `json:"time"`
	Position int    `json:"position"`
}

// Ranking is one row of the final standings.
type Ranking struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Time     int64  `json:"time"`
	Position int    `json:"position"`
}

type GameComplete struct {
	Type     string    `json:"type"`
	Rankings []Ranking `json:"rankings"`
}

type ValidationFailed struct {
	Type string `json:"type"`
}
