package game

import "errors"

// Error text is surfaced verbatim to clients via room:error.
var (
	ErrRoomNotFound     = errors.New("Room not found")
	ErrRaceInProgress   = errors.New("Race already in progress")
	ErrRoomFull         = errors.New("Room is full")
	ErrRoomExists       = errors.New("Room already exists")
	ErrResetNotFinished = errors.New("Cannot reset: game not finished")
	ErrRequeue          = errors.New("Please requeue for a new match")
)

// Destroy reasons broadcast to any remaining players.
const (
	ReasonInactivity = "Room closed due to inactivity"
	ReasonMatchEnded = "Match ended"
)
