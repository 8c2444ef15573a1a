// Package fabric abstracts the room-hosting provider. The matchmaker asks it
// for a room and a public address; a local implementation keeps everything on
// one process for development.
package fabric

import (
	"context"
	"errors"
	"time"
)

// ConnectionInfo is where clients should open their game socket.
type ConnectionInfo struct {
	Status string `json:"status"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// LobbyState mirrors a room's occupancy for the provider's lobby directory.
type LobbyState struct {
	Status      string `json:"status"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
}

// RoomFabric provisions race rooms on some hosting backend.
type RoomFabric interface {
	// CreateRoom allocates a room and returns its id. May be rate limited
	// upstream; callers treat errors as a failed match attempt.
	CreateRoom(ctx context.Context, region string) (string, error)

	// GetConnectionInfo resolves the public address of a room, polling
	// until the room is active.
	GetConnectionInfo(ctx context.Context, roomID string) (*ConnectionInfo, error)

	// SetLobbyState is best effort; callers log failures and move on.
	SetLobbyState(ctx context.Context, roomID string, state LobbyState) error

	// LoginAnonymous mints a short-lived player token for clients.
	LoginAnonymous(ctx context.Context) (string, error)
}

var ErrRoomNotActive = errors.New("room did not become active in time")

const (
	pollAttempts = 15
	pollMinDelay = 500 * time.Millisecond
	pollMaxDelay = 1500 * time.Millisecond
)
