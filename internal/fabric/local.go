package fabric

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// LocalFabric hosts every room on the matchmaker's own game gateway. Used in
// development and single-node deployments.
type LocalFabric struct {
	host string
	port int
}

func NewLocalFabric(host string, port int) *LocalFabric {
	return &LocalFabric{host: host, port: port}
}

// CreateRoom synthesizes a room id. Lowercase hex from a UUID keeps it inside
// the external id shape (10 to 20 chars of [a-z0-9]).
func (f *LocalFabric) CreateRoom(ctx context.Context, region string) (string, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:16], nil
}

func (f *LocalFabric) GetConnectionInfo(ctx context.Context, roomID string) (*ConnectionInfo, error) {
	return &ConnectionInfo{Status: "active", Host: f.host, Port: f.port}, nil
}

func (f *LocalFabric) SetLobbyState(ctx context.Context, roomID string, state LobbyState) error {
	return nil
}

func (f *LocalFabric) LoginAnonymous(ctx context.Context) (string, error) {
	return "", nil
}
