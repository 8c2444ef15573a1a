package game

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/logger"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/metrics"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/protocol"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/task"
)

// Timings collects every lifecycle duration so tests can shrink them.
type Timings struct {
	WaitingPublic   time.Duration // empty-ish public room before teardown
	WaitingPrivate  time.Duration // private room waiting before teardown
	PostRaceDestroy time.Duration // public room linger after game:complete
	RematchIdle     time.Duration // private room idle in finished state
	StartupIdle     time.Duration // fabric process with no rooms at boot
	ExitDebounce    time.Duration // fabric process after last room closes
	CountdownTick   time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		WaitingPublic:   30 * time.Second,
		WaitingPrivate:  5 * time.Minute,
		PostRaceDestroy: 3 * time.Second,
		RematchIdle:     5 * time.Minute,
		StartupIdle:     30 * time.Second,
		ExitDebounce:    5 * time.Second,
		CountdownTick:   time.Second,
	}
}

// LobbyUpdater pushes room occupancy to an external lobby directory.
// Best effort; failures are logged and ignored.
type LobbyUpdater interface {
	SetLobbyState(ctx context.Context, roomID string, status string, playerCount, maxPlayers int) error
}

// ResultRecorder persists final standings. Best effort as well.
type ResultRecorder interface {
	RecordRace(ctx context.Context, roomID string, rankings []protocol.Ranking, startedAt time.Time) error
}

// RegistryConfig wires the registry's collaborators. Zero values are safe:
// no lobby, no recorder, no process exit.
type RegistryConfig struct {
	Timings    Timings
	FabricMode bool // process hosts exactly the rooms it was provisioned for
	Lobby      LobbyUpdater
	Results    ResultRecorder
	Exit       func(code int) // called when a fabric process has no rooms left
}

// Registry owns every live room. Lock ordering is registry before room;
// rooms reach back only through goroutines and timer callbacks.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	order []string // insertion order, drives quick-match scanning

	gen     *task.Generator
	timings Timings

	fabricMode bool
	lobby      LobbyUpdater
	results    ResultRecorder
	exit       func(int)

	startupTimer *time.Timer
	exitTimer    *time.Timer

	rng *rand.Rand
}

func NewRegistry(gen *task.Generator, cfg RegistryConfig) *Registry {
	if cfg.Timings == (Timings{}) {
		cfg.Timings = DefaultTimings()
	}
	return &Registry{
		rooms:      make(map[string]*Room),
		gen:        gen,
		timings:    cfg.Timings,
		fabricMode: cfg.FabricMode,
		lobby:      cfg.Lobby,
		results:    cfg.Results,
		exit:       cfg.Exit,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start arms the startup-idle timer. A fabric process that never receives a
// room within the window shuts itself down.
func (reg *Registry) Start() {
	if !reg.fabricMode || reg.exit == nil {
		return
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.startupTimer = time.AfterFunc(reg.timings.StartupIdle, func() {
		if reg.RoomCount() == 0 {
			logger.Info("no rooms after startup window, exiting")
			reg.exit(0)
		}
	})
}

func (reg *Registry) RoomCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

func (reg *Registry) GetRoom(roomID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[roomID]
	return r, ok
}

// CreateRoom registers a new room. An empty id gets a generated six
// character code. Creating over an existing id is an error; matched joins
// should go through JoinMatched instead.
func (reg *Registry) CreateRoom(roomID string, isPublic bool, numTasks int) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.createRoomLocked(roomID, isPublic, numTasks)
}

func (reg *Registry) createRoomLocked(roomID string, isPublic bool, numTasks int) (*Room, error) {
	if roomID == "" {
		roomID = reg.newRoomCodeLocked()
	} else if _, exists := reg.rooms[roomID]; exists {
		return nil, ErrRoomExists
	}
	if numTasks <= 0 {
		numTasks = task.DefaultNumTasks
	}

	session := reg.gen.Session(numTasks)
	r := &Room{
		ID:       roomID,
		IsPublic: isPublic,
		registry: reg,
		tasks:    session.Tasks,
		numTasks: numTasks,
		state:    StateWaiting,
	}

	wait := reg.timings.WaitingPrivate
	if isPublic {
		wait = reg.timings.WaitingPublic
	}
	r.waitTimer = time.AfterFunc(wait, func() {
		reg.Destroy(roomID, ReasonInactivity)
	})

	reg.rooms[roomID] = r
	reg.order = append(reg.order, roomID)
	reg.stopExitTimersLocked()
	metrics.ActiveRooms.Set(float64(len(reg.rooms)))
	logger.Info("room created", "roomId", roomID, "public", isPublic)
	return r, nil
}

// JoinMatched atomically joins the room a match ticket points at, creating it
// if this is the first arrival. Both players of a match race each other to
// this call, so create-or-join must happen under one lock.
func (reg *Registry) JoinMatched(roomID string, p *Player) (*Room, error) {
	reg.mu.Lock()
	r, ok := reg.rooms[roomID]
	if !ok {
		var err error
		r, err = reg.createRoomLocked(roomID, true, task.DefaultNumTasks)
		if err != nil {
			reg.mu.Unlock()
			return nil, err
		}
	}
	reg.mu.Unlock()

	if err := r.Join(p); err != nil {
		return nil, err
	}
	return r, nil
}

// QuickMatch joins the oldest public waiting room with a free slot, or
// creates one. The join happens outside the registry lock, so a slot seen by
// the scan can be gone by the time Join runs (even in a room this call just
// created); any such miss rescans.
func (reg *Registry) QuickMatch(p *Player) (*Room, bool, error) {
	for {
		reg.mu.Lock()
		var target *Room
		created := false
		for _, id := range reg.order {
			r, ok := reg.rooms[id]
			if !ok || !r.IsPublic {
				continue
			}
			r.mu.Lock()
			open := r.state == StateWaiting && len(r.players) < MaxPlayersPerRoom
			r.mu.Unlock()
			if open {
				target = r
				break
			}
		}
		if target == nil {
			r, err := reg.createRoomLocked("", true, task.DefaultNumTasks)
			if err != nil {
				reg.mu.Unlock()
				return nil, false, err
			}
			target = r
			created = true
		}
		reg.mu.Unlock()

		if err := target.Join(p); err == nil {
			return target, created, nil
		}
	}
}

// Destroy unregisters a room and shuts it down. Reason, when non-empty, is
// broadcast to anyone still connected. The last room leaving a fabric
// process arms the debounced exit.
func (reg *Registry) Destroy(roomID, reason string) {
	reg.mu.Lock()
	r, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.Unlock()
		return
	}
	delete(reg.rooms, roomID)
	for i, id := range reg.order {
		if id == roomID {
			reg.order = append(reg.order[:i], reg.order[i+1:]...)
			break
		}
	}
	remaining := len(reg.rooms)
	metrics.ActiveRooms.Set(float64(remaining))
	if remaining == 0 {
		reg.scheduleExitLocked()
	}
	reg.mu.Unlock()

	r.shutdown(reason)
	logger.Info("room destroyed", "roomId", roomID, "reason", reason)
}

// scheduleExitLocked debounces process exit so a back-to-back destroy/create
// pair (a rematch landing on the same host) does not kill the server.
func (reg *Registry) scheduleExitLocked() {
	if !reg.fabricMode || reg.exit == nil {
		return
	}
	if reg.exitTimer != nil {
		reg.exitTimer.Stop()
	}
	reg.exitTimer = time.AfterFunc(reg.timings.ExitDebounce, func() {
		if reg.RoomCount() == 0 {
			logger.Info("all rooms closed, exiting")
			reg.exit(0)
		}
	})
}

func (reg *Registry) stopExitTimersLocked() {
	if reg.exitTimer != nil {
		reg.exitTimer.Stop()
		reg.exitTimer = nil
	}
	if reg.startupTimer != nil {
		reg.startupTimer.Stop()
		reg.startupTimer = nil
	}
}

// updateLobby pushes current occupancy to the lobby directory off the hot
// path.
func (reg *Registry) updateLobby(r *Room) {
	if reg.lobby == nil {
		return
	}
	status := string(r.State())
	count := r.PlayerCount()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := reg.lobby.SetLobbyState(ctx, r.ID, status, count, MaxPlayersPerRoom); err != nil {
			logger.Warn("lobby update failed", "roomId", r.ID, "error", err)
		}
	}()
}

// recordResult persists standings without blocking the room.
func (reg *Registry) recordResult(roomID string, rankings []protocol.Ranking, startedAt time.Time) {
	if reg.results == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := reg.results.RecordRace(ctx, roomID, rankings, startedAt); err != nil {
			logger.Warn("failed to record race result", "roomId", roomID, "error", err)
		}
	}()
}

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func (reg *Registry) newRoomCodeLocked() string {
	for {
		b := make([]byte, 6)
		for i := range b {
			b[i] = roomCodeAlphabet[reg.rng.Intn(len(roomCodeAlphabet))]
		}
		code := string(b)
		if _, exists := reg.rooms[code]; !exists {
			return code
		}
	}
}
