// Package matchmaker pairs queued players and provisions their rooms on the
// hosting fabric.
package matchmaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/auth"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/fabric"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/game"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/logger"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/metrics"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/protocol"
)

// ErrMatchFailed is the client-visible text for a provisioning failure.
const ErrMatchFailed = "Failed to create match, you have been re-queued"

const (
	defaultRetryDelay = 3 * time.Second
	provisionTimeout  = 30 * time.Second
)

// QueuedPlayer is one waiting entry, keyed by player id. A rejoin under the
// same id replaces the old entry so a reconnecting socket never leaves a
// ghost behind.
type QueuedPlayer struct {
	ID   string
	Name string
	Conn game.Conn
}

// Matchmaker holds the FIFO queue. The mutex guards the queue, the in-flight
// set and the retry flag only; room provisioning always happens outside it.
type Matchmaker struct {
	mu             sync.Mutex
	queue          map[string]*QueuedPlayer // playerId -> entry
	order          []string                 // insertion order
	inflight       map[string]bool          // provisioning players; false once cancelled
	retryScheduled bool

	playersPerMatch int
	retryDelay      time.Duration
	fab             fabric.RoomFabric
	tickets         *auth.Service
	region          string
}

func New(fab fabric.RoomFabric, tickets *auth.Service, playersPerMatch int) *Matchmaker {
	if playersPerMatch < 2 {
		playersPerMatch = 2
	}
	return &Matchmaker{
		queue:           make(map[string]*QueuedPlayer),
		inflight:        make(map[string]bool),
		playersPerMatch: playersPerMatch,
		retryDelay:      defaultRetryDelay,
		fab:             fab,
		tickets:         tickets,
	}
}

// Join inserts a player, replacing any previous entry for the same id, and
// kicks off matching when the queue is deep enough.
func (m *Matchmaker) Join(p *QueuedPlayer) {
	m.mu.Lock()
	if _, queued := m.queue[p.ID]; queued {
		m.removeLocked(p.ID)
	}
	m.queue[p.ID] = p
	m.order = append(m.order, p.ID)
	depth := len(m.queue)
	m.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	p.Conn.Send(protocol.QueueJoined{Type: protocol.MsgQueueJoined, PlayerID: p.ID})

	if depth >= m.playersPerMatch {
		go m.tryMatch()
	}
}

// Leave removes a player. A player whose group is mid-provisioning has no
// queue entry anymore; marking the in-flight slot cancelled keeps a failed
// provision from resurrecting them. Returns whether anything was cancelled;
// socket close reuses this and ignores the result.
func (m *Matchmaker) Leave(playerID string) bool {
	m.mu.Lock()
	_, queued := m.queue[playerID]
	removed := queued
	if queued {
		m.removeLocked(playerID)
	} else if _, provisioning := m.inflight[playerID]; provisioning {
		m.inflight[playerID] = false
		removed = true
	}
	depth := len(m.queue)
	m.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	return removed
}

func (m *Matchmaker) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Matchmaker) removeLocked(playerID string) {
	delete(m.queue, playerID)
	for i, id := range m.order {
		if id == playerID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// tryMatch packs the queue head into full groups under the lock, then
// provisions each group concurrently. A trailing partial run stays queued.
func (m *Matchmaker) tryMatch() {
	m.mu.Lock()
	if len(m.queue) < m.playersPerMatch {
		m.mu.Unlock()
		return
	}

	var groups [][]*QueuedPlayer
	for len(m.order) >= m.playersPerMatch {
		group := make([]*QueuedPlayer, 0, m.playersPerMatch)
		for _, id := range m.order[:m.playersPerMatch] {
			group = append(group, m.queue[id])
		}
		for _, p := range group {
			m.removeLocked(p.ID)
			m.inflight[p.ID] = true
		}
		groups = append(groups, group)
	}
	depth := len(m.queue)
	m.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))

	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		go func(group []*QueuedPlayer) {
			defer wg.Done()
			m.provision(group)
		}(group)
	}
	wg.Wait()
}

func (m *Matchmaker) provision(group []*QueuedPlayer) {
	ctx, cancel := context.WithTimeout(context.Background(), provisionTimeout)
	defer cancel()

	roomID, info, err := m.assignRoom(ctx)
	if err != nil {
		logger.Warn("room provisioning failed", "error", err)
		metrics.MatchFailures.Inc()
		m.requeue(group)
		return
	}

	players := make([]protocol.MatchPlayer, 0, len(group))
	for _, p := range group {
		players = append(players, protocol.MatchPlayer{ID: p.ID, Name: p.Name})
	}
	connectionURL := fmt.Sprintf("wss://%s:%d/ws/game", info.Host, info.Port)

	for _, p := range group {
		msg := protocol.MatchFound{
			Type:          protocol.MsgMatchFound,
			RoomID:        roomID,
			ConnectionURL: connectionURL,
			Players:       players,
		}
		if m.tickets != nil && m.tickets.CanSign() {
			token, err := m.tickets.MintTicket(p.ID, roomID)
			if err != nil {
				logger.Warn("failed to mint match ticket", "playerId", p.ID, "error", err)
			} else {
				msg.Token = token
			}
		}
		p.Conn.Send(msg)
	}

	m.mu.Lock()
	for _, p := range group {
		delete(m.inflight, p.ID)
	}
	m.mu.Unlock()

	metrics.MatchesFormed.Inc()
	logger.Info("match formed", "roomId", roomID, "players", len(group))
}

func (m *Matchmaker) assignRoom(ctx context.Context) (string, *fabric.ConnectionInfo, error) {
	roomID, err := m.fab.CreateRoom(ctx, m.region)
	if err != nil {
		return "", nil, err
	}
	info, err := m.fab.GetConnectionInfo(ctx, roomID)
	if err != nil {
		return "", nil, err
	}
	return roomID, info, nil
}

// requeue puts a failed group at the queue tail, tells the players, and arms
// the debounced retry. Players who cancelled while provisioning was in flight
// stay gone.
func (m *Matchmaker) requeue(group []*QueuedPlayer) {
	m.mu.Lock()
	var back []*QueuedPlayer
	for _, p := range group {
		cancelled := !m.inflight[p.ID]
		delete(m.inflight, p.ID)
		if cancelled {
			continue
		}
		if _, queued := m.queue[p.ID]; queued {
			continue
		}
		m.queue[p.ID] = p
		m.order = append(m.order, p.ID)
		back = append(back, p)
	}
	depth := len(m.queue)
	m.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	for _, p := range back {
		p.Conn.Send(protocol.NewError(ErrMatchFailed))
	}
	if len(back) > 0 {
		m.scheduleRetry()
	}
}

// scheduleRetry arms at most one pending retry timer.
func (m *Matchmaker) scheduleRetry() {
	m.mu.Lock()
	if m.retryScheduled {
		m.mu.Unlock()
		return
	}
	m.retryScheduled = true
	m.mu.Unlock()

	time.AfterFunc(m.retryDelay, func() {
		m.mu.Lock()
		m.retryScheduled = false
		depth := len(m.queue)
		m.mu.Unlock()
		if depth >= m.playersPerMatch {
			m.tryMatch()
		}
	})
}
