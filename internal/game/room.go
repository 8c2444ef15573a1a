package game

import (
	"strings"
	"sync"
	"time"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/metrics"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/protocol"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/task"
)

// MaxPlayersPerRoom bounds room membership.
const MaxPlayersPerRoom = 2

type State string

const (
	StateWaiting   State = "waiting"
	StateCountdown State = "countdown"
	StateRacing    State = "racing"
	StateFinished  State = "finished"
)

// Room drives one race. All mutable state is guarded by mu; the countdown
// goroutine and lifecycle timers re-acquire it on every step so a single
// consistent ordering exists per room.
type Room struct {
	mu sync.Mutex

	ID       string
	IsPublic bool

	registry *Registry
	players  []*Player // insertion order
	tasks    []task.Task
	numTasks int
	state    State

	startTime      time.Time
	countdownStart time.Time
	countdownGen   int // invalidates a superseded countdown loop

	waitTimer    *time.Timer
	destroyTimer *time.Timer

	raceEnded     bool // one game:complete per race
	finishedCount int
}

func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Views returns the public shape of every player, insertion order preserved.
func (r *Room) Views() []protocol.PlayerView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewsLocked()
}

func (r *Room) viewsLocked() []protocol.PlayerView {
	views := make([]protocol.PlayerView, 0, len(r.players))
	for _, p := range r.players {
		views = append(views, p.view())
	}
	return views
}

// Join adds a player to a waiting room. Joining twice with the same id is a
// no-op that refreshes the connection, which makes room:join_matched
// idempotent.
func (r *Room) Join(p *Player) error {
	r.mu.Lock()

	if existing := r.findLocked(p.ID); existing != nil {
		existing.Conn = p.Conn
		r.mu.Unlock()
		return nil
	}
	if r.state != StateWaiting {
		r.mu.Unlock()
		return ErrRaceInProgress
	}
	if len(r.players) >= MaxPlayersPerRoom {
		r.mu.Unlock()
		return ErrRoomFull
	}

	r.players = append(r.players, p)
	r.broadcastExceptLocked(protocol.RoomPlayerJoined{
		Type:   protocol.MsgRoomPlayerJoined,
		Player: p.view(),
	}, p.ID)

	full := r.IsPublic && len(r.players) == MaxPlayersPerRoom
	r.mu.Unlock()

	if full {
		r.registry.updateLobby(r)
	}
	return nil
}

// Leave removes a player. Leaving mid-countdown or mid-race promotes the room
// to finished; the leaver still appears in the rankings.
func (r *Room) Leave(playerID string) {
	r.mu.Lock()

	leaver := r.findLocked(playerID)
	if leaver == nil {
		r.mu.Unlock()
		return
	}
	r.removeLocked(playerID)
	r.broadcastLocked(protocol.RoomPlayerLeft{
		Type:     protocol.MsgRoomPlayerLeft,
		PlayerID: playerID,
		Players:  r.viewsLocked(),
	})

	if r.state == StateCountdown || r.state == StateRacing {
		r.endRaceLocked(leaver)
	}

	empty := len(r.players) == 0
	r.mu.Unlock()

	if empty {
		r.registry.Destroy(r.ID, "")
	} else if r.IsPublic {
		r.registry.updateLobby(r)
	}
}

// Ready marks a player ready. When every slot is filled and ready the waiting
// timeout is cancelled and the countdown starts; in a finished private room
// this is the rematch path and regenerates the task list.
func (r *Room) Ready(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.IsPublic && r.state == StateFinished {
		return ErrRequeue
	}
	if r.state == StateCountdown || r.state == StateRacing {
		return nil
	}

	p := r.findLocked(playerID)
	if p == nil {
		return ErrRoomNotFound
	}
	p.ReadyToPlay = true
	r.broadcastLocked(protocol.RoomPlayerReady{
		Type:     protocol.MsgRoomPlayerReady,
		PlayerID: playerID,
	})

	if len(r.players) < MaxPlayersPerRoom || !r.allReadyLocked() {
		return nil
	}

	if r.state == StateFinished {
		if err := r.resetLocked(); err != nil {
			return err
		}
	}

	r.stopTimerLocked(&r.waitTimer)
	r.stopTimerLocked(&r.destroyTimer)
	for _, pl := range r.players {
		pl.resetProgress()
	}
	r.startCountdownLocked()
	return nil
}

// resetLocked rearms a finished room for a rematch with a fresh task list.
// Internal only; the ready transition is its sole caller.
func (r *Room) resetLocked() error {
	if r.state != StateFinished {
		return ErrResetNotFinished
	}
	session := r.registry.gen.Session(r.numTasks)
	r.tasks = session.Tasks
	r.raceEnded = false
	r.finishedCount = 0
	r.state = StateWaiting
	for _, p := range r.players {
		p.resetProgress()
	}
	r.broadcastLocked(protocol.RoomReset{
		Type:    protocol.MsgRoomReset,
		Players: r.viewsLocked(),
	})
	return nil
}

func (r *Room) startCountdownLocked() {
	r.state = StateCountdown
	r.countdownStart = time.Now()
	r.countdownGen++
	go r.runCountdown(r.countdownGen)
}

// runCountdown emits 3-2-1-GO at a one second cadence, then starts the race.
// Once started it runs to completion; the loop only bails when a leave has
// already promoted the room to finished.
func (r *Room) runCountdown(gen int) {
	for seconds := 3; ; seconds-- {
		r.mu.Lock()
		if r.countdownGen != gen || r.state != StateCountdown {
			r.mu.Unlock()
			return
		}
		if seconds < 0 {
			r.startRaceLocked()
			r.mu.Unlock()
			return
		}
		r.broadcastLocked(protocol.GameCountdown{
			Type:    protocol.MsgGameCountdown,
			Seconds: seconds,
		})
		r.mu.Unlock()

		time.Sleep(r.registry.timings.CountdownTick)
	}
}

func (r *Room) startRaceLocked() {
	r.state = StateRacing
	r.startTime = time.Now()
	r.broadcastLocked(protocol.GameStart{
		Type:        protocol.MsgGameStart,
		StartTime:   r.startTime.UnixMilli(),
		InitialTask: r.tasks[0],
		NumTasks:    r.numTasks,
	})
}

// Cursor handles player:cursor. Only meaningful while racing on a navigate
// task.
func (r *Room) Cursor(playerID string, offset int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.racingPlayerLocked(playerID)
	if p == nil {
		return
	}
	t := &r.tasks[p.TaskProgress]
	if t.Kind != task.KindNavigate {
		return
	}

	p.indicator.CursorOffset = offset
	if offset == t.TargetOffset {
		r.advanceLocked(p)
	}
}

// EditorText handles player:editorText. A wrong-but-consistent partial edit is
// tolerated; an edit that touches the protected prefix or suffix gets a
// validation-failure signal addressed to the offender only.
func (r *Room) EditorText(playerID string, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.racingPlayerLocked(playerID)
	if p == nil {
		return
	}
	t := &r.tasks[p.TaskProgress]
	if t.Kind != task.KindDelete || t.TargetRange == nil {
		return
	}

	p.indicator.EditorText = text
	if text == t.ExpectedResult {
		r.advanceLocked(p)
		return
	}

	prefix := t.CodeSnippet[:t.TargetRange.From]
	suffix := t.CodeSnippet[t.TargetRange.To:]
	ok := strings.HasPrefix(text, prefix) &&
		strings.HasSuffix(text, suffix) &&
		len(text) >= len(prefix)+len(suffix) &&
		len(text) <= len(t.CodeSnippet)
	if !ok {
		p.send(protocol.ValidationFailed{Type: protocol.MsgValidationFailed})
	}
}

// TaskComplete re-evaluates the current task against the accumulated inputs.
// Harmless when nothing is satisfied; clients use it after local replays.
func (r *Room) TaskComplete(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.racingPlayerLocked(playerID)
	if p == nil {
		return
	}
	t := &r.tasks[p.TaskProgress]
	switch t.Kind {
	case task.KindNavigate:
		if p.indicator.CursorOffset == t.TargetOffset {
			r.advanceLocked(p)
		}
	case task.KindDelete:
		if p.indicator.EditorText == t.ExpectedResult {
			r.advanceLocked(p)
		}
	}
}

func (r *Room) racingPlayerLocked(playerID string) *Player {
	if r.state != StateRacing {
		return nil
	}
	p := r.findLocked(playerID)
	if p == nil || p.IsFinished {
		return nil
	}
	return p
}

func (r *Room) advanceLocked(p *Player) {
	p.TaskProgress++
	p.indicator.EditorText = ""

	var next *task.Task
	if p.TaskProgress < len(r.tasks) {
		next = &r.tasks[p.TaskProgress]
	}
	p.send(protocol.PlayerFinishedTask{
		Type:         protocol.MsgPlayerFinishedTask,
		PlayerID:     p.ID,
		TaskProgress: p.TaskProgress,
		NewTask:      next,
	})
	r.broadcastExceptLocked(protocol.OpponentFinishedTask{
		Type:         protocol.MsgOpponentFinishedTask,
		PlayerID:     p.ID,
		TaskProgress: p.TaskProgress,
	}, p.ID)

	if p.TaskProgress < r.numTasks {
		return
	}

	p.IsFinished = true
	p.FinishTime = time.Since(r.startTime).Milliseconds()
	r.finishedCount++
	p.finishOrder = r.finishedCount
	r.broadcastLocked(protocol.PlayerFinished{
		Type:     protocol.MsgPlayerFinished,
		PlayerID: p.ID,
		Time:     p.FinishTime,
		Position: p.finishOrder,
	})

	if r.allFinishedLocked() {
		r.endRaceLocked(nil)
	}
}

func (r *Room) allFinishedLocked() bool {
	for _, p := range r.players {
		if !p.IsFinished {
			return false
		}
	}
	return len(r.players) > 0
}

func (r *Room) allReadyLocked() bool {
	for _, p := range r.players {
		if !p.ReadyToPlay {
			return false
		}
	}
	return len(r.players) > 0
}

// endRaceLocked finishes the race exactly once: rankings go out, the result is
// recorded, and the post-race lifecycle timer is armed. Public rooms are torn
// down shortly after; private rooms rearm for a rematch.
func (r *Room) endRaceLocked(leaver *Player) {
	if r.raceEnded {
		return
	}
	r.raceEnded = true
	r.state = StateFinished

	rankings := r.rankingsLocked(leaver)
	r.broadcastLocked(protocol.GameComplete{
		Type:     protocol.MsgGameComplete,
		Rankings: rankings,
	})
	metrics.RacesCompleted.Inc()
	r.registry.recordResult(r.ID, rankings, r.startTime)

	r.stopTimerLocked(&r.destroyTimer)
	if r.IsPublic {
		r.destroyTimer = time.AfterFunc(r.registry.timings.PostRaceDestroy, func() {
			r.registry.Destroy(r.ID, ReasonMatchEnded)
		})
		return
	}

	for _, p := range r.players {
		p.resetProgress()
	}
	r.destroyTimer = time.AfterFunc(r.registry.timings.RematchIdle, func() {
		r.registry.Destroy(r.ID, ReasonInactivity)
	})
}

// rankingsLocked sorts finished players by finish time (finish order breaks
// ties), then appends unfinished players with time zero. The result is a
// permutation of everyone who was racing, including a mid-race leaver.
func (r *Room) rankingsLocked(leaver *Player) []protocol.Ranking {
	everyone := make([]*Player, 0, len(r.players)+1)
	everyone = append(everyone, r.players...)
	if leaver != nil {
		everyone = append(everyone, leaver)
	}

	var finished, unfinished []*Player
	for _, p := range everyone {
		if p.IsFinished {
			finished = append(finished, p)
		} else {
			unfinished = append(unfinished, p)
		}
	}
	for i := 1; i < len(finished); i++ {
		for j := i; j > 0; j-- {
			a, b := finished[j-1], finished[j]
			if a.FinishTime < b.FinishTime || (a.FinishTime == b.FinishTime && a.finishOrder < b.finishOrder) {
				break
			}
			finished[j-1], finished[j] = b, a
		}
	}

	rankings := make([]protocol.Ranking, 0, len(everyone))
	for i, p := range finished {
		rankings = append(rankings, protocol.Ranking{
			PlayerID: p.ID,
			Name:     p.Name,
			Time:     p.FinishTime,
			Position: i + 1,
		})
	}
	for i, p := range unfinished {
		rankings = append(rankings, protocol.Ranking{
			PlayerID: p.ID,
			Name:     p.Name,
			Time:     0,
			Position: len(finished) + i + 1,
		})
	}
	return rankings
}

// shutdown cancels timers and notifies any remaining players. Called by the
// registry once the room is unregistered.
func (r *Room) shutdown(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.countdownGen++ // stop any running countdown loop
	r.stopTimerLocked(&r.waitTimer)
	r.stopTimerLocked(&r.destroyTimer)

	if reason != "" {
		r.broadcastLocked(protocol.NewRoomError(reason))
	}
	r.players = nil
}

// stopTimerLocked is idempotent; a nil or already-fired timer is fine.
func (r *Room) stopTimerLocked(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (r *Room) findLocked(playerID string) *Player {
	for _, p := range r.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (r *Room) removeLocked(playerID string) {
	for i, p := range r.players {
		if p.ID == playerID {
			r.players = append(r.players[:i], r.players[i+1:]...)
			return
		}
	}
}

func (r *Room) broadcastLocked(v any) {
	for _, p := range r.players {
		p.send(v)
	}
}

func (r *Room) broadcastExceptLocked(v any, exceptID string) {
	for _, p := range r.players {
		if p.ID == exceptID {
			continue
		}
		p.send(v)
	}
}
