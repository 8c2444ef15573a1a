package game

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/task"
)

// fakeConn records every outbound event as a decoded JSON object.
type fakeConn struct {
	mu     sync.Mutex
	events []map[string]any
}

func (f *fakeConn) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}
	f.mu.Lock()
	f.events = append(f.events, m)
	f.mu.Unlock()
}

func (f *fakeConn) Close() {}

func (f *fakeConn) count(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e["type"] == typ {
			n++
		}
	}
	return n
}

func (f *fakeConn) last(typ string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i]["type"] == typ {
			return f.events[i]
		}
	}
	return nil
}

func (f *fakeConn) waitFor(t *testing.T, typ string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e := f.last(typ); e != nil {
			return e
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", typ)
	return nil
}

func fastTimings() Timings {
	return Timings{
		WaitingPublic:   time.Minute,
		WaitingPrivate:  time.Minute,
		PostRaceDestroy: 50 * time.Millisecond,
		RematchIdle:     time.Minute,
		StartupIdle:     time.Minute,
		ExitDebounce:    10 * time.Millisecond,
		CountdownTick:   time.Millisecond,
	}
}

func testRegistry(cfg RegistryConfig) *Registry {
	if cfg.Timings == (Timings{}) {
		cfg.Timings = fastTimings()
	}
	return NewRegistry(task.NewSeeded(42), cfg)
}

func waitState(t *testing.T, r *Room, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("room never reached state %s (now %s)", want, r.State())
}

// setTasks pins a deterministic task list onto a waiting room.
func setTasks(r *Room, tasks []task.Task) {
	r.mu.Lock()
	r.tasks = tasks
	r.numTasks = len(tasks) - 1
	r.mu.Unlock()
}

func navigateTask(snippet string, offset int) task.Task {
	return task.Task{Kind: task.KindNavigate, CodeSnippet: snippet, TargetOffset: offset}
}

func deleteTask(snippet string, from, to int) task.Task {
	return task.Task{
		Kind:           task.KindDelete,
		CodeSnippet:    snippet,
		TargetRange:    &task.Range{From: from, To: to},
		ExpectedResult: snippet[:from] + snippet[to:],
	}
}

// startRace builds a private room with two players and a pinned task list and
// drives it to racing.
func startRace(t *testing.T, reg *Registry, tasks []task.Task) (*Room, *fakeConn, *fakeConn) {
	t.Helper()

	room, err := reg.CreateRoom("", false, 1)
	require.NoError(t, err)

	c1, c2 := &fakeConn{}, &fakeConn{}
	require.NoError(t, room.Join(NewPlayer("p1", "Alpha", c1)))
	require.NoError(t, room.Join(NewPlayer("p2", "Beta", c2)))
	setTasks(room, tasks)

	require.NoError(t, room.Ready("p1"))
	require.NoError(t, room.Ready("p2"))
	waitState(t, room, StateRacing)
	return room, c1, c2
}

func TestCountdownAndStart(t *testing.T) {
	reg := testRegistry(RegistryConfig{})
	room, c1, c2 := startRace(t, reg, []task.Task{
		navigateTask("int main() {}", 4),
		task.Sentinel(),
	})

	for _, c := range []*fakeConn{c1, c2} {
		assert.Equal(t, 4, c.count("game:countdown"))
		start := c.waitFor(t, "game:start")
		assert.EqualValues(t, 1, start["num_tasks"])
		require.NotNil(t, start["initialTask"])
	}
	assert.Equal(t, StateRacing, room.State())
}

func TestNavigateTaskAdvance(t *testing.T) {
	reg := testRegistry(RegistryConfig{})
	room, c1, c2 := startRace(t, reg, []task.Task{
		navigateTask("int main() {}", 4),
		navigateTask("x", 0),
		task.Sentinel(),
	})

	room.Cursor("p1", 3)
	assert.Equal(t, 0, c1.count("game:player_finished_task"))

	room.Cursor("p1", 4)
	done := c1.waitFor(t, "game:player_finished_task")
	assert.EqualValues(t, 1, done["taskProgress"])
	require.NotNil(t, done["newTask"])

	opp := c2.waitFor(t, "game:opponent_finished_task")
	assert.Equal(t, "p1", opp["playerId"])
	assert.Equal(t, 0, c2.count("game:player_finished_task"))
}

func TestDeleteTaskPartialEdits(t *testing.T) {
	reg := testRegistry(RegistryConfig{})
	room, c1, c2 := startRace(t, reg, []task.Task{
		deleteTask("abcdef", 2, 5), // expected "abf"
		navigateTask("x", 0),
		task.Sentinel(),
	})

	// Consistent partial edit: prefix "ab" and suffix "f" intact.
	room.EditorText("p1", "abcf")
	assert.Equal(t, 0, c1.count("game:validation_failed"))
	assert.Equal(t, 0, c1.count("game:player_finished_task"))

	// Prefix modified: offender is told, opponent is not.
	room.EditorText("p1", "axcdef")
	c1.waitFor(t, "game:validation_failed")
	assert.Equal(t, 0, c2.count("game:validation_failed"))

	// Exact match advances.
	room.EditorText("p1", "abf")
	c1.waitFor(t, "game:player_finished_task")
}

func TestRaceCompletionAndRankings(t *testing.T) {
	reg := testRegistry(RegistryConfig{})
	room, c1, c2 := startRace(t, reg, []task.Task{
		navigateTask("int main() {}", 4),
		task.Sentinel(),
	})

	room.Cursor("p1", 4)
	finished := c2.waitFor(t, "game:player_finished")
	assert.Equal(t, "p1", finished["playerId"])
	assert.EqualValues(t, 1, finished["position"])
	assert.Equal(t, 0, c1.count("game:complete"))

	room.Cursor("p2", 4)
	complete := c1.waitFor(t, "game:complete")
	rankings := complete["rankings"].([]any)
	require.Len(t, rankings, 2)
	first := rankings[0].(map[string]any)
	second := rankings[1].(map[string]any)
	assert.Equal(t, "p1", first["playerId"])
	assert.EqualValues(t, 1, first["position"])
	assert.Equal(t, "p2", second["playerId"])
	assert.EqualValues(t, 2, second["position"])

	assert.Equal(t, StateFinished, room.State())
	assert.Equal(t, 1, c1.count("game:complete"))
}

func TestLeaveMidRaceEndsGame(t *testing.T) {
	reg := testRegistry(RegistryConfig{})
	room, c1, _ := startRace(t, reg, []task.Task{
		navigateTask("int main() {}", 4),
		task.Sentinel(),
	})

	room.Leave("p2")
	complete := c1.waitFor(t, "game:complete")
	rankings := complete["rankings"].([]any)
	require.Len(t, rankings, 2)

	// The leaver still appears, unfinished, with time zero.
	leaver := rankings[1].(map[string]any)
	assert.Equal(t, "p2", leaver["playerId"])
	assert.EqualValues(t, 0, leaver["time"])
	assert.EqualValues(t, 2, leaver["position"])
	assert.Equal(t, StateFinished, room.State())
}

func TestPrivateRematchResets(t *testing.T) {
	reg := testRegistry(RegistryConfig{})
	room, c1, _ := startRace(t, reg, []task.Task{
		navigateTask("int main() {}", 4),
		task.Sentinel(),
	})

	room.Cursor("p1", 4)
	room.Cursor("p2", 4)
	c1.waitFor(t, "game:complete")
	waitState(t, room, StateFinished)

	require.NoError(t, room.Ready("p1"))
	require.NoError(t, room.Ready("p2"))
	c1.waitFor(t, "room:reset")
	waitState(t, room, StateRacing)

	room.mu.Lock()
	assert.False(t, room.raceEnded)
	for _, p := range room.players {
		assert.Equal(t, 0, p.TaskProgress)
		assert.False(t, p.IsFinished)
	}
	room.mu.Unlock()
}

func TestPublicRoomFinishedRejectsReady(t *testing.T) {
	reg := testRegistry(RegistryConfig{})
	room, err := reg.CreateRoom("", true, 1)
	require.NoError(t, err)

	c1, c2 := &fakeConn{}, &fakeConn{}
	require.NoError(t, room.Join(NewPlayer("p1", "A", c1)))
	require.NoError(t, room.Join(NewPlayer("p2", "B", c2)))
	setTasks(room, []task.Task{navigateTask("x", 0), task.Sentinel()})

	require.NoError(t, room.Ready("p1"))
	require.NoError(t, room.Ready("p2"))
	waitState(t, room, StateRacing)

	room.Cursor("p1", 0)
	room.Cursor("p2", 0)
	waitState(t, room, StateFinished)

	assert.ErrorIs(t, room.Ready("p1"), ErrRequeue)
}

func TestJoinRules(t *testing.T) {
	reg := testRegistry(RegistryConfig{})
	room, err := reg.CreateRoom("", false, 1)
	require.NoError(t, err)

	require.NoError(t, room.Join(NewPlayer("p1", "A", &fakeConn{})))
	require.NoError(t, room.Join(NewPlayer("p2", "B", &fakeConn{})))
	assert.ErrorIs(t, room.Join(NewPlayer("p3", "C", &fakeConn{})), ErrRoomFull)

	setTasks(room, []task.Task{navigateTask("x", 0), task.Sentinel()})
	require.NoError(t, room.Ready("p1"))
	require.NoError(t, room.Ready("p2"))
	waitState(t, room, StateRacing)

	room.Leave("p1")
	waitState(t, room, StateFinished)
	assert.ErrorIs(t, room.Join(NewPlayer("p4", "D", &fakeConn{})), ErrRaceInProgress)
}

func TestJoinMatchedIdempotent(t *testing.T) {
	reg := testRegistry(RegistryConfig{})

	c := &fakeConn{}
	room1, err := reg.JoinMatched("matchroom12345", NewPlayer("p1", "A", c))
	require.NoError(t, err)
	room2, err := reg.JoinMatched("matchroom12345", NewPlayer("p1", "A", c))
	require.NoError(t, err)

	assert.Same(t, room1, room2)
	assert.Equal(t, 1, room1.PlayerCount())
	assert.Equal(t, 1, reg.RoomCount())

	_, err = reg.JoinMatched("matchroom12345", NewPlayer("p2", "B", &fakeConn{}))
	require.NoError(t, err)
	assert.Equal(t, 2, room1.PlayerCount())
}

func TestQuickMatchFillsOldestRoom(t *testing.T) {
	reg := testRegistry(RegistryConfig{})

	r1, created, err := reg.QuickMatch(NewPlayer("p1", "A", &fakeConn{}))
	require.NoError(t, err)
	assert.True(t, created)

	r2, created, err := reg.QuickMatch(NewPlayer("p2", "B", &fakeConn{}))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, r1, r2)

	r3, created, err := reg.QuickMatch(NewPlayer("p3", "C", &fakeConn{}))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotSame(t, r1, r3)
}

func TestQuickMatchConcurrentPlayersAllLand(t *testing.T) {
	reg := testRegistry(RegistryConfig{})

	const n = 8
	rooms := make([]*Room, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i], _, errs[i] = reg.QuickMatch(NewPlayer(fmt.Sprintf("p%d", i), "P", &fakeConn{}))
		}(i)
	}
	wg.Wait()

	// Every player ends up in a room; a slot lost to a concurrent join is
	// retried, never surfaced as an error.
	seen := make(map[string]bool)
	total := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, rooms[i])
		assert.LessOrEqual(t, rooms[i].PlayerCount(), MaxPlayersPerRoom)
		if !seen[rooms[i].ID] {
			seen[rooms[i].ID] = true
			total += rooms[i].PlayerCount()
		}
	}
	assert.Equal(t, n, total)
}

func TestWaitingTimeoutDestroysRoom(t *testing.T) {
	timings := fastTimings()
	timings.WaitingPublic = 20 * time.Millisecond
	reg := testRegistry(RegistryConfig{Timings: timings})

	room, err := reg.CreateRoom("", true, 1)
	require.NoError(t, err)
	c := &fakeConn{}
	require.NoError(t, room.Join(NewPlayer("p1", "A", c)))

	deadline := time.Now().Add(2 * time.Second)
	for reg.RoomCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 0, reg.RoomCount())

	errEvt := c.waitFor(t, "room:error")
	assert.Equal(t, ReasonInactivity, errEvt["message"])
}

func TestFabricExitDebounce(t *testing.T) {
	exited := make(chan int, 1)
	reg := testRegistry(RegistryConfig{
		FabricMode: true,
		Exit:       func(code int) { exited <- code },
	})

	room, err := reg.CreateRoom("", true, 1)
	require.NoError(t, err)
	reg.Destroy(room.ID, "")

	select {
	case code := <-exited:
		assert.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("exit was never called")
	}
}

func TestRankingsTieBreakByFinishOrder(t *testing.T) {
	r := &Room{}
	a := &Player{ID: "a", Name: "A", IsFinished: true, FinishTime: 1000, finishOrder: 2}
	b := &Player{ID: "b", Name: "B", IsFinished: true, FinishTime: 1000, finishOrder: 1}
	c := &Player{ID: "c", Name: "C"}
	r.players = []*Player{a, b, c}

	rankings := r.rankingsLocked(nil)
	require.Len(t, rankings, 3)
	assert.Equal(t, "b", rankings[0].PlayerID)
	assert.Equal(t, "a", rankings[1].PlayerID)
	assert.Equal(t, "c", rankings[2].PlayerID)
	assert.EqualValues(t, 0, rankings[2].Time)
	assert.Equal(t, 3, rankings[2].Position)
}
