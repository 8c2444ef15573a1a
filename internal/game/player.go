package game

import "github.com/Swaggermuffin64/vim-racing-sub000/internal/protocol"

// Conn is the outbound side of a player's session. Implementations must not
// block; slow clients drop frames rather than stalling the room.
type Conn interface {
	Send(v any)
	Close()
}

// successIndicator accumulates the inputs used to evaluate the current task.
type successIndicator struct {
	CursorOffset int
	EditorText   string
}

// Player is one participant's identity and per-race progress. All fields are
// guarded by the owning room's mutex.
type Player struct {
	ID   string
	Name string
	Conn Conn

	indicator    successIndicator
	TaskProgress int
	ReadyToPlay  bool
	IsFinished   bool
	FinishTime   int64 // ms since race start
	finishOrder  int   // tie-break for rankings, 1-based
}

func NewPlayer(id, name string, conn Conn) *Player {
	return &Player{ID: id, Name: name, Conn: conn}
}

// resetProgress clears race state ahead of a (re)start. The ready flag is
// cleared too; every race requires a fresh ready from each player.
func (p *Player) resetProgress() {
	p.indicator = successIndicator{}
	p.TaskProgress = 0
	p.ReadyToPlay = false
	p.IsFinished = false
	p.FinishTime = 0
	p.finishOrder = 0
}

func (p *Player) view() protocol.PlayerView {
	return protocol.PlayerView{
		ID:           p.ID,
		Name:         p.Name,
		ReadyToPlay:  p.ReadyToPlay,
		TaskProgress: p.TaskProgress,
		IsFinished:   p.IsFinished,
	}
}

func (p *Player) send(v any) {
	if p.Conn != nil {
		p.Conn.Send(v)
	}
}
