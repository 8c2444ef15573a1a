package task

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// DefaultNumTasks is the race length when none is requested.
const DefaultNumTasks = 10

// Generator produces task sessions from the snippet corpus. Safe for
// concurrent use.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	corpus []Snippet
}

func NewGenerator() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a deterministic generator, used by tests.
func NewSeeded(seed int64) *Generator {
	return &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		corpus: corpus,
	}
}

// Session generates n shuffled tasks (half navigation, half deletion) followed
// by the terminal sentinel.
func (g *Generator) Session(n int) Session {
	if n <= 0 {
		n = DefaultNumTasks
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	tasks := make([]Task, 0, n+1)
	for i := 0; i < n/2; i++ {
		tasks = append(tasks, g.positionTask())
	}
	for len(tasks) < n {
		tasks = append(tasks, g.deleteTask())
	}

	g.rng.Shuffle(len(tasks), func(i, j int) {
		tasks[i], tasks[j] = tasks[j], tasks[i]
	})
	tasks = append(tasks, Sentinel())

	return Session{
		Tasks:     tasks,
		NumTasks:  n,
		StartTime: time.Now().UnixMilli(),
	}
}

// PositionTask generates a single navigation task.
func (g *Generator) PositionTask() Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.positionTask()
}

// DeleteTask generates a single deletion task.
func (g *Generator) DeleteTask() Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deleteTask()
}

func (g *Generator) positionTask() Task {
	s := g.corpus[g.rng.Intn(len(g.corpus))]

	offset := 0
	if len(s.NonWS) > 0 {
		offset = s.NonWS[g.rng.Intn(len(s.NonWS))]
	}
	pos := positionAt(s.Code, offset)

	return Task{
		Kind:           KindNavigate,
		CodeSnippet:    s.Code,
		TargetOffset:   offset,
		TargetPosition: &pos,
		Description:    fmt.Sprintf("Move the cursor to line %d, column %d", pos.Line, pos.Col+1),
	}
}

func (g *Generator) deleteTask() Task {
	s := g.corpus[g.rng.Intn(len(g.corpus))]

	strategies := availableStrategies(s)
	strategy := strategies[g.rng.Intn(len(strategies))]

	r := g.rangeFor(s, strategy)
	expected := s.Code[:r.From] + s.Code[r.To:]

	return Task{
		Kind:           KindDelete,
		CodeSnippet:    s.Code,
		TargetRange:    &r,
		ExpectedResult: expected,
		Strategy:       strategy,
		Description:    describeDelete(strategy),
	}
}

// availableStrategies returns the strategies this snippet can support. RANDOM
// is always present so the draw never comes up empty.
func availableStrategies(s Snippet) []Strategy {
	out := []Strategy{StrategyRandom}
	if len(s.Words) > 0 {
		out = append(out, StrategyWord)
	}
	if len(s.Parens) > 0 {
		out = append(out, StrategyParen)
		if hasInner(s.Code, s.Parens) {
			out = append(out, StrategyInnerParen)
		}
	}
	if len(s.Curlies) > 0 {
		out = append(out, StrategyCurly)
		if hasInner(s.Code, s.Curlies) {
			out = append(out, StrategyInnerCurly)
		}
	}
	if len(s.Brackets) > 0 {
		out = append(out, StrategyBracket)
		if hasInner(s.Code, s.Brackets) {
			out = append(out, StrategyInnerBrack)
		}
	}
	return out
}

// hasInner reports whether any pair's inner span contains a non-whitespace
// character.
func hasInner(code string, pairs []Range) bool {
	for _, p := range pairs {
		if strings.TrimSpace(code[p.From+1:p.To]) != "" {
			return true
		}
	}
	return false
}

func (g *Generator) rangeFor(s Snippet, strategy Strategy) Range {
	switch strategy {
	case StrategyWord:
		i := g.rng.Intn(len(s.Words))
		k := 1 + g.rng.Intn(3)
		if i+k > len(s.Words) {
			k = len(s.Words) - i
		}
		return Range{From: s.Words[i].From, To: s.Words[i+k-1].To}

	case StrategyParen:
		return outerRange(g.pick(s.Parens))
	case StrategyCurly:
		return outerRange(g.pick(s.Curlies))
	case StrategyBracket:
		return outerRange(g.pick(s.Brackets))

	case StrategyInnerParen:
		return g.innerRange(s.Code, s.Parens)
	case StrategyInnerCurly:
		return g.innerRange(s.Code, s.Curlies)
	case StrategyInnerBrack:
		return g.innerRange(s.Code, s.Brackets)

	default: // RANDOM
		if len(s.NonWS) < 2 {
			return Range{From: 0, To: 1}
		}
		a := g.rng.Intn(len(s.NonWS))
		b := g.rng.Intn(len(s.NonWS) - 1)
		if b >= a {
			b++
		}
		lo, hi := s.NonWS[a], s.NonWS[b]
		if lo > hi {
			lo, hi = hi, lo
		}
		return Range{From: lo, To: hi + 1}
	}
}

func (g *Generator) pick(pairs []Range) Range {
	return pairs[g.rng.Intn(len(pairs))]
}

// outerRange covers the pair including both delimiters, the `da(` family.
func outerRange(pair Range) Range {
	return Range{From: pair.From, To: pair.To + 1}
}

// innerRange covers the span between the delimiters, the `di(` family. Pairs
// with whitespace-only interiors are skipped.
func (g *Generator) innerRange(code string, pairs []Range) Range {
	candidates := make([]Range, 0, len(pairs))
	for _, p := range pairs {
		if strings.TrimSpace(code[p.From+1:p.To]) != "" {
			candidates = append(candidates, Range{From: p.From + 1, To: p.To})
		}
	}
	return candidates[g.rng.Intn(len(candidates))]
}

func describeDelete(strategy Strategy) string {
	switch strategy {
	case StrategyWord:
		return "Delete the highlighted words"
	case StrategyParen:
		return "Delete around the parentheses"
	case StrategyCurly:
		return "Delete around the curly braces"
	case StrategyBracket:
		return "Delete around the brackets"
	case StrategyInnerParen:
		return "Delete inside the parentheses"
	case StrategyInnerCurly:
		return "Delete inside the curly braces"
	case StrategyInnerBrack:
		return "Delete inside the brackets"
	default:
		return "Delete the highlighted range"
	}
}
