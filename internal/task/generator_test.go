package task

import (
	"fmt"
	"strings"
	"testing"
)

func TestSessionComposition(t *testing.T) {
	g := NewSeeded(1)
	s := g.Session(10)

	if s.NumTasks != 10 {
		t.Fatalf("NumTasks = %d; want 10", s.NumTasks)
	}
	if len(s.Tasks) != 11 {
		t.Fatalf("len(Tasks) = %d; want 10 tasks plus sentinel", len(s.Tasks))
	}

	var navigates, deletes int
	for _, task := range s.Tasks[:10] {
		switch task.Kind {
		case KindNavigate:
			navigates++
		case KindDelete:
			deletes++
		default:
			t.Fatalf("unexpected task kind %q", task.Kind)
		}
	}
	if navigates != 5 || deletes != 5 {
		t.Fatalf("got %d navigate / %d delete; want 5/5", navigates, deletes)
	}

	sentinel := s.Tasks[10]
	if sentinel.Kind != KindNavigate || sentinel.TargetOffset != 0 || sentinel.CodeSnippet != "" {
		t.Fatalf("last task is not the empty sentinel: %+v", sentinel)
	}
}

func TestSessionOddLength(t *testing.T) {
	g := NewSeeded(2)
	s := g.Session(7)
	if len(s.Tasks) != 8 {
		t.Fatalf("len(Tasks) = %d; want 8", len(s.Tasks))
	}

	var navigates int
	for _, task := range s.Tasks[:7] {
		if task.Kind == KindNavigate {
			navigates++
		}
	}
	// n/2 navigation tasks, the rest deletion.
	if navigates != 3 {
		t.Fatalf("navigates = %d; want 3", navigates)
	}
}

func TestPositionTaskTargetsNonWhitespace(t *testing.T) {
	g := NewSeeded(3)
	for i := 0; i < 200; i++ {
		task := g.PositionTask()

		if task.TargetOffset < 0 || task.TargetOffset >= len(task.CodeSnippet) {
			t.Fatalf("offset %d out of range for snippet of %d bytes", task.TargetOffset, len(task.CodeSnippet))
		}
		c := task.CodeSnippet[task.TargetOffset]
		if c == ' ' || c == '\t' || c == '\n' {
			t.Fatalf("offset %d points at whitespace", task.TargetOffset)
		}
		if task.TargetPosition == nil {
			t.Fatal("navigate task missing target position")
		}
		if task.TargetPosition.Line < 1 || task.TargetPosition.Col < 0 {
			t.Fatalf("bad position %+v", *task.TargetPosition)
		}
	}
}

func TestNavigateDescriptionIsOneIndexed(t *testing.T) {
	g := NewSeeded(6)
	for i := 0; i < 50; i++ {
		task := g.PositionTask()
		// Position.Col stays 0-indexed on the wire; the human-readable
		// description counts columns from 1.
		want := fmt.Sprintf("Move the cursor to line %d, column %d",
			task.TargetPosition.Line, task.TargetPosition.Col+1)
		if task.Description != want {
			t.Fatalf("description %q; want %q", task.Description, want)
		}
	}
}

func TestDeleteTaskInvariants(t *testing.T) {
	g := NewSeeded(4)
	for i := 0; i < 200; i++ {
		task := g.DeleteTask()

		r := task.TargetRange
		if r == nil {
			t.Fatal("delete task missing range")
		}
		if r.From < 0 || r.From >= r.To || r.To > len(task.CodeSnippet) {
			t.Fatalf("bad range [%d,%d) for snippet of %d bytes", r.From, r.To, len(task.CodeSnippet))
		}
		want := task.CodeSnippet[:r.From] + task.CodeSnippet[r.To:]
		if task.ExpectedResult != want {
			t.Fatalf("expectedResult does not match prefix+suffix for strategy %s", task.Strategy)
		}
	}
}

func TestInnerStrategiesNeverEmpty(t *testing.T) {
	g := NewSeeded(5)
	for i := 0; i < 500; i++ {
		task := g.DeleteTask()
		switch task.Strategy {
		case StrategyInnerParen, StrategyInnerCurly, StrategyInnerBrack:
			r := task.TargetRange
			inner := task.CodeSnippet[r.From:r.To]
			if strings.TrimSpace(inner) == "" {
				t.Fatalf("inner delete over whitespace-only span %q", inner)
			}
		}
	}
}

func TestPositionAt(t *testing.T) {
	code := "ab\ncd\n\nef"
	cases := []struct {
		offset int
		line   int
		col    int
	}{
		{0, 1, 0},
		{1, 1, 1},
		{3, 2, 0},
		{4, 2, 1},
		{7, 4, 0},
	}
	for _, tc := range cases {
		pos := positionAt(code, tc.offset)
		if pos.Line != tc.line || pos.Col != tc.col {
			t.Fatalf("positionAt(%d) = %d:%d; want %d:%d", tc.offset, pos.Line, pos.Col, tc.line, tc.col)
		}
	}
}

func TestCorpusAnnotations(t *testing.T) {
	for _, s := range corpus {
		for _, off := range s.NonWS {
			c := s.Code[off]
			if c == ' ' || c == '\t' || c == '\n' {
				t.Fatalf("NonWS offset %d points at whitespace", off)
			}
		}
		for _, p := range s.Parens {
			if s.Code[p.From] != '(' || s.Code[p.To] != ')' {
				t.Fatalf("paren pair [%d,%d] does not delimit parens", p.From, p.To)
			}
		}
		for _, p := range s.Curlies {
			if s.Code[p.From] != '{' || s.Code[p.To] != '}' {
				t.Fatalf("curly pair [%d,%d] does not delimit braces", p.From, p.To)
			}
		}
		for _, p := range s.Brackets {
			if s.Code[p.From] != '[' || s.Code[p.To] != ']' {
				t.Fatalf("bracket pair [%d,%d] does not delimit brackets", p.From, p.To)
			}
		}
	}
}
