package task

import (
	"strings"
	"unicode"
)

// Snippet is a corpus entry with precomputed index sets so task generation
// never rescans the code.
type Snippet struct {
	Code     string
	NonWS    []int   // offsets of non-whitespace characters
	Words    []Range // half-open word spans
	Parens   []Range // matching pairs, From = open, To = close (inclusive offsets)
	Curlies  []Range
	Brackets []Range
}

var rawCorpus = []string{
	`function add(a, b) {
  return a + b;
}`,
	`const items = [1, 2, 3];
const doubled = items.map((x) => x * 2);`,
	`if (user.isActive) {
  sendEmail(user.address);
}`,
	`for (let i = 0; i < rows.length; i++) {
  total += rows[i].value;
}`,
	`def parse(line):
    key, value = line.split("=")
    return key.strip(), value.strip()`,
	`type Server struct {
	Host string
	Port int
}`,
	`func (s *Stack) Pop() (int, bool) {
	if len(s.items) == 0 {
		return 0, false
	}
	v := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return v, true
}`,
	`while (queue.length > 0) {
  const job = queue.shift();
  process(job);
}`,
	`SELECT name, count(*) FROM races GROUP BY name;`,
	`let config = { retries: 3, timeout: 5000 };
connect(config).catch(console.error);`,
	`impl Point {
    fn norm(&self) -> f64 {
        (self.x * self.x + self.y * self.y).sqrt()
    }
}`,
	`switch msg.Type {
case "join":
	room.Add(msg.Player)
case "leave":
	room.Remove(msg.Player)
}`,
}

var corpus = buildCorpus(rawCorpus)

func buildCorpus(raw []string) []Snippet {
	out := make([]Snippet, 0, len(raw))
	for _, code := range raw {
		out = append(out, analyze(stripBlankLines(code)))
	}
	return out
}

// stripBlankLines drops lines that contain only whitespace.
func stripBlankLines(code string) string {
	lines := strings.Split(code, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func analyze(code string) Snippet {
	s := Snippet{Code: code}

	var parenStack, curlyStack, brackStack []int
	inWord := false
	wordStart := 0

	for i, r := range code {
		if !unicode.IsSpace(r) {
			s.NonWS = append(s.NonWS, i)
		}

		isWord := r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
		if isWord && !inWord {
			inWord = true
			wordStart = i
		} else if !isWord && inWord {
			inWord = false
			s.Words = append(s.Words, Range{From: wordStart, To: i})
		}

		switch r {
		case '(':
			parenStack = append(parenStack, i)
		case ')':
			if n := len(parenStack); n > 0 {
				s.Parens = append(s.Parens, Range{From: parenStack[n-1], To: i})
				parenStack = parenStack[:n-1]
			}
		case '{':
			curlyStack = append(curlyStack, i)
		case '}':
			if n := len(curlyStack); n > 0 {
				s.Curlies = append(s.Curlies, Range{From: curlyStack[n-1], To: i})
				curlyStack = curlyStack[:n-1]
			}
		case '[':
			brackStack = append(brackStack, i)
		case ']':
			if n := len(brackStack); n > 0 {
				s.Brackets = append(s.Brackets, Range{From: brackStack[n-1], To: i})
				brackStack = brackStack[:n-1]
			}
		}
	}
	if inWord {
		s.Words = append(s.Words, Range{From: wordStart, To: len(code)})
	}

	return s
}

// positionAt converts a byte offset into a 1-indexed line and 0-indexed column.
func positionAt(code string, offset int) Position {
	line := 1
	col := 0
	for i, r := range code {
		if i == offset {
			break
		}
		if r == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return Position{Line: line, Col: col}
}
