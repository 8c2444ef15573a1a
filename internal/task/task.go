package task

// Kind discriminates the task variants carried over the wire.
type Kind string

const (
	KindNavigate Kind = "navigate"
	KindDelete   Kind = "delete"
)

// Strategy tags how a delete task's target range was chosen.
type Strategy string

const (
	StrategyWord       Strategy = "WORD"
	StrategyParen      Strategy = "PARENTHESIS"
	StrategyCurly      Strategy = "CURLY_BRACE"
	StrategyBracket    Strategy = "BRACKET"
	StrategyInnerParen Strategy = "INNER_PARENTHESIS"
	StrategyInnerCurly Strategy = "INNER_CURLY_BRACE"
	StrategyInnerBrack Strategy = "INNER_BRACKET"
	StrategyRandom     Strategy = "RANDOM"
)

// Position is a cursor location, 1-indexed line and 0-indexed column.
type Position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// Range is a half-open [From, To) span of byte offsets into a snippet.
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Task is a single race step. Navigate tasks complete when the cursor reaches
// TargetOffset; delete tasks complete when the editor text equals
// ExpectedResult.
type Task struct {
	Kind           Kind      `json:"type"`
	CodeSnippet    string    `json:"codeSnippet"`
	TargetOffset   int       `json:"targetOffset"`
	TargetPosition *Position `json:"targetPosition,omitempty"`
	TargetRange    *Range    `json:"targetRange,omitempty"`
	ExpectedResult string    `json:"expectedResult,omitempty"`
	Strategy       Strategy  `json:"strategy,omitempty"`
	Description    string    `json:"description"`
}

// Session is a generated task list for one race or practice run.
type Session struct {
	Tasks     []Task `json:"tasks"`
	NumTasks  int    `json:"numTasks"`
	StartTime int64  `json:"startTime"`
}

// Sentinel returns the terminal task appended after the real task list.
func Sentinel() Task {
	return Task{Kind: KindNavigate, CodeSnippet: "", TargetOffset: 0, Description: "Done"}
}
