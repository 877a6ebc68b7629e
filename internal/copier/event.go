package copier

// Level is the severity of an execution log line.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
)

func (l Level) String() string {
	if l == LevelWarn {
		return "warn"
	}
	return "info"
}

// Event is one execution log line produced while copying a table. Progress
// events also carry the running record count for the table and mark a point
// where the owner of the execution record should persist it.
type Event struct {
	Level    Level
	Table    string
	Message  string
	Progress bool
	Records  int64
}

// Emit receives events in order. It is called from the goroutine running
// CopyTable.
type Emit func(Event)
