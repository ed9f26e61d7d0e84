package entry

import (
	"strings"
	"sync"

	"github.com/noah-isme/sma-entry-sync/internal/models"
)

// Field is one of the two inputs on a grade row.
type Field string

const (
	FieldScore    Field = "score"
	FieldFeedback Field = "feedback"
)

// Valid reports whether f names a known field.
func (f Field) Valid() bool {
	return f == FieldScore || f == FieldFeedback
}

// Key is a keyboard event as reported by the UI.
type Key struct {
	Name  string `json:"key" validate:"required"`
	Shift bool   `json:"shift"`
	Ctrl  bool   `json:"ctrl"`
	Meta  bool   `json:"meta"`
}

// Action describes the outcome of a key press.
type Action struct {
	Handled bool `json:"handled"`
	Moved   bool `json:"moved"`
	Save    bool `json:"save"`
}

// Position is the focused cell.
type Position struct {
	Row   int   `json:"row"`
	Field Field `json:"field"`
}

// Navigator is the keyboard focus state machine over an ordered roster.
type Navigator struct {
	mu    sync.Mutex
	rows  int
	row   int
	field Field
}

// NewNavigator starts focus on the first row's score.
func NewNavigator(rows int) *Navigator {
	n := &Navigator{field: FieldScore}
	n.Resize(rows)
	return n
}

// Position returns the current focus.
func (n *Navigator) Position() Position {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Position{Row: n.row, Field: n.field}
}

// Rows returns the roster length the navigator was sized for.
func (n *Navigator) Rows() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rows
}

// Resize adapts to a new roster length, clamping the focused row.
func (n *Navigator) Resize(rows int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if rows < 0 {
		rows = 0
	}
	n.rows = rows
	if n.row >= rows {
		n.row = rows - 1
	}
	if n.row < 0 {
		n.row = 0
	}
}

// Focus moves to an explicit cell, as on a pointer click. Out of range rows
// and unknown fields are ignored.
func (n *Navigator) Focus(row int, field Field) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if row < 0 || row >= n.rows || !field.Valid() {
		return false
	}
	n.row = row
	n.field = field
	return true
}

// HandleKey applies one key press.
func (n *Navigator) HandleKey(key Key) Action {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch {
	case strings.EqualFold(key.Name, "s") && (key.Ctrl || key.Meta):
		return Action{Handled: true, Save: true}
	case key.Name == "Tab" && key.Shift:
		return Action{Handled: true, Moved: n.retreat()}
	case key.Name == "Tab":
		if n.field == FieldScore && n.rows > 0 {
			n.field = FieldFeedback
			return Action{Handled: true, Moved: true}
		}
		return Action{Handled: true, Moved: n.advance()}
	case key.Name == "Enter":
		return Action{Handled: true, Moved: n.advance()}
	default:
		return Action{}
	}
}

func (n *Navigator) advance() bool {
	if n.row+1 >= n.rows {
		return false
	}
	n.row++
	n.field = FieldScore
	return true
}

func (n *Navigator) retreat() bool {
	if n.row == 0 {
		return false
	}
	n.row--
	n.field = FieldScore
	return true
}

// Cursor renders the position against a roster.
func (n *Navigator) Cursor(roster []models.Student) models.Cursor {
	pos := n.Position()
	cursor := models.Cursor{Row: pos.Row, Field: string(pos.Field)}
	if pos.Row < len(roster) {
		cursor.StudentID = roster[pos.Row].ID
	}
	return cursor
}
