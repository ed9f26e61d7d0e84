package entry

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/noah-isme/sma-entry-sync/internal/draft"
	"github.com/noah-isme/sma-entry-sync/internal/models"
)

// GradeController edits one course's grade drafts and owns its keyboard focus.
type GradeController struct {
	store     *draft.Store[models.GradeDraft]
	navigator *Navigator

	mu     sync.RWMutex
	roster []models.Student
}

// NewGradeController binds a controller to a loaded draft store.
func NewGradeController(store *draft.Store[models.GradeDraft], roster []models.Student) *GradeController {
	c := &GradeController{store: store, navigator: NewNavigator(0)}
	c.SetRoster(roster)
	return c
}

// Store exposes the underlying draft store.
func (c *GradeController) Store() *draft.Store[models.GradeDraft] {
	return c.store
}

// Navigator exposes the focus state machine.
func (c *GradeController) Navigator() *Navigator {
	return c.navigator
}

// SetRoster replaces the student list and resizes the navigator.
func (c *GradeController) SetRoster(roster []models.Student) {
	c.mu.Lock()
	c.roster = append([]models.Student(nil), roster...)
	c.mu.Unlock()
	c.navigator.Resize(len(roster))
}

// Roster returns the student list in roster order.
func (c *GradeController) Roster() []models.Student {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Student(nil), c.roster...)
}

// Cursor reports the focused cell.
func (c *GradeController) Cursor() models.Cursor {
	return c.navigator.Cursor(c.Roster())
}

// ParseScore interprets raw score input. Empty input means ungraded. ok is
// false for non-numeric, NaN or out of range values.
func ParseScore(raw string) (score *float64, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, true
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(value) || value < models.MinScore || value > models.MaxScore {
		return nil, false
	}
	return &value, true
}

// SetScore applies raw score input. Rejected input leaves the draft untouched
// and returns applied=false without an error.
func (c *GradeController) SetScore(ctx context.Context, studentID, raw string) (models.GradeDraft, bool, error) {
	if err := c.ensureEnrolled(studentID); err != nil {
		return models.GradeDraft{}, false, err
	}
	score, ok := ParseScore(raw)
	if !ok {
		current, exists := c.store.Get(studentID)
		if !exists {
			current = models.DefaultGradeDraft()
		}
		return current, false, nil
	}
	dirty := true
	patch := models.GradePatch{Score: score, ClearScore: score == nil, Dirty: &dirty}
	updated, err := c.store.Mutate(ctx, studentID, patch.Apply)
	return updated, true, err
}

// SetFeedback replaces feedback text and flags the draft dirty.
func (c *GradeController) SetFeedback(ctx context.Context, studentID, feedback string) (models.GradeDraft, error) {
	if err := c.ensureEnrolled(studentID); err != nil {
		return models.GradeDraft{}, err
	}
	dirty := true
	patch := models.GradePatch{Feedback: &feedback, Dirty: &dirty}
	return c.store.Mutate(ctx, studentID, patch.Apply)
}

// HandleKey forwards a key press to the navigator.
func (c *GradeController) HandleKey(key Key) Action {
	return c.navigator.HandleKey(key)
}

func (c *GradeController) ensureEnrolled(studentID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return checkEnrolled(c.roster, studentID)
}
