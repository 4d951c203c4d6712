package domain

import (
	"fmt"
	"strings"
	"time"
)

// User is the owner of all study data and of one conversation.
type User struct {
	ID        string    `json:"uuid"`
	Name      string    `json:"name"`
	Nickname  string    `json:"nickname,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// UserUpdate holds optional profile changes. Nil fields are left as-is.
type UserUpdate struct {
	Name     *string
	Nickname *string
}

// Course groups lectures and evaluations.
type Course struct {
	ID          string       `json:"uuid"`
	OwnerID     string       `json:"-"`
	Title       string       `json:"title"`
	Semester    string       `json:"semester,omitempty"`
	Archived    bool         `json:"archived"`
	Lectures    []Lecture    `json:"lectures,omitempty"`
	Evaluations []Evaluation `json:"evaluations,omitempty"`
}

// Lecture is a scheduled class session of a course.
type Lecture struct {
	ID          string    `json:"uuid"`
	CourseID    string    `json:"course_uuid"`
	CourseTitle string    `json:"course_title,omitempty"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start_datetime"`
	End         time.Time `json:"end_datetime"`
	Summary     string    `json:"summary,omitempty"`
	Present     bool      `json:"present"`
}

// LectureUpdate holds optional lecture changes.
type LectureUpdate struct {
	Title   *string
	Start   *time.Time
	End     *time.Time
	Summary *string
	Present *bool
}

// EvaluationType is the kind of graded activity.
type EvaluationType string

const (
	EvaluationExam         EvaluationType = "exam"
	EvaluationQuiz         EvaluationType = "quiz"
	EvaluationAssignment   EvaluationType = "assignment"
	EvaluationPresentation EvaluationType = "presentation"
	EvaluationLab          EvaluationType = "lab"
)

// EvaluationTypes lists every valid evaluation type in display order.
var EvaluationTypes = []EvaluationType{
	EvaluationExam, EvaluationQuiz, EvaluationAssignment, EvaluationPresentation, EvaluationLab,
}

// ParseEvaluationType validates s against EvaluationTypes.
func ParseEvaluationType(s string) (EvaluationType, error) {
	for _, t := range EvaluationTypes {
		if string(t) == s {
			return t, nil
		}
	}
	names := make([]string, len(EvaluationTypes))
	for i, t := range EvaluationTypes {
		names[i] = string(t)
	}
	return "", fmt.Errorf("%w: invalid evaluation type %q, supported: %s",
		ErrInvalidInput, s, strings.Join(names, ", "))
}

// Evaluation is an exam, quiz or other graded activity of a course.
type Evaluation struct {
	ID          string         `json:"uuid"`
	CourseID    string         `json:"course_uuid"`
	CourseTitle string         `json:"course_title,omitempty"`
	Type        EvaluationType `json:"type"`
	Title       string         `json:"title"`
	Start       time.Time      `json:"start_datetime"`
	End         time.Time      `json:"end_datetime"`
	Present     bool           `json:"present"`
}

// EvaluationUpdate holds optional evaluation changes.
type EvaluationUpdate struct {
	Type    *EvaluationType
	Title   *string
	Start   *time.Time
	End     *time.Time
	Present *bool
}

// Event is a personal appointment or a routine instance.
type Event struct {
	ID          string    `json:"uuid"`
	OwnerID     string    `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start_datetime"`
	End         time.Time `json:"end_datetime"`
}

// EventUpdate holds optional event changes.
type EventUpdate struct {
	Title       *string
	Description *string
	Start       *time.Time
	End         *time.Time
}

// Weekdays is a bitmask of days: Sunday=1, Monday=2 ... Saturday=64.
type Weekdays int

// Bit returns the mask bit for d.
func Bit(d time.Weekday) Weekdays { return 1 << uint(d) }

// Has reports whether d is set.
func (w Weekdays) Has(d time.Weekday) bool { return w&Bit(d) != 0 }

// Names returns the lower-case names of the set days, Sunday first.
func (w Weekdays) Names() []string {
	var out []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Has(d) {
			out = append(out, strings.ToLower(d.String()))
		}
	}
	return out
}

// ParseWeekdays builds a mask from day names such as "monday" or "Tue".
func ParseWeekdays(names []string) (Weekdays, error) {
	var w Weekdays
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		found := false
		for d := time.Sunday; d <= time.Saturday; d++ {
			full := strings.ToLower(d.String())
			if n == full || (len(n) >= 3 && strings.HasPrefix(full, n)) {
				w |= Bit(d)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidInput, n)
		}
	}
	return w, nil
}

// Routine is a recurring weekly block such as a study session.
type Routine struct {
	ID          string   `json:"uuid"`
	OwnerID     string   `json:"-"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Flexible    bool     `json:"flexible"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	Days        Weekdays `json:"days_of_the_week"`
}
