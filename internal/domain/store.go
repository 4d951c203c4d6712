package domain

import (
	"context"
	"time"
)

// ContextStore persists each user's conversation as an ordered, append-only
// turn list. AppendTurns must be atomic per owner.
type ContextStore interface {
	ReadTurns(ctx context.Context, ownerID string) ([]Turn, error)
	AppendTurns(ctx context.Context, ownerID string, turns []Turn) error
	ClearTurns(ctx context.Context, ownerID string) error
}

// UserStore manages user profiles.
type UserStore interface {
	EnsureUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (*User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error)
}

// CourseStore manages courses with their lectures and evaluations.
// Every method is scoped to ownerID; rows of other owners read as ErrNotFound.
type CourseStore interface {
	CreateCourse(ctx context.Context, ownerID string, c Course) (*Course, error)
	GetCourse(ctx context.Context, ownerID, id string) (*Course, error)
	ListCourses(ctx context.Context, ownerID string, withDetails bool) ([]Course, error)

	CreateLecture(ctx context.Context, ownerID string, l Lecture) (*Lecture, error)
	UpdateLecture(ctx context.Context, ownerID, id string, upd LectureUpdate) (*Lecture, error)
	DeleteLecture(ctx context.Context, ownerID, id string) (*Lecture, error)
	ListLectures(ctx context.Context, ownerID string, from, to time.Time) ([]Lecture, error)

	CreateEvaluation(ctx context.Context, ownerID string, e Evaluation) (*Evaluation, error)
	UpdateEvaluation(ctx context.Context, ownerID, id string, upd EvaluationUpdate) (*Evaluation, error)
	DeleteEvaluation(ctx context.Context, ownerID, id string) (*Evaluation, error)
	ListEvaluations(ctx context.Context, ownerID string, from, to time.Time) ([]Evaluation, error)
}

// EventStore manages one-off events.
type EventStore interface {
	CreateEvent(ctx context.Context, ownerID string, e Event) (*Event, error)
	UpdateEvent(ctx context.Context, ownerID, id string, upd EventUpdate) (*Event, error)
	DeleteEvent(ctx context.Context, ownerID, id string) (*Event, error)
	ListEvents(ctx context.Context, ownerID string, from, to time.Time) ([]Event, error)
}

// RoutineStore manages weekly routines.
type RoutineStore interface {
	CreateRoutine(ctx context.Context, ownerID string, r Routine) (*Routine, error)
	ListRoutines(ctx context.Context, ownerID string) ([]Routine, error)
	DeleteRoutine(ctx context.Context, ownerID, id string) (*Routine, error)
}

// StudyStore is the full entity persistence surface.
type StudyStore interface {
	UserStore
	CourseStore
	EventStore
	RoutineStore
}
