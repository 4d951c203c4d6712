package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planit/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "planit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestTurns_AppendReadClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	turns, err := s.ReadTurns(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, turns)
	assert.Empty(t, turns)

	first := []domain.Turn{
		domain.NewUserTurn("hello", []domain.Blob{{MIMEType: "image/png", Data: []byte{1, 2, 3}}}),
		domain.NewModelTextTurn("hi there"),
	}
	require.NoError(t, s.AppendTurns(ctx, "u1", first))
	require.NoError(t, s.AppendTurns(ctx, "u1", []domain.Turn{
		domain.NewUserTurn("again", nil),
		domain.NewModelTextTurn("sure"),
	}))
	require.NoError(t, s.AppendTurns(ctx, "u2", []domain.Turn{domain.NewUserTurn("other", nil)}))

	got, err := s.ReadTurns(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, domain.RoleUser, got[0].Role)
	assert.Equal(t, "hello", got[0].Text())
	require.NotNil(t, got[0].Parts[0].Blob)
	assert.Equal(t, []byte{1, 2, 3}, got[0].Parts[0].Blob.Data)
	assert.Equal(t, "hi there", got[1].Text())
	assert.Equal(t, "again", got[2].Text())
	assert.Equal(t, "sure", got[3].Text())
	assert.False(t, got[0].CreatedAt.IsZero())

	require.NoError(t, s.ClearTurns(ctx, "u1"))
	got, err = s.ReadTurns(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)

	other, err := s.ReadTurns(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestTurns_FunctionPartsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	call := domain.Turn{Role: domain.RoleModel, Parts: []domain.Part{{
		FunctionCall: &domain.FunctionCall{ID: "c1", Name: "list_courses", Args: map[string]any{"x": "y"}},
	}}}
	result := domain.Turn{Role: domain.RoleUser, Parts: []domain.Part{{
		FunctionResult: &domain.FunctionResult{ID: "c1", Name: "list_courses", Response: map[string]any{"courses": []any{}}},
	}}}
	require.NoError(t, s.AppendTurns(ctx, "u1", []domain.Turn{call, result}))

	got, err := s.ReadTurns(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, got[0].FunctionCalls(), 1)
	assert.Equal(t, "list_courses", got[0].FunctionCalls()[0].Name)
	require.NotNil(t, got[1].Parts[0].FunctionResult)
	assert.Equal(t, "c1", got[1].Parts[0].FunctionResult.ID)
}

func TestTurns_ConcurrentAppendsDoNotInterleave(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.AppendTurns(ctx, "u1", []domain.Turn{
				domain.NewUserTurn("q", nil),
				domain.NewModelTextTurn("a"),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.ReadTurns(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 16)
	for i, turn := range got {
		if i%2 == 0 {
			assert.Equal(t, domain.RoleUser, turn.Role, "turn %d", i)
		} else {
			assert.Equal(t, domain.RoleModel, turn.Role, "turn %d", i)
		}
	}
}

func TestUsers_EnsureGetUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureUser(ctx, domain.User{ID: "u1", Name: "Ana", Email: "ana@example.com"}))
	// A second ensure keeps the stored profile.
	require.NoError(t, s.EnsureUser(ctx, domain.User{ID: "u1", Name: "Other"}))

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Name)
	assert.Equal(t, "ana@example.com", u.Email)

	nick := "Aninha"
	u, err = s.UpdateUser(ctx, "u1", domain.UserUpdate{Nickname: &nick})
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Name)
	assert.Equal(t, "Aninha", u.Nickname)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, s.EnsureUser(ctx, domain.User{}), domain.ErrInvalidInput)
}

func TestCourses_LecturesAndEvaluations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateCourse(ctx, "u1", domain.Course{Title: "Calculus", Semester: "2025.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	l, err := s.CreateLecture(ctx, "u1", domain.Lecture{
		CourseID: c.ID, Title: "Limits",
		Start: at("2025-03-10T12:00:00Z"), End: at("2025-03-10T14:00:00Z"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Calculus", l.CourseTitle)

	e, err := s.CreateEvaluation(ctx, "u1", domain.Evaluation{
		CourseID: c.ID, Title: "Midterm", Type: domain.EvaluationExam,
		Start: at("2025-04-01T12:00:00Z"), End: at("2025-04-01T14:00:00Z"),
	})
	require.NoError(t, err)

	plain, err := s.ListCourses(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.Empty(t, plain[0].Lectures)

	detailed, err := s.ListCourses(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, detailed, 1)
	require.Len(t, detailed[0].Lectures, 1)
	require.Len(t, detailed[0].Evaluations, 1)
	assert.Equal(t, l.ID, detailed[0].Lectures[0].ID)
	assert.Equal(t, e.ID, detailed[0].Evaluations[0].ID)

	got, err := s.GetCourse(ctx, "u1", c.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lectures, 1)

	present := true
	newTitle := "Limits and continuity"
	updated, err := s.UpdateLecture(ctx, "u1", l.ID, domain.LectureUpdate{Title: &newTitle, Present: &present})
	require.NoError(t, err)
	assert.Equal(t, newTitle, updated.Title)
	assert.True(t, updated.Present)
	assert.True(t, updated.Start.Equal(l.Start))

	quiz := domain.EvaluationQuiz
	ev, err := s.UpdateEvaluation(ctx, "u1", e.ID, domain.EvaluationUpdate{Type: &quiz})
	require.NoError(t, err)
	assert.Equal(t, domain.EvaluationQuiz, ev.Type)

	removed, err := s.DeleteLecture(ctx, "u1", l.ID)
	require.NoError(t, err)
	assert.Equal(t, newTitle, removed.Title)
	_, err = s.DeleteLecture(ctx, "u1", l.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCourses_OwnershipIsEnforced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateCourse(ctx, "u1", domain.Course{Title: "Physics"})
	require.NoError(t, err)
	l, err := s.CreateLecture(ctx, "u1", domain.Lecture{
		CourseID: c.ID, Title: "Kinematics",
		Start: at("2025-03-10T12:00:00Z"), End: at("2025-03-10T13:00:00Z"),
	})
	require.NoError(t, err)

	_, err = s.GetCourse(ctx, "u2", c.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.CreateLecture(ctx, "u2", domain.Lecture{
		CourseID: c.ID, Title: "Intrusion",
		Start: at("2025-03-10T12:00:00Z"), End: at("2025-03-10T13:00:00Z"),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.DeleteLecture(ctx, "u2", l.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	courses, err := s.ListCourses(ctx, "u2", true)
	require.NoError(t, err)
	assert.NotNil(t, courses)
	assert.Empty(t, courses)
}

func TestCourses_RejectsInvalidInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateCourse(ctx, "u1", domain.Course{Title: "Chemistry"})
	require.NoError(t, err)

	_, err = s.CreateLecture(ctx, "u1", domain.Lecture{
		CourseID: c.ID, Title: "Backwards",
		Start: at("2025-03-10T14:00:00Z"), End: at("2025-03-10T12:00:00Z"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.CreateEvaluation(ctx, "u1", domain.Evaluation{
		CourseID: c.ID, Title: "Essay", Type: "essay",
		Start: at("2025-03-10T12:00:00Z"), End: at("2025-03-10T14:00:00Z"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRangeQueries_HalfOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateCourse(ctx, "u1", domain.Course{Title: "History"})
	require.NoError(t, err)
	for _, start := range []string{"2025-03-09T23:59:59Z", "2025-03-10T00:00:00Z", "2025-03-10T10:30:00.5Z", "2025-03-11T00:00:00Z"} {
		st := at(start)
		_, err := s.CreateLecture(ctx, "u1", domain.Lecture{CourseID: c.ID, Title: start, Start: st, End: st.Add(time.Hour)})
		require.NoError(t, err)
		_, err = s.CreateEvent(ctx, "u1", domain.Event{Title: start, Start: st, End: st.Add(time.Hour)})
		require.NoError(t, err)
	}

	from, to := at("2025-03-10T00:00:00Z"), at("2025-03-11T00:00:00Z")
	lectures, err := s.ListLectures(ctx, "u1", from, to)
	require.NoError(t, err)
	require.Len(t, lectures, 2)
	assert.Equal(t, "2025-03-10T00:00:00Z", lectures[0].Title)
	assert.Equal(t, "2025-03-10T10:30:00.5Z", lectures[1].Title)

	events, err := s.ListEvents(ctx, "u1", from, to)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	none, err := s.ListEvents(ctx, "u2", from, to)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEvents_UpdateDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev, err := s.CreateEvent(ctx, "u1", domain.Event{
		Title: "Dentist", Start: at("2025-03-12T15:00:00Z"), End: at("2025-03-12T16:00:00Z"),
	})
	require.NoError(t, err)

	desc := "Bring the card"
	updated, err := s.UpdateEvent(ctx, "u1", ev.ID, domain.EventUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)

	earlier := at("2025-03-12T14:00:00Z")
	_, err = s.UpdateEvent(ctx, "u1", ev.ID, domain.EventUpdate{End: &earlier})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.UpdateEvent(ctx, "u2", ev.ID, domain.EventUpdate{Description: &desc})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	removed, err := s.DeleteEvent(ctx, "u1", ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dentist", removed.Title)
}

func TestRoutines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	days := domain.Bit(time.Monday) | domain.Bit(time.Wednesday)
	r, err := s.CreateRoutine(ctx, "u1", domain.Routine{
		Title: "Study block", StartTime: "08:00", EndTime: "10:00", Days: days, Flexible: true,
	})
	require.NoError(t, err)

	list, err := s.ListRoutines(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, days, list[0].Days)
	assert.True(t, list[0].Flexible)

	_, err = s.CreateRoutine(ctx, "u1", domain.Routine{Title: "No days", StartTime: "08:00", EndTime: "09:00"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.DeleteRoutine(ctx, "u2", r.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	removed, err := s.DeleteRoutine(ctx, "u1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Study block", removed.Title)
}

func TestNewID_UniqueWithinOneInstant(t *testing.T) {
	now := at("2025-03-10T12:00:00Z")

	prev := newID(now)
	for range 100 {
		id := newID(now)
		assert.Greater(t, id, prev, "ids from one millisecond are ordered")
		prev = id
	}

	const workers, perWorker = 8, 200
	ids := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				ids <- newID(now)
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, workers*perWorker)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*perWorker)
}
