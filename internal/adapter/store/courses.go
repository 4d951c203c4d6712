package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"planit/internal/domain"
)

const (
	lectureColumns = `l.id, l.course_id, c.title, l.title, l.start_at, l.end_at, l.summary, l.present`
	lectureFrom    = ` FROM lectures l JOIN courses c ON c.id = l.course_id`

	evaluationColumns = `e.id, e.course_id, c.title, e.type, e.title, e.start_at, e.end_at, e.present`
	evaluationFrom    = ` FROM evaluations e JOIN courses c ON c.id = e.course_id`
)

func (s *SQLiteStore) CreateCourse(ctx context.Context, ownerID string, c domain.Course) (*domain.Course, error) {
	now := s.now()
	c.ID = newID(now)
	c.OwnerID = ownerID
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO courses (id, owner_id, title, semester, archived, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, ownerID, c.Title, c.Semester, boolInt(c.Archived), formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("insert course: %w", err)
	}
	return &c, nil
}

// GetCourse returns the course with its lectures and evaluations.
func (s *SQLiteStore) GetCourse(ctx context.Context, ownerID, id string) (*domain.Course, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, title, semester, archived FROM courses WHERE id = ? AND owner_id = ?", id, ownerID)
	c, err := scanCourse(row)
	if err != nil {
		return nil, err
	}
	c.Lectures, err = s.queryLectures(ctx, lectureFrom+" WHERE c.owner_id = ? AND l.course_id = ? ORDER BY l.start_at", ownerID, id)
	if err != nil {
		return nil, err
	}
	c.Evaluations, err = s.queryEvaluations(ctx, evaluationFrom+" WHERE c.owner_id = ? AND e.course_id = ? ORDER BY e.start_at", ownerID, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCourses returns ownerID's courses ordered by creation. With details,
// each course carries its lectures and evaluations.
func (s *SQLiteStore) ListCourses(ctx context.Context, ownerID string, withDetails bool) ([]domain.Course, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner_id, title, semester, archived FROM courses WHERE owner_id = ? ORDER BY created_at, id", ownerID)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	courses := []domain.Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		courses = append(courses, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !withDetails || len(courses) == 0 {
		return courses, nil
	}

	lectures, err := s.queryLectures(ctx, lectureFrom+" WHERE c.owner_id = ? ORDER BY l.start_at", ownerID)
	if err != nil {
		return nil, err
	}
	evaluations, err := s.queryEvaluations(ctx, evaluationFrom+" WHERE c.owner_id = ? ORDER BY e.start_at", ownerID)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(courses))
	for i, c := range courses {
		index[c.ID] = i
	}
	for _, l := range lectures {
		i := index[l.CourseID]
		courses[i].Lectures = append(courses[i].Lectures, l)
	}
	for _, e := range evaluations {
		i := index[e.CourseID]
		courses[i].Evaluations = append(courses[i].Evaluations, e)
	}
	return courses, nil
}

func scanCourse(row scanner) (*domain.Course, error) {
	var c domain.Course
	var archived int
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Semester, &archived); err != nil {
		return nil, notFound(err, "course")
	}
	c.Archived = archived != 0
	return &c, nil
}

// ownedCourseTitle returns the title of courseID if ownerID owns it.
func ownedCourseTitle(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, ownerID, courseID string) (string, error) {
	var title string
	err := q.QueryRowContext(ctx,
		"SELECT title FROM courses WHERE id = ? AND owner_id = ?", courseID, ownerID).Scan(&title)
	if err != nil {
		return "", notFound(err, "course")
	}
	return title, nil
}

// --- lectures ---

func (s *SQLiteStore) CreateLecture(ctx context.Context, ownerID string, l domain.Lecture) (*domain.Lecture, error) {
	if err := checkSpan(l.Start, l.End); err != nil {
		return nil, err
	}
	title, err := ownedCourseTitle(ctx, s.db, ownerID, l.CourseID)
	if err != nil {
		return nil, err
	}
	l.ID = newID(s.now())
	l.CourseTitle = title
	l.Start, l.End = l.Start.UTC(), l.End.UTC()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO lectures (id, course_id, title, start_at, end_at, summary, present) VALUES (?, ?, ?, ?, ?, ?, ?)",
		l.ID, l.CourseID, l.Title, formatTime(l.Start), formatTime(l.End), l.Summary, boolInt(l.Present),
	); err != nil {
		return nil, fmt.Errorf("insert lecture: %w", err)
	}
	return &l, nil
}

func (s *SQLiteStore) getLecture(ctx context.Context, ownerID, id string) (*domain.Lecture, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+lectureColumns+lectureFrom+" WHERE c.owner_id = ? AND l.id = ?", ownerID, id)
	l, err := scanLecture(row)
	if err != nil {
		return nil, notFound(err, "lecture")
	}
	return l, nil
}

// UpdateLecture applies the non-nil fields of upd.
func (s *SQLiteStore) UpdateLecture(ctx context.Context, ownerID, id string, upd domain.LectureUpdate) (*domain.Lecture, error) {
	l, err := s.getLecture(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		l.Title = *upd.Title
	}
	if upd.Start != nil {
		l.Start = upd.Start.UTC()
	}
	if upd.End != nil {
		l.End = upd.End.UTC()
	}
	if upd.Summary != nil {
		l.Summary = *upd.Summary
	}
	if upd.Present != nil {
		l.Present = *upd.Present
	}
	if err := checkSpan(l.Start, l.End); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE lectures SET title = ?, start_at = ?, end_at = ?, summary = ?, present = ? WHERE id = ?",
		l.Title, formatTime(l.Start), formatTime(l.End), l.Summary, boolInt(l.Present), id,
	); err != nil {
		return nil, fmt.Errorf("update lecture: %w", err)
	}
	return l, nil
}

func (s *SQLiteStore) DeleteLecture(ctx context.Context, ownerID, id string) (*domain.Lecture, error) {
	l, err := s.getLecture(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM lectures WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("delete lecture: %w", err)
	}
	return l, nil
}

// ListLectures returns lectures starting in [from, to), ordered by start.
func (s *SQLiteStore) ListLectures(ctx context.Context, ownerID string, from, to time.Time) ([]domain.Lecture, error) {
	return s.queryLectures(ctx,
		lectureFrom+" WHERE c.owner_id = ? AND l.start_at >= ? AND l.start_at < ? ORDER BY l.start_at",
		ownerID, formatTime(from), formatTime(to))
}

func (s *SQLiteStore) queryLectures(ctx context.Context, tail string, args ...any) ([]domain.Lecture, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+lectureColumns+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query lectures: %w", err)
	}
	defer rows.Close()
	out := []domain.Lecture{}
	for rows.Next() {
		l, err := scanLecture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func scanLecture(row scanner) (*domain.Lecture, error) {
	var l domain.Lecture
	var start, end string
	var present int
	if err := row.Scan(&l.ID, &l.CourseID, &l.CourseTitle, &l.Title, &start, &end, &l.Summary, &present); err != nil {
		return nil, err
	}
	l.Start, l.End = parseTime(start), parseTime(end)
	l.Present = present != 0
	return &l, nil
}

// --- evaluations ---

func (s *SQLiteStore) CreateEvaluation(ctx context.Context, ownerID string, e domain.Evaluation) (*domain.Evaluation, error) {
	if _, err := domain.ParseEvaluationType(string(e.Type)); err != nil {
		return nil, err
	}
	if err := checkSpan(e.Start, e.End); err != nil {
		return nil, err
	}
	title, err := ownedCourseTitle(ctx, s.db, ownerID, e.CourseID)
	if err != nil {
		return nil, err
	}
	e.ID = newID(s.now())
	e.CourseTitle = title
	e.Start, e.End = e.Start.UTC(), e.End.UTC()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO evaluations (id, course_id, type, title, start_at, end_at, present) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.CourseID, string(e.Type), e.Title, formatTime(e.Start), formatTime(e.End), boolInt(e.Present),
	); err != nil {
		return nil, fmt.Errorf("insert evaluation: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) getEvaluation(ctx context.Context, ownerID, id string) (*domain.Evaluation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+evaluationColumns+evaluationFrom+" WHERE c.owner_id = ? AND e.id = ?", ownerID, id)
	e, err := scanEvaluation(row)
	if err != nil {
		return nil, notFound(err, "evaluation")
	}
	return e, nil
}

// UpdateEvaluation applies the non-nil fields of upd.
func (s *SQLiteStore) UpdateEvaluation(ctx context.Context, ownerID, id string, upd domain.EvaluationUpdate) (*domain.Evaluation, error) {
	e, err := s.getEvaluation(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if upd.Type != nil {
		if _, err := domain.ParseEvaluationType(string(*upd.Type)); err != nil {
			return nil, err
		}
		e.Type = *upd.Type
	}
	if upd.Title != nil {
		e.Title = *upd.Title
	}
	if upd.Start != nil {
		e.Start = upd.Start.UTC()
	}
	if upd.End != nil {
		e.End = upd.End.UTC()
	}
	if upd.Present != nil {
		e.Present = *upd.Present
	}
	if err := checkSpan(e.Start, e.End); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE evaluations SET type = ?, title = ?, start_at = ?, end_at = ?, present = ? WHERE id = ?",
		string(e.Type), e.Title, formatTime(e.Start), formatTime(e.End), boolInt(e.Present), id,
	); err != nil {
		return nil, fmt.Errorf("update evaluation: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) DeleteEvaluation(ctx context.Context, ownerID, id string) (*domain.Evaluation, error) {
	e, err := s.getEvaluation(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM evaluations WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("delete evaluation: %w", err)
	}
	return e, nil
}

// ListEvaluations returns evaluations starting in [from, to), ordered by start.
func (s *SQLiteStore) ListEvaluations(ctx context.Context, ownerID string, from, to time.Time) ([]domain.Evaluation, error) {
	return s.queryEvaluations(ctx,
		evaluationFrom+" WHERE c.owner_id = ? AND e.start_at >= ? AND e.start_at < ? ORDER BY e.start_at",
		ownerID, formatTime(from), formatTime(to))
}

func (s *SQLiteStore) queryEvaluations(ctx context.Context, tail string, args ...any) ([]domain.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+evaluationColumns+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()
	out := []domain.Evaluation{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEvaluation(row scanner) (*domain.Evaluation, error) {
	var e domain.Evaluation
	var typ, start, end string
	var present int
	if err := row.Scan(&e.ID, &e.CourseID, &e.CourseTitle, &typ, &e.Title, &start, &end, &present); err != nil {
		return nil, err
	}
	e.Type = domain.EvaluationType(typ)
	e.Start, e.End = parseTime(start), parseTime(end)
	e.Present = present != 0
	return &e, nil
}
