package tool

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
	"planit/internal/infra/tracer"
)

func (s *StudyTools) listCourses() domain.Tool {
	return NewFunc("list_courses",
		"Lists a summary of all courses of the current user: uuid, title and, when known, semester.",
		noParamsSchema, s.logger,
		func(ctx context.Context, span trace.Span, _ noParams) (map[string]any, error) {
			return s.courses(ctx, span, false)
		})
}

func (s *StudyTools) listCoursesAndDetails() domain.Tool {
	return NewFunc("list_courses_and_details",
		"Lists all courses of the current user including every lecture and evaluation of each course.",
		noParamsSchema, s.logger,
		func(ctx context.Context, span trace.Span, _ noParams) (map[string]any, error) {
			return s.courses(ctx, span, true)
		})
}

func (s *StudyTools) courses(ctx context.Context, span trace.Span, details bool) (map[string]any, error) {
	owner, err := ownerID(ctx)
	if err != nil {
		return nil, err
	}
	courses, err := s.store.ListCourses(ctx, owner, details)
	if err != nil {
		return nil, domain.WrapOp("An error occurred while listing courses", err)
	}
	if courses == nil {
		courses = []domain.Course{}
	}
	span.SetAttributes(tracer.IntAttr("courses", len(courses)))
	v, err := toAny(courses)
	if err != nil {
		return nil, err
	}
	return map[string]any{"courses": v}, nil
}

type createCourseParams struct {
	Title    string `json:"title"`
	Semester string `json:"semester,omitempty"`
}

const createCourseSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "description": "The title of the course."},
		"semester": {"type": "string", "description": "The semester the course belongs to, e.g. '2025.1'."}
	},
	"required": ["title"],
	"additionalProperties": false
}`

func (s *StudyTools) createCourse() domain.Tool {
	return NewFunc("create_course",
		"Creates a new course for the current user.",
		createCourseSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p createCourseParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			if err := RequireField("title", p.Title); err != nil {
				return nil, err
			}
			c, err := s.store.CreateCourse(ctx, owner, domain.Course{Title: p.Title, Semester: p.Semester})
			if err != nil {
				return nil, domain.WrapOp("Error while creating the course", err)
			}
			return Success("course", c)
		})
}
