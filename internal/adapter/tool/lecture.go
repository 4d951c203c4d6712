package tool

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
)

type createLectureParams struct {
	CourseUUID    string  `json:"course_uuid"`
	Title         string  `json:"title"`
	StartDatetime string  `json:"start_datetime"`
	EndDatetime   string  `json:"end_datetime"`
	Summary       *string `json:"summary,omitempty"`
}

const createLectureSchema = `{
	"type": "object",
	"properties": {
		"course_uuid": {"type": "string", "description": "The UUID of the course to which this lecture belongs."},
		"title": {"type": "string", "description": "The title of the lecture."},
		"start_datetime": {"type": "string", "description": "The UTC start date and time in ISO 8601 format (e.g., 'YYYY-MM-DDTHH:MM:SSZ')."},
		"end_datetime": {"type": "string", "description": "The UTC end date and time in ISO 8601 format (e.g., 'YYYY-MM-DDTHH:MM:SSZ')."},
		"summary": {"type": "string", "description": "A brief summary of the lecture's content."}
	},
	"required": ["course_uuid", "title", "start_datetime", "end_datetime"],
	"additionalProperties": false
}`

func (s *StudyTools) createLecture() domain.Tool {
	return NewFunc("create_lecture",
		"Creates a new lecture for a specific course of the current user.",
		createLectureSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p createLectureParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			if err := RequireFields("course_uuid", p.CourseUUID, "title", p.Title); err != nil {
				return nil, err
			}
			start, err := ParseDateTime("start_datetime", p.StartDatetime)
			if err != nil {
				return nil, err
			}
			end, err := ParseDateTime("end_datetime", p.EndDatetime)
			if err != nil {
				return nil, err
			}
			if err := ValidateSpan(start, end); err != nil {
				return nil, err
			}

			l := domain.Lecture{CourseID: p.CourseUUID, Title: p.Title, Start: start, End: end}
			if p.Summary != nil {
				l.Summary = *p.Summary
			}
			created, err := s.store.CreateLecture(ctx, owner, l)
			if err != nil {
				return nil, NotFound(err, "Course not found.", "Error while creating the lecture")
			}
			return Success("lecture", created)
		})
}

type updateLectureParams struct {
	LectureUUID      string  `json:"lecture_uuid"`
	NewTitle         *string `json:"new_title,omitempty"`
	NewStartDatetime *string `json:"new_start_datetime,omitempty"`
	NewEndDatetime   *string `json:"new_end_datetime,omitempty"`
	NewSummary       *string `json:"new_summary,omitempty"`
	NewPresent       *bool   `json:"new_present,omitempty"`
}

const updateLectureSchema = `{
	"type": "object",
	"properties": {
		"lecture_uuid": {"type": "string", "description": "The UUID of the lecture to be updated."},
		"new_title": {"type": "string", "description": "The new title for the lecture."},
		"new_start_datetime": {"type": "string", "description": "The new UTC start date and time in ISO 8601 format."},
		"new_end_datetime": {"type": "string", "description": "The new UTC end date and time in ISO 8601 format."},
		"new_summary": {"type": "string", "description": "The new summary for the lecture."},
		"new_present": {"type": "boolean", "description": "Whether the user attended the lecture."}
	},
	"required": ["lecture_uuid"],
	"additionalProperties": false
}`

func (s *StudyTools) updateLecture() domain.Tool {
	return NewFunc("update_lecture",
		"Updates the details of a specific lecture. Only the provided fields are changed.",
		updateLectureSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p updateLectureParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			if err := RequireField("lecture_uuid", p.LectureUUID); err != nil {
				return nil, err
			}
			start, err := ParseOptionalDateTime("new_start_datetime", p.NewStartDatetime)
			if err != nil {
				return nil, err
			}
			end, err := ParseOptionalDateTime("new_end_datetime", p.NewEndDatetime)
			if err != nil {
				return nil, err
			}

			updated, err := s.store.UpdateLecture(ctx, owner, p.LectureUUID, domain.LectureUpdate{
				Title:   p.NewTitle,
				Start:   start,
				End:     end,
				Summary: p.NewSummary,
				Present: p.NewPresent,
			})
			if err != nil {
				return nil, NotFound(err, "Lecture not found.", "Error while updating the lecture")
			}
			return Success("lecture", updated)
		})
}

type deleteLectureParams struct {
	LectureUUID string `json:"lecture_uuid"`
}

const deleteLectureSchema = `{
	"type": "object",
	"properties": {
		"lecture_uuid": {"type": "string", "description": "The UUID of the lecture to delete."}
	},
	"required": ["lecture_uuid"],
	"additionalProperties": false
}`

func (s *StudyTools) deleteLecture() domain.Tool {
	return NewFunc("delete_lecture",
		"Deletes a specific lecture. Ask the user for confirmation before calling this.",
		deleteLectureSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p deleteLectureParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			if err := RequireField("lecture_uuid", p.LectureUUID); err != nil {
				return nil, err
			}
			removed, err := s.store.DeleteLecture(ctx, owner, p.LectureUUID)
			if err != nil {
				return nil, NotFound(err, "Lecture not found.", "Error while deleting lecture")
			}
			return map[string]any{
				"success": true,
				"message": fmt.Sprintf("Lecture '%s' deleted.", removed.Title),
			}, nil
		})
}
