package tool

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
)

type createEvaluationParams struct {
	CourseUUID     string `json:"course_uuid"`
	Title          string `json:"title"`
	EvaluationType string `json:"evaluation_type"`
	StartDatetime  string `json:"start_datetime"`
	EndDatetime    string `json:"end_datetime"`
}

const createEvaluationSchema = `{
	"type": "object",
	"properties": {
		"course_uuid": {"type": "string", "description": "The UUID of the course to which this evaluation belongs."},
		"title": {"type": "string", "description": "The title of the evaluation."},
		"evaluation_type": {"type": "string", "enum": ["exam", "quiz", "assignment", "presentation", "lab"], "description": "The type of evaluation."},
		"start_datetime": {"type": "string", "description": "The UTC start date and time in ISO 8601 format (e.g., 'YYYY-MM-DDTHH:MM:SSZ')."},
		"end_datetime": {"type": "string", "description": "The UTC end date and time in ISO 8601 format (e.g., 'YYYY-MM-DDTHH:MM:SSZ')."}
	},
	"required": ["course_uuid", "title", "evaluation_type", "start_datetime", "end_datetime"],
	"additionalProperties": false
}`

func (s *StudyTools) createEvaluation() domain.Tool {
	return NewFunc("create_evaluation",
		"Creates a new evaluation (exam, quiz, assignment, presentation or lab) for a specific course.",
		createEvaluationSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p createEvaluationParams) (map[string]any, error) {
			typ, err := domain.ParseEvaluationType(p.EvaluationType)
			if err != nil {
				return nil, Invalid("Invalid evaluation type. Supported evaluation types: %v", domain.EvaluationTypes)
			}
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

			created, err := s.store.CreateEvaluation(ctx, owner, domain.Evaluation{
				CourseID: p.CourseUUID,
				Type:     typ,
				Title:    p.Title,
				Start:    start,
				End:      end,
			})
			if err != nil {
				return nil, NotFound(err, "Course not found.", "Error while creating the evaluation")
			}
			return Success("evaluation", created)
		})
}

type updateEvaluationParams struct {
	EvaluationUUID    string  `json:"evaluation_uuid"`
	NewTitle          *string `json:"new_title,omitempty"`
	NewEvaluationType *string `json:"new_evaluation_type,omitempty"`
	NewStartDatetime  *string `json:"new_start_datetime,omitempty"`
	NewEndDatetime    *string `json:"new_end_datetime,omitempty"`
	NewPresent        *bool   `json:"new_present,omitempty"`
}

const updateEvaluationSchema = `{
	"type": "object",
	"properties": {
		"evaluation_uuid": {"type": "string", "description": "The UUID of the evaluation to be updated."},
		"new_title": {"type": "string", "description": "The new title for the evaluation."},
		"new_evaluation_type": {"type": "string", "enum": ["exam", "quiz", "assignment", "presentation", "lab"], "description": "The new type for the evaluation."},
		"new_start_datetime": {"type": "string", "description": "The new UTC start date and time in ISO 8601 format."},
		"new_end_datetime": {"type": "string", "description": "The new UTC end date and time in ISO 8601 format."},
		"new_present": {"type": "boolean", "description": "Whether the user attended the evaluation."}
	},
	"required": ["evaluation_uuid"],
	"additionalProperties": false
}`

func (s *StudyTools) updateEvaluation() domain.Tool {
	return NewFunc("update_evaluation",
		"Updates the details of a specific evaluation. Only the provided fields are changed.",
		updateEvaluationSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p updateEvaluationParams) (map[string]any, error) {
			var upd domain.EvaluationUpdate
			if p.NewEvaluationType != nil {
				typ, err := domain.ParseEvaluationType(*p.NewEvaluationType)
				if err != nil {
					return nil, Invalid("Invalid evaluation type. Supported evaluation types: %v", domain.EvaluationTypes)
				}
				upd.Type = &typ
			}
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			if err := RequireField("evaluation_uuid", p.EvaluationUUID); err != nil {
				return nil, err
			}
			if upd.Start, err = ParseOptionalDateTime("new_start_datetime", p.NewStartDatetime); err != nil {
				return nil, err
			}
			if upd.End, err = ParseOptionalDateTime("new_end_datetime", p.NewEndDatetime); err != nil {
				return nil, err
			}
			upd.Title = p.NewTitle
			upd.Present = p.NewPresent

			updated, err := s.store.UpdateEvaluation(ctx, owner, p.EvaluationUUID, upd)
			if err != nil {
				return nil, NotFound(err, "Evaluation not found.", "Error while updating the evaluation")
			}
			return Success("evaluation", updated)
		})
}

type deleteEvaluationParams struct {
	EvaluationUUID string `json:"evaluation_uuid"`
}

const deleteEvaluationSchema = `{
	"type": "object",
	"properties": {
		"evaluation_uuid": {"type": "string", "description": "The UUID of the evaluation to delete."}
	},
	"required": ["evaluation_uuid"],
	"additionalProperties": false
}`

func (s *StudyTools) deleteEvaluation() domain.Tool {
	return NewFunc("delete_evaluation",
		"Deletes a specific evaluation. Ask the user for confirmation before calling this.",
		deleteEvaluationSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p deleteEvaluationParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			if err := RequireField("evaluation_uuid", p.EvaluationUUID); err != nil {
				return nil, err
			}
			removed, err := s.store.DeleteEvaluation(ctx, owner, p.EvaluationUUID)
			if err != nil {
				return nil, NotFound(err, "Evaluation not found.", "Error while deleting evaluation")
			}
			return map[string]any{
				"success": true,
				"message": fmt.Sprintf("Evaluation '%s' deleted.", removed.Title),
			}, nil
		})
}
