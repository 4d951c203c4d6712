package tool

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
)

// routineView adds readable day names next to the bitmask.
type routineView struct {
	domain.Routine
	DayNames []string `json:"days"`
}

func viewRoutine(r domain.Routine) routineView {
	return routineView{Routine: r, DayNames: r.Days.Names()}
}

func (s *StudyTools) listRoutines() domain.Tool {
	return NewFunc("list_routines",
		"Lists the weekly routines of the current user (recurring blocks such as study sessions).",
		noParamsSchema, s.logger,
		func(ctx context.Context, _ trace.Span, _ noParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			routines, err := s.store.ListRoutines(ctx, owner)
			if err != nil {
				return nil, domain.WrapOp("Error while listing routines", err)
			}
			views := make([]routineView, len(routines))
			for i, r := range routines {
				views[i] = viewRoutine(r)
			}
			v, err := toAny(views)
			if err != nil {
				return nil, err
			}
			return map[string]any{"routines": v}, nil
		})
}

type createRoutineParams struct {
	Title       string   `json:"title"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	Days        []string `json:"days"`
	Flexible    *bool    `json:"flexible,omitempty"`
	Description *string  `json:"description,omitempty"`
}

const createRoutineSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "description": "The title of the routine."},
		"start_time": {"type": "string", "description": "Local start time in HH:MM format."},
		"end_time": {"type": "string", "description": "Local end time in HH:MM format."},
		"days": {"type": "array", "items": {"type": "string"}, "minItems": 1, "description": "Days of the week, e.g. ['monday', 'wednesday']."},
		"flexible": {"type": "boolean", "description": "Whether the routine may be moved within the day."},
		"description": {"type": "string", "description": "A description of the routine."}
	},
	"required": ["title", "start_time", "end_time", "days"],
	"additionalProperties": false
}`

func (s *StudyTools) createRoutine() domain.Tool {
	return NewFunc("create_routine",
		"Creates a weekly routine for the current user.",
		createRoutineSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p createRoutineParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			if err := ValidateAll(
				RequireField("title", p.Title),
				ValidateClock("start_time", p.StartTime),
				ValidateClock("end_time", p.EndTime),
			); err != nil {
				return nil, err
			}
			if len(p.Days) == 0 {
				return nil, Invalid("'days' must list at least one weekday")
			}
			days, err := domain.ParseWeekdays(p.Days)
			if err != nil {
				return nil, err
			}

			r := domain.Routine{
				Title:     p.Title,
				StartTime: p.StartTime,
				EndTime:   p.EndTime,
				Days:      days,
			}
			if p.Flexible != nil {
				r.Flexible = *p.Flexible
			}
			if p.Description != nil {
				r.Description = *p.Description
			}
			created, err := s.store.CreateRoutine(ctx, owner, r)
			if err != nil {
				return nil, domain.WrapOp("Error while creating the routine", err)
			}
			return Success("routine", viewRoutine(*created))
		})
}

type deleteRoutineParams struct {
	RoutineUUID string `json:"routine_uuid"`
}

const deleteRoutineSchema = `{
	"type": "object",
	"properties": {
		"routine_uuid": {"type": "string", "description": "The UUID of the routine to delete."}
	},
	"required": ["routine_uuid"],
	"additionalProperties": false
}`

func (s *StudyTools) deleteRoutine() domain.Tool {
	return NewFunc("delete_routine",
		"Deletes a weekly routine. Ask the user for confirmation before calling this.",
		deleteRoutineSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p deleteRoutineParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			if err := RequireField("routine_uuid", p.RoutineUUID); err != nil {
				return nil, err
			}
			removed, err := s.store.DeleteRoutine(ctx, owner, p.RoutineUUID)
			if err != nil {
				return nil, NotFound(err, "Routine not found.", "Error while deleting routine")
			}
			return map[string]any{
				"success": true,
				"message": fmt.Sprintf("Routine '%s' deleted.", removed.Title),
			}, nil
		})
}
