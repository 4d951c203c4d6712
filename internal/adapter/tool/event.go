package tool

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
)

type createEventParams struct {
	Title         string  `json:"title"`
	StartDatetime string  `json:"start_datetime"`
	EndDatetime   string  `json:"end_datetime"`
	Description   *string `json:"description,omitempty"`
}

const createEventSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "description": "The title of the event."},
		"start_datetime": {"type": "string", "description": "The UTC start date and time in ISO 8601 format (e.g., 'YYYY-MM-DDTHH:MM:SSZ')."},
		"end_datetime": {"type": "string", "description": "The UTC end date and time in ISO 8601 format (e.g., 'YYYY-MM-DDTHH:MM:SSZ')."},
		"description": {"type": "string", "description": "A description of the event's content."}
	},
	"required": ["title", "start_datetime", "end_datetime"],
	"additionalProperties": false
}`

func (s *StudyTools) createEvent() domain.Tool {
	return NewFunc("create_event",
		"Creates a new event for the current user. Events can be personal events, holidays and appointments, "+
			"but also instances of routines such as a specific study session.",
		createEventSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p createEventParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			if err := RequireField("title", p.Title); err != nil {
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

			ev := domain.Event{Title: p.Title, Start: start, End: end}
			if p.Description != nil {
				ev.Description = *p.Description
			}
			created, err := s.store.CreateEvent(ctx, owner, ev)
			if err != nil {
				return nil, domain.WrapOp("Error while creating the event", err)
			}
			return Success("event", created)
		})
}

type updateEventParams struct {
	EventUUID        string  `json:"event_uuid"`
	NewTitle         *string `json:"new_title,omitempty"`
	NewDescription   *string `json:"new_description,omitempty"`
	NewStartDatetime *string `json:"new_start_datetime,omitempty"`
	NewEndDatetime   *string `json:"new_end_datetime,omitempty"`
}

const updateEventSchema = `{
	"type": "object",
	"properties": {
		"event_uuid": {"type": "string", "description": "The UUID of the event to be updated."},
		"new_title": {"type": "string", "description": "The new title for the event."},
		"new_description": {"type": "string", "description": "The new description for the event."},
		"new_start_datetime": {"type": "string", "description": "The new UTC start date and time in ISO 8601 format."},
		"new_end_datetime": {"type": "string", "description": "The new UTC end date and time in ISO 8601 format."}
	},
	"required": ["event_uuid"],
	"additionalProperties": false
}`

func (s *StudyTools) updateEvent() domain.Tool {
	return NewFunc("update_event",
		"Updates the details of a specific event. Only the provided fields are changed.",
		updateEventSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p updateEventParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			if err := RequireField("event_uuid", p.EventUUID); err != nil {
				return nil, err
			}
			upd := domain.EventUpdate{Title: p.NewTitle, Description: p.NewDescription}
			if upd.Start, err = ParseOptionalDateTime("new_start_datetime", p.NewStartDatetime); err != nil {
				return nil, err
			}
			if upd.End, err = ParseOptionalDateTime("new_end_datetime", p.NewEndDatetime); err != nil {
				return nil, err
			}

			updated, err := s.store.UpdateEvent(ctx, owner, p.EventUUID, upd)
			if err != nil {
				return nil, NotFound(err, "Event not found.", "Error while updating the event")
			}
			return Success("event", updated)
		})
}

type deleteEventParams struct {
	EventUUID string `json:"event_uuid"`
}

const deleteEventSchema = `{
	"type": "object",
	"properties": {
		"event_uuid": {"type": "string", "description": "The UUID of the event to delete."}
	},
	"required": ["event_uuid"],
	"additionalProperties": false
}`

func (s *StudyTools) deleteEvent() domain.Tool {
	return NewFunc("delete_event",
		"Deletes a specific event. Ask the user for confirmation before calling this.",
		deleteEventSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p deleteEventParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			if err := RequireField("event_uuid", p.EventUUID); err != nil {
				return nil, err
			}
			removed, err := s.store.DeleteEvent(ctx, owner, p.EventUUID)
			if err != nil {
				return nil, NotFound(err, "Event not found.", "Error while deleting event")
			}
			return map[string]any{
				"success": true,
				"message": fmt.Sprintf("Event '%s' deleted.", removed.Title),
			}, nil
		})
}
