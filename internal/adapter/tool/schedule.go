package tool

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
	"planit/internal/infra/tracer"
)

const (
	defaultScheduleDays = 7
	maxScheduleDays     = 366
	dateLayout          = "2006-01-02"
)

type scheduleParams struct {
	StartDateStr *string `json:"start_date_str,omitempty"`
	Days         *int    `json:"days,omitempty"`
	Timezone     *string `json:"timezone,omitempty"`
}

const scheduleSchema = `{
	"type": "object",
	"properties": {
		"start_date_str": {"type": "string", "description": "The first day of the period in 'YYYY-MM-DD' format. Defaults to today."},
		"days": {"type": "integer", "minimum": 1, "maximum": 366, "description": "Number of days to include, starting from start_date_str. Defaults to 7."},
		"timezone": {"type": "string", "description": "The user's IANA timezone name (e.g. 'America/Sao_Paulo', 'Europe/Paris'). Defaults to 'America/Recife'."}
	},
	"additionalProperties": false
}`

// ScheduleItem is one lecture, evaluation or event on a given local day.
type ScheduleItem struct {
	ItemType    string  `json:"item_type"`
	CourseUUID  string  `json:"course_uuid,omitempty"`
	CourseTitle string  `json:"course_title,omitempty"`
	UUID        string  `json:"uuid"`
	Title       string  `json:"title"`
	Start       string  `json:"start_datetime"`
	End         string  `json:"end_datetime"`
	Summary     *string `json:"summary,omitempty"`
	Type        string  `json:"type,omitempty"`
	Description *string `json:"description,omitempty"`

	at time.Time
}

func (s *StudyTools) userSchedule() domain.Tool {
	return NewFunc("get_user_schedule",
		"Retrieves the user's schedule (lectures, evaluations and events) for a period, grouped by day, "+
			"with all times converted to the requested timezone.",
		scheduleSchema, s.logger,
		func(ctx context.Context, span trace.Span, p scheduleParams) (map[string]any, error) {
			tz := s.defaultTZ
			if p.Timezone != nil && *p.Timezone != "" {
				tz = *p.Timezone
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return nil, Invalid("Invalid timezone identifier: '%s'", tz)
			}
			days := defaultScheduleDays
			if p.Days != nil && *p.Days > 0 {
				days = *p.Days
			}
			if err := ValidateRange("days", days, 1, maxScheduleDays); err != nil {
				return nil, err
			}

			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}

			var startDay time.Time
			if p.StartDateStr != nil && *p.StartDateStr != "" {
				startDay, err = time.ParseInLocation(dateLayout, *p.StartDateStr, loc)
				if err != nil {
					return nil, Invalid("'start_date_str' must be a date in YYYY-MM-DD format, got %q", *p.StartDateStr)
				}
			} else {
				now := s.now().In(loc)
				startDay = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
			}
			endDay := startDay.AddDate(0, 0, days)
			from, to := startDay.UTC(), endDay.UTC()

			span.SetAttributes(
				tracer.StringAttr("schedule.timezone", tz),
				tracer.IntAttr("schedule.days", days),
			)

			lectures, err := s.store.ListLectures(ctx, owner, from, to)
			if err != nil {
				return nil, domain.WrapOp("Error while retrieving the user schedule", err)
			}
			evaluations, err := s.store.ListEvaluations(ctx, owner, from, to)
			if err != nil {
				return nil, domain.WrapOp("Error while retrieving the user schedule", err)
			}
			events, err := s.store.ListEvents(ctx, owner, from, to)
			if err != nil {
				return nil, domain.WrapOp("Error while retrieving the user schedule", err)
			}

			schedule := BuildSchedule(startDay, days, loc, lectures, evaluations, events)
			return Success("schedule", schedule)
		})
}

// BuildSchedule groups items by local date for every day in
// [startDay, startDay+days), each day sorted by start time. Days with no
// items map to an empty list.
func BuildSchedule(
	startDay time.Time,
	days int,
	loc *time.Location,
	lectures []domain.Lecture,
	evaluations []domain.Evaluation,
	events []domain.Event,
) map[string][]ScheduleItem {
	schedule := make(map[string][]ScheduleItem, days)
	for i := 0; i < days; i++ {
		schedule[startDay.AddDate(0, 0, i).Format(dateLayout)] = []ScheduleItem{}
	}

	add := func(item ScheduleItem) {
		key := item.at.Format(dateLayout)
		if items, ok := schedule[key]; ok {
			schedule[key] = append(items, item)
		}
	}

	for _, l := range lectures {
		start := l.Start.In(loc)
		item := ScheduleItem{
			ItemType:    "lecture",
			CourseUUID:  l.CourseID,
			CourseTitle: l.CourseTitle,
			UUID:        l.ID,
			Title:       l.Title,
			Start:       start.Format(time.RFC3339),
			End:         l.End.In(loc).Format(time.RFC3339),
			at:          start,
		}
		if l.Summary != "" {
			summary := l.Summary
			item.Summary = &summary
		}
		add(item)
	}
	for _, e := range evaluations {
		start := e.Start.In(loc)
		add(ScheduleItem{
			ItemType:    "evaluation",
			CourseUUID:  e.CourseID,
			CourseTitle: e.CourseTitle,
			UUID:        e.ID,
			Title:       e.Title,
			Start:       start.Format(time.RFC3339),
			End:         e.End.In(loc).Format(time.RFC3339),
			Type:        string(e.Type),
			at:          start,
		})
	}
	for _, ev := range events {
		start := ev.Start.In(loc)
		item := ScheduleItem{
			ItemType: "event",
			UUID:     ev.ID,
			Title:    ev.Title,
			Start:    start.Format(time.RFC3339),
			End:      ev.End.In(loc).Format(time.RFC3339),
			at:       start,
		}
		if ev.Description != "" {
			desc := ev.Description
			item.Description = &desc
		}
		add(item)
	}

	for _, items := range schedule {
		sort.SliceStable(items, func(i, j int) bool { return items[i].at.Before(items[j].at) })
	}
	return schedule
}
