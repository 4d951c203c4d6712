package tool

import (
	"fmt"
	"log/slog"
	"time"

	"planit/internal/domain"
)

// DefaultTimezone is used by get_user_schedule when the model passes none.
const DefaultTimezone = "America/Recife"

// StudyToolsConfig tunes the study tools.
type StudyToolsConfig struct {
	DefaultTimezone string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// StudyTools builds the tools that read and write a user's study data.
// Every tool acts on behalf of the user carried in the call context.
type StudyTools struct {
	store     domain.StudyStore
	defaultTZ string
	now       func() time.Time
	logger    *slog.Logger
}

// NewStudyTools validates cfg and creates the tool set.
func NewStudyTools(store domain.StudyStore, cfg StudyToolsConfig, logger *slog.Logger) (*StudyTools, error) {
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("default timezone %q: %w", cfg.DefaultTimezone, err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &StudyTools{
		store:     store,
		defaultTZ: cfg.DefaultTimezone,
		now:       cfg.Now,
		logger:    logger,
	}, nil
}

// Tools returns every study tool.
func (s *StudyTools) Tools() []domain.Tool {
	return []domain.Tool{
		s.currentTime(),
		s.listCourses(),
		s.listCoursesAndDetails(),
		s.createCourse(),
		s.createLecture(),
		s.updateLecture(),
		s.deleteLecture(),
		s.createEvaluation(),
		s.updateEvaluation(),
		s.deleteEvaluation(),
		s.createEvent(),
		s.updateEvent(),
		s.deleteEvent(),
		s.listRoutines(),
		s.createRoutine(),
		s.deleteRoutine(),
		s.getUserProfile(),
		s.updateUserProfile(),
		s.userSchedule(),
	}
}
