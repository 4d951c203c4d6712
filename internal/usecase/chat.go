package usecase

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
	"planit/internal/infra/tracer"
)

// CourseSchema is the JSON schema course imports are extracted with.
//
//go:embed schemas/course.json
var CourseSchema []byte

// DefaultMaxUploadBytes is the configured upload cap. The cap a ChatService
// enforces is lowered to UploadLimitForCeiling of its context ceiling.
const DefaultMaxUploadBytes = 19922944

// uploadEnvelopeBytes is kept free of file data for the message text and
// the JSON framing of the user turn.
const uploadEnvelopeBytes = 64 << 10

// UploadLimitForCeiling is the largest raw upload whose user turn still fits
// a context ceiling. Blobs are base64 encoded, so n raw bytes weigh about
// 4n/3. With the default 20 MiB ceiling this is about 14.95 MiB.
func UploadLimitForCeiling(ceiling int) int64 {
	if ceiling <= uploadEnvelopeBytes {
		return 0
	}
	return int64(ceiling-uploadEnvelopeBytes) / 4 * 3
}

// DefaultAllowedMIMETypes lists the file types accepted as inline parts.
var DefaultAllowedMIMETypes = []string{
	"application/pdf",
	"application/x-javascript", "text/javascript",
	"application/x-python", "text/x-python",
	"text/plain", "text/html", "text/css", "text/md", "text/markdown",
	"text/csv", "text/xml", "text/rtf",
	"image/png", "image/jpeg", "image/webp", "image/heic", "image/heif",
}

// FilePolicy bounds what may be attached to a request.
type FilePolicy struct {
	AllowedMIMETypes []string
	MaxBytes         int64 // total across all files
}

// Check rejects unsupported types and oversized uploads.
func (p FilePolicy) Check(files []domain.Blob) error {
	var total int64
	for _, f := range files {
		if len(p.AllowedMIMETypes) > 0 && !slices.Contains(p.AllowedMIMETypes, f.MIMEType) {
			return fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, f.MIMEType)
		}
		total += int64(len(f.Data))
	}
	if p.MaxBytes > 0 && total > p.MaxBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrPayloadTooLarge, total, p.MaxBytes)
	}
	return nil
}

// ChatServiceDeps holds injected dependencies for the chat service.
type ChatServiceDeps struct {
	Turns        domain.ContextStore
	Courses      domain.CourseStore // optional, nil disables saving imports
	Orchestrator *Orchestrator
	Extractor    *Extractor // optional, nil disables course import
	Files        FilePolicy
	Locker       *ConversationLocker // optional, nil = no per-user serialisation
	// ImportInstruction is the system instruction for course extraction.
	ImportInstruction string
	// Location interprets extracted datetimes that carry no offset.
	Location *time.Location
	Logger   *slog.Logger
}

// ChatService is the caller-facing entry point: it reads the conversation,
// runs the orchestrator and persists the exchange.
type ChatService struct {
	deps ChatServiceDeps
}

// NewChatService creates a chat service.
func NewChatService(deps ChatServiceDeps) *ChatService {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Orchestrator != nil {
		limit := UploadLimitForCeiling(deps.Orchestrator.deps.Budgeter.Ceiling())
		if deps.Files.MaxBytes <= 0 || deps.Files.MaxBytes > limit {
			deps.Files.MaxBytes = limit
		}
	}
	return &ChatService{deps: deps}
}

// SendMessage answers one user message and appends the user turn and the
// final model turn to the user's history. On failure nothing is appended.
func (s *ChatService) SendMessage(ctx context.Context, userID, text string, files []domain.Blob) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "chat.send",
		trace.WithAttributes(
			tracer.StringAttr("user_id", userID),
			tracer.IntAttr("chat.files", len(files)),
		),
	)
	defer span.End()

	if text == "" && len(files) == 0 {
		err := fmt.Errorf("%w: message or files required", domain.ErrInvalidInput)
		tracer.RecordError(span, err)
		return "", err
	}
	if err := s.deps.Files.Check(files); err != nil {
		tracer.RecordError(span, err)
		return "", err
	}

	if s.deps.Locker != nil {
		unlock, err := s.deps.Locker.Lock(ctx, userID)
		if err != nil {
			tracer.RecordError(span, err)
			return "", err
		}
		defer unlock()
	}

	ctx = domain.ContextWithUserID(ctx, userID)
	history, err := s.deps.Turns.ReadTurns(ctx, userID)
	if err != nil {
		err = domain.WrapOp("read history", err)
		tracer.RecordError(span, err)
		return "", err
	}

	userTurn := domain.NewUserTurn(text, files)
	userTurn.CreatedAt = time.Now().UTC()
	ex, err := s.deps.Orchestrator.Run(ctx, history, userTurn)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}
	ex.Turns[1].CreatedAt = time.Now().UTC()

	if err := s.deps.Turns.AppendTurns(ctx, userID, ex.Turns); err != nil {
		err = domain.WrapOp("append history", err)
		tracer.RecordError(span, err)
		return "", err
	}
	tracer.SetOK(span)
	s.deps.Logger.Info("chat message answered", "user_id", userID, "history", len(history))
	return ex.Reply, nil
}

// History returns the persisted turns of the user's conversation.
func (s *ChatService) History(ctx context.Context, userID string) ([]domain.Turn, error) {
	turns, err := s.deps.Turns.ReadTurns(ctx, userID)
	if err != nil {
		return nil, domain.WrapOp("read history", err)
	}
	return turns, nil
}

// ClearHistory deletes the user's conversation.
func (s *ChatService) ClearHistory(ctx context.Context, userID string) error {
	if err := s.deps.Turns.ClearTurns(ctx, userID); err != nil {
		return domain.WrapOp("clear history", err)
	}
	s.deps.Logger.Info("chat history cleared", "user_id", userID)
	return nil
}

// ImportRequest asks for a course to be extracted from documents.
type ImportRequest struct {
	Files   []domain.Blob
	Message string
	Save    bool
}

// CourseImport is the extracted course and, when saved, its new identifier.
type CourseImport struct {
	Course   json.RawMessage
	CourseID string
}

// extractedCourse mirrors schemas/course.json.
type extractedCourse struct {
	Title    string `json:"title"`
	Semester string `json:"semester"`
	Lectures []struct {
		Title   string `json:"title"`
		Start   string `json:"start_datetime"`
		End     string `json:"end_datetime"`
		Summary string `json:"summary"`
	} `json:"lectures"`
	Evaluations []struct {
		Title string `json:"title"`
		Type  string `json:"type"`
		Start string `json:"start_datetime"`
		End   string `json:"end_datetime"`
	} `json:"evaluations"`
}

// ImportCourse extracts a course from the given files and optionally
// stores it with its lectures and evaluations.
func (s *ChatService) ImportCourse(ctx context.Context, userID string, req ImportRequest) (*CourseImport, error) {
	if s.deps.Extractor == nil {
		return nil, fmt.Errorf("course import: %w", domain.ErrDisabled)
	}
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("%w: at least one file is required", domain.ErrInvalidInput)
	}
	if err := s.deps.Files.Check(req.Files); err != nil {
		return nil, err
	}

	raw, err := s.deps.Extractor.Extract(ctx, ExtractRequest{
		Files:       req.Files,
		Schema:      CourseSchema,
		Instruction: s.deps.ImportInstruction,
		Message:     req.Message,
	})
	if err != nil {
		return nil, domain.WrapOp("extract course", err)
	}
	out := &CourseImport{Course: raw}
	if !req.Save {
		return out, nil
	}
	if s.deps.Courses == nil {
		return nil, fmt.Errorf("save course: %w", domain.ErrDisabled)
	}

	id, err := s.saveCourse(ctx, userID, raw)
	if err != nil {
		return nil, domain.WrapOp("save course", err)
	}
	out.CourseID = id
	s.deps.Logger.Info("course imported", "user_id", userID, "course_uuid", id)
	return out, nil
}

// saveCourse parses every datetime before writing anything, so a bad
// value leaves no partial course behind.
func (s *ChatService) saveCourse(ctx context.Context, userID string, raw json.RawMessage) (string, error) {
	var ec extractedCourse
	if err := json.Unmarshal(raw, &ec); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	lectures := make([]domain.Lecture, len(ec.Lectures))
	for i, l := range ec.Lectures {
		start, end, err := s.parseSpan(l.Start, l.End)
		if err != nil {
			return "", fmt.Errorf("lecture %q: %w", l.Title, err)
		}
		lectures[i] = domain.Lecture{Title: l.Title, Start: start, End: end, Summary: l.Summary}
	}
	evaluations := make([]domain.Evaluation, len(ec.Evaluations))
	for i, e := range ec.Evaluations {
		typ, err := domain.ParseEvaluationType(e.Type)
		if err != nil {
			return "", fmt.Errorf("evaluation %q: %w", e.Title, err)
		}
		start, end, err := s.parseSpan(e.Start, e.End)
		if err != nil {
			return "", fmt.Errorf("evaluation %q: %w", e.Title, err)
		}
		evaluations[i] = domain.Evaluation{Title: e.Title, Type: typ, Start: start, End: end}
	}

	course, err := s.deps.Courses.CreateCourse(ctx, userID, domain.Course{Title: ec.Title, Semester: ec.Semester})
	if err != nil {
		return "", err
	}
	for _, l := range lectures {
		l.CourseID = course.ID
		if _, err := s.deps.Courses.CreateLecture(ctx, userID, l); err != nil {
			return "", err
		}
	}
	for _, e := range evaluations {
		e.CourseID = course.ID
		if _, err := s.deps.Courses.CreateEvaluation(ctx, userID, e); err != nil {
			return "", err
		}
	}
	return course.ID, nil
}

// localLayouts are accepted when the model omits the offset.
var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"}

func (s *ChatService) parseSpan(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := s.parseTime(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := s.parseTime(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func (s *ChatService) parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, s.deps.Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid datetime %q", domain.ErrInvalidInput, v)
}
