package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planit/internal/adapter/store"
	"planit/internal/adapter/tool"
	"planit/internal/domain"
)

func newTestChat(model domain.ModelClient, turns domain.ContextStore, opts ...func(*ChatServiceDeps)) *ChatService {
	deps := ChatServiceDeps{
		Turns:        turns,
		Orchestrator: newTestOrchestrator(model, &fakeInvoker{decls: testDecls}),
		Extractor:    NewExtractor(model, 0, nopLogger()),
		Files:        FilePolicy{AllowedMIMETypes: DefaultAllowedMIMETypes, MaxBytes: DefaultMaxUploadBytes},
		Logger:       nopLogger(),
	}
	for _, o := range opts {
		o(&deps)
	}
	return NewChatService(deps)
}

func openStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "planit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.EnsureUser(context.Background(), domain.User{ID: "u1", Name: "Ana", Email: "ana@example.com"}))
	return st
}

func TestChatService_SendMessageAppendsExactlyTwoTurns(t *testing.T) {
	turns := newMemTurns()
	model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){answer("Hi Ana!")}}
	chat := newTestChat(model, turns)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		reply, err := chat.SendMessage(ctx, "u1", fmt.Sprintf("message %d", i), nil)
		require.NoError(t, err)
		assert.Equal(t, "Hi Ana!", reply)

		history, err := chat.History(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, history, 2*i)
		assert.Equal(t, domain.RoleUser, history[2*i-2].Role)
		assert.Equal(t, fmt.Sprintf("message %d", i), history[2*i-2].Text())
		assert.Equal(t, domain.RoleModel, history[2*i-1].Role)
		assert.Equal(t, "Hi Ana!", history[2*i-1].Text())
	}
	// The third call saw both earlier exchanges plus the new message.
	assert.Len(t, model.request(2).Contents, 5)
}

func TestChatService_HistoryIsIdempotent(t *testing.T) {
	turns := newMemTurns()
	model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){answer("ok")}}
	chat := newTestChat(model, turns)
	ctx := context.Background()

	empty, err := chat.History(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = chat.SendMessage(ctx, "u1", "hello", nil)
	require.NoError(t, err)

	first, err := chat.History(ctx, "u1")
	require.NoError(t, err)
	second, err := chat.History(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChatService_FailureAppendsNothing(t *testing.T) {
	tests := []struct {
		name string
		step func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error)
		want error
	}{
		{"model error", fail(errors.New("boom")), domain.ErrModelUnavailable},
		{"tool loop", callTools(domain.FunctionCall{ID: "1", Name: "list_courses"}), domain.ErrToolLoopExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := newMemTurns()
			model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){tt.step}}
			chat := newTestChat(model, turns)

			_, err := chat.SendMessage(context.Background(), "u1", "hello", nil)
			require.ErrorIs(t, err, tt.want)
			assert.Zero(t, turns.appends)
		})
	}
}

func TestChatService_AppendFailure(t *testing.T) {
	turns := newMemTurns()
	turns.appendErr = errors.New("disk full")
	model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){answer("ok")}}

	_, err := newTestChat(model, turns).SendMessage(context.Background(), "u1", "hello", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append history")
}

func TestChatService_RejectsBadInput(t *testing.T) {
	model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){answer("ok")}}
	chat := newTestChat(model, newMemTurns(), func(d *ChatServiceDeps) { d.Files.MaxBytes = 10 })
	ctx := context.Background()

	_, err := chat.SendMessage(ctx, "u1", "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = chat.SendMessage(ctx, "u1", "", []domain.Blob{{MIMEType: "application/zip", Data: []byte("PK")}})
	assert.ErrorIs(t, err, domain.ErrUnsupportedMedia)

	_, err = chat.SendMessage(ctx, "u1", "", []domain.Blob{{MIMEType: "text/plain", Data: make([]byte, 11)}})
	assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)

	assert.Zero(t, model.calls())
}

func TestUploadLimitForCeiling(t *testing.T) {
	assert.Equal(t, int64(15679488), UploadLimitForCeiling(DefaultContextCeiling))
	assert.Zero(t, UploadLimitForCeiling(1024))
	assert.Less(t, UploadLimitForCeiling(DefaultContextCeiling), int64(DefaultMaxUploadBytes))
}

func TestChatService_UploadCapFollowsContextCeiling(t *testing.T) {
	model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){answer("Read it.")}}
	chat := newTestChat(model, newMemTurns())
	ctx := context.Background()
	limit := UploadLimitForCeiling(DefaultContextCeiling)

	// Under the configured cap but too large once base64 encoded.
	_, err := chat.SendMessage(ctx, "u1", "summarise", []domain.Blob{{MIMEType: "application/pdf", Data: make([]byte, 16<<20)}})
	require.ErrorIs(t, err, domain.ErrPayloadTooLarge)
	assert.Zero(t, model.calls())

	reply, err := chat.SendMessage(ctx, "u1", "summarise", []domain.Blob{{MIMEType: "application/pdf", Data: make([]byte, limit)}})
	require.NoError(t, err)
	assert.Equal(t, "Read it.", reply)
	assert.Equal(t, 1, model.calls())
}

func TestChatService_FilesPrecedeText(t *testing.T) {
	model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){answer("Nice notes.")}}
	chat := newTestChat(model, newMemTurns())

	_, err := chat.SendMessage(context.Background(), "u1", "summarise", []domain.Blob{{MIMEType: "text/plain", Data: []byte("notes")}})
	require.NoError(t, err)

	parts := model.request(0).Contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].Blob)
	assert.Equal(t, []byte("notes"), parts[0].Blob.Data)
	assert.Equal(t, "summarise", parts[1].Text)
}

func TestChatService_ClearHistory(t *testing.T) {
	turns := newMemTurns()
	model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){answer("ok")}}
	chat := newTestChat(model, turns)
	ctx := context.Background()

	_, err := chat.SendMessage(ctx, "u1", "hello", nil)
	require.NoError(t, err)
	require.NoError(t, chat.ClearHistory(ctx, "u1"))

	history, err := chat.History(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestChatService_LockerSerialisesConversation(t *testing.T) {
	turns := newMemTurns()
	var mu sync.Mutex
	var seen []int
	model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){
		func(_ context.Context, req domain.GenerateRequest) (*domain.ModelResponse, error) {
			mu.Lock()
			seen = append(seen, len(req.Contents))
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			return &domain.ModelResponse{Text: "ok"}, nil
		},
	}}
	locker := NewConversationLocker()
	chat := newTestChat(model, turns, func(d *ChatServiceDeps) { d.Locker = locker })

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := chat.SendMessage(context.Background(), "u1", fmt.Sprintf("m%d", i), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Each exchange saw every earlier one.
	sort.Ints(seen)
	want := make([]int, n)
	for i := range want {
		want[i] = 2*i + 1
	}
	assert.Equal(t, want, seen)
	assert.Zero(t, locker.Active())

	history, err := chat.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, history, 2*n)
	for i, turn := range history {
		if i%2 == 0 {
			assert.Equal(t, domain.RoleUser, turn.Role)
		} else {
			assert.Equal(t, domain.RoleModel, turn.Role)
		}
	}
}

func TestChatService_ScheduleTomorrowEndToEnd(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

	course, err := st.CreateCourse(ctx, "u1", domain.Course{Title: "Calculus I", Semester: "2025.1"})
	require.NoError(t, err)
	_, err = st.CreateLecture(ctx, "u1", domain.Lecture{
		CourseID: course.ID,
		Title:    "Limits",
		Start:    time.Date(2025, 3, 11, 11, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 11, 13, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	study, err := tool.NewStudyTools(st, tool.StudyToolsConfig{Now: func() time.Time { return now }}, nopLogger())
	require.NoError(t, err)
	registry, err := tool.NewRegistry(nopLogger(), time.Second, study.Tools()...)
	require.NoError(t, err)

	var gotSchedule map[string]any
	model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){
		callTools(domain.FunctionCall{ID: "s1", Name: "get_user_schedule", Args: map[string]any{
			"start_date_str": "2025-03-11",
			"days":           float64(1),
		}}),
		func(_ context.Context, req domain.GenerateRequest) (*domain.ModelResponse, error) {
			results := lastResults(req)
			if len(results) != 1 {
				return nil, fmt.Errorf("want 1 result, got %d", len(results))
			}
			gotSchedule, _ = results[0].Response["schedule"].(map[string]any)
			return &domain.ModelResponse{Text: "Tomorrow you have Calculus I: Limits at 08:00."}, nil
		},
	}}

	chat := NewChatService(ChatServiceDeps{
		Turns: st,
		Orchestrator: NewOrchestrator(OrchestratorDeps{
			Model:  model,
			Tools:  registry,
			Logger: nopLogger(),
		}),
		Logger: nopLogger(),
	})

	reply, err := chat.SendMessage(ctx, "u1", "What do I have tomorrow?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Tomorrow you have Calculus I: Limits at 08:00.", reply)

	require.NotNil(t, gotSchedule, "schedule result reached the model")
	day, ok := gotSchedule["2025-03-11"].([]any)
	require.True(t, ok)
	require.Len(t, day, 1)
	item := day[0].(map[string]any)
	assert.Equal(t, "Limits", item["title"])
	assert.Equal(t, "Calculus I", item["course_title"])
	assert.Equal(t, "2025-03-11T08:00:00-03:00", item["start_datetime"])

	// Declarations of all tools were advertised.
	assert.Len(t, model.request(0).Tools, len(study.Tools()))

	history, err := st.ReadTurns(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "What do I have tomorrow?", history[0].Text())
	assert.Equal(t, reply, history[1].Text())
	assert.Empty(t, history[1].FunctionCalls())
}

const extractedCourseJSON = `{
	"title": "Physics II",
	"semester": "2025.1",
	"lectures": [
		{"title": "Electrostatics", "start_datetime": "2025-03-12T10:00:00-03:00", "end_datetime": "2025-03-12T12:00:00-03:00"}
	],
	"evaluations": [
		{"title": "P1", "type": "exam", "start_datetime": "2025-04-10T10:00:00", "end_datetime": "2025-04-10T12:00:00"}
	]
}`

func TestChatService_ImportCourse(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	recife, err := time.LoadLocation("America/Recife")
	require.NoError(t, err)

	model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){
		answer("```json\n" + extractedCourseJSON + "\n```"),
	}}
	chat := newTestChat(model, st, func(d *ChatServiceDeps) {
		d.Courses = st
		d.ImportInstruction = "Extract the course."
		d.Location = recife
	})
	files := []domain.Blob{{MIMEType: "application/pdf", Data: []byte("%PDF")}}

	preview, err := chat.ImportCourse(ctx, "u1", ImportRequest{Files: files})
	require.NoError(t, err)
	assert.JSONEq(t, extractedCourseJSON, string(preview.Course))
	assert.Empty(t, preview.CourseID)
	assert.Equal(t, "Extract the course.", model.request(0).SystemInstruction)
	assert.JSONEq(t, string(CourseSchema), string(model.request(0).ResponseSchema))

	courses, err := st.ListCourses(ctx, "u1", false)
	require.NoError(t, err)
	assert.Empty(t, courses, "preview does not persist")

	saved, err := chat.ImportCourse(ctx, "u1", ImportRequest{Files: files, Save: true})
	require.NoError(t, err)
	require.NotEmpty(t, saved.CourseID)

	course, err := st.GetCourse(ctx, "u1", saved.CourseID)
	require.NoError(t, err)
	assert.Equal(t, "Physics II", course.Title)
	assert.Equal(t, "2025.1", course.Semester)
	require.Len(t, course.Lectures, 1)
	assert.True(t, course.Lectures[0].Start.Equal(time.Date(2025, 3, 12, 13, 0, 0, 0, time.UTC)))
	require.Len(t, course.Evaluations, 1)
	assert.Equal(t, domain.EvaluationExam, course.Evaluations[0].Type)
	// No offset: read in the configured location.
	assert.True(t, course.Evaluations[0].Start.Equal(time.Date(2025, 4, 10, 13, 0, 0, 0, time.UTC)))
}

func TestChatService_ImportCourseBadDatetimeSavesNothing(t *testing.T) {
	st := openStore(t)
	bad := `{"title": "Chemistry", "lectures": [{"title": "Atoms", "start_datetime": "next tuesday", "end_datetime": "later"}], "evaluations": []}`
	model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){answer(bad)}}
	chat := newTestChat(model, st, func(d *ChatServiceDeps) { d.Courses = st })

	_, err := chat.ImportCourse(context.Background(), "u1", ImportRequest{
		Files: []domain.Blob{{MIMEType: "text/plain", Data: []byte("syllabus")}},
		Save:  true,
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	courses, err := st.ListCourses(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Empty(t, courses)
}

func TestChatService_ImportCourseErrors(t *testing.T) {
	model := &scriptedModel{steps: []func(context.Context, domain.GenerateRequest) (*domain.ModelResponse, error){answer(`{"title": 7}`)}}
	ctx := context.Background()
	files := []domain.Blob{{MIMEType: "application/pdf", Data: []byte("%PDF")}}

	disabled := newTestChat(model, newMemTurns(), func(d *ChatServiceDeps) { d.Extractor = nil })
	_, err := disabled.ImportCourse(ctx, "u1", ImportRequest{Files: files})
	assert.ErrorIs(t, err, domain.ErrDisabled)

	chat := newTestChat(model, newMemTurns())
	_, err = chat.ImportCourse(ctx, "u1", ImportRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = chat.ImportCourse(ctx, "u1", ImportRequest{Files: files})
	assert.ErrorIs(t, err, domain.ErrSchemaValidationFailed)
}
