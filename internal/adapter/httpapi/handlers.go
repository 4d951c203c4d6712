package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"planit/internal/domain"
	"planit/internal/usecase"
)

// multipartOverhead is the room left for form fields and boundaries on top
// of the upload cap.
const multipartOverhead = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

type historyResponse struct {
	Turns []domain.Turn `json:"turns"`
}

type extractResponse struct {
	Course     json.RawMessage `json:"course"`
	CourseUUID string          `json:"course_uuid,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ping != nil {
		if err := s.deps.Ping(r.Context()); err != nil {
			s.deps.Logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	text, files, err := s.readMessage(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reply, err := s.deps.Chat.SendMessage(r.Context(), domain.UserIDFromContext(r.Context()), text, files)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{Reply: reply})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.deps.Chat.History(r.Context(), domain.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Turns: turns})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Chat.ClearHistory(r.Context(), domain.UserIDFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExtractCourse(w http.ResponseWriter, r *http.Request) {
	if !s.deps.ExtractionEnabled {
		s.writeError(w, r, fmt.Errorf("course extraction: %w", domain.ErrDisabled))
		return
	}
	text, files, err := s.readMessage(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	save := false
	if v := r.FormValue("save"); v != "" {
		if save, err = strconv.ParseBool(v); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: save must be a boolean", domain.ErrInvalidInput))
			return
		}
	}

	out, err := s.deps.Chat.ImportCourse(r.Context(), domain.UserIDFromContext(r.Context()), usecase.ImportRequest{
		Files:   files,
		Message: text,
		Save:    save,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, extractResponse{Course: out.Course, CourseUUID: out.CourseID})
}

// readMessage accepts either a JSON body {"message": "..."} or a multipart
// form with a "message" field and any number of "files" parts.
func (s *Server) readMessage(w http.ResponseWriter, r *http.Request) (string, []domain.Blob, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.Server.MaxUploadBytes+multipartOverhead)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", nil, bodyError(err)
		}
		return body.Message, nil, nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", nil, bodyError(err)
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]domain.Blob, 0, len(headers))
	for _, fh := range headers {
		blob, err := readPart(fh)
		if err != nil {
			return "", nil, err
		}
		files = append(files, blob)
	}
	return r.FormValue("message"), files, nil
}

func readPart(fh *multipart.FileHeader) (domain.Blob, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.Blob{}, fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return domain.Blob{}, fmt.Errorf("read upload %q: %w", fh.Filename, err)
	}
	return domain.Blob{MIMEType: partMIMEType(fh), Data: data}, nil
}

// partMIMEType prefers the part's declared type and falls back to the file
// extension when the client sent none or a generic one.
func partMIMEType(fh *multipart.FileHeader) string {
	declared, _, _ := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt, _, _ := mime.ParseMediaType(mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename)))); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrPayloadTooLarge, tooLarge.Limit)
	}
	// multipart does not always wrap the reader's error.
	if strings.Contains(err.Error(), "request body too large") {
		return fmt.Errorf("%w: %v", domain.ErrPayloadTooLarge, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
}

// statusFor maps an error code to its HTTP status.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeAuthInvalid:
		return http.StatusUnauthorized
	case domain.CodePermissionDenied:
		return http.StatusForbidden
	case domain.CodeNotFound, domain.CodeDisabled:
		return http.StatusNotFound
	case domain.CodeDuplicate:
		return http.StatusConflict
	case domain.CodeContextTooLarge, domain.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.CodeUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	case domain.CodeMalformedResponse, domain.CodeSchemaValidation:
		return http.StatusUnprocessableEntity
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	case domain.CodeModelUnavailable:
		return http.StatusBadGateway
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCodeOf(err)
	status := statusFor(code)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = serverErrorMessage(code)
	}

	if status >= http.StatusInternalServerError {
		s.deps.Logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"code", code, "error", err)
	} else {
		s.deps.Logger.Debug("request rejected",
			"method", r.Method, "path", r.URL.Path,
			"code", code, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: string(code)})
}

// serverErrorMessage is the client-facing text for a 5xx code. Upstream
// and internal detail stays in the log.
func serverErrorMessage(code domain.ErrorCode) string {
	switch code {
	case domain.CodeModelUnavailable:
		return domain.ErrModelUnavailable.Error()
	case domain.CodeTimeout:
		return domain.ErrTimeout.Error()
	case domain.CodeToolLoopExceeded:
		return domain.ErrToolLoopExceeded.Error()
	default:
		return "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
