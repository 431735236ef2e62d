package app

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"sitecms/api/internal/editor"
	"sitecms/api/internal/fields"
	"sitecms/api/internal/media"
	"sitecms/api/internal/order"
	"sitecms/api/internal/persist"
	"sitecms/api/internal/preview"
	"sitecms/api/internal/reorder"
	"sitecms/api/internal/search"
	"sitecms/api/internal/store"
)

const uploadMemory = 2 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	if strings.TrimSpace(corsOrigin) == "" {
		corsOrigin = "*"
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{s.corsOrigin}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
		handlers.ExposedHeaders([]string{"X-Request-ID"}),
		handlers.OptionStatusCode(http.StatusNoContent),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.New(os.Stderr, "", log.LstdFlags)),
		handlers.PrintRecoveryStack(true),
	)
	return s.withMiddleware(cors(recovery(s.router())))
}

func (s *HTTPServer) router() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Method not allowed", nil)
	})

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)

	api.HandleFunc("/collections/{type}", s.handleCollection).Methods(http.MethodGet)
	api.HandleFunc("/collections/{type}/reload", s.handleReload).Methods(http.MethodPost)
	api.HandleFunc("/collections/{type}/drag", s.handleDrag).Methods(http.MethodPost)
	api.HandleFunc("/collections/{type}/move", s.handleMove).Methods(http.MethodPost)
	api.HandleFunc("/collections/{type}/dismiss", s.handleDismiss).Methods(http.MethodPost)
	api.HandleFunc("/collections/{type}/items", s.handleAddItem).Methods(http.MethodPost)
	api.HandleFunc("/collections/{type}/items/{id}", s.handleDeleteItem).Methods(http.MethodDelete)

	api.HandleFunc("/sections/{id}", s.handleSection).Methods(http.MethodGet)
	api.HandleFunc("/sections/{id}/fields", s.handleSetField).Methods(http.MethodPut)
	api.HandleFunc("/sections/{id}/visible", s.handleVisible).Methods(http.MethodPost)
	api.HandleFunc("/sections/{id}/save", s.handleSave).Methods(http.MethodPost)
	api.HandleFunc("/sections/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/sections/{id}/keys", s.handleKey).Methods(http.MethodPost)
	api.HandleFunc("/sections/{id}/leave", s.handleLeave).Methods(http.MethodPost)
	api.HandleFunc("/sections/{id}/images", s.handleUploadImage).Methods(http.MethodPost)
	api.HandleFunc("/sections/{id}/preview", s.handlePreview).Methods(http.MethodGet)

	api.HandleFunc("/media/{folder}", s.handleListImages).Methods(http.MethodGet)
	api.HandleFunc("/preferences/device", s.handleGetDevice).Methods(http.MethodGet)
	api.HandleFunc("/preferences/device", s.handleSetDevice).Methods(http.MethodPut)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleCollection(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.Collection(r.Context(), mux.Vars(r)["type"])
	respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleReload(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.ReloadCollection(r.Context(), mux.Vars(r)["type"])
	respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleDismiss(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.DismissError(r.Context(), mux.Vars(r)["type"])
	respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleDrag(w http.ResponseWriter, r *http.Request) {
	var body DragInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
		return
	}
	payload, err := s.service.Drag(r.Context(), mux.Vars(r)["type"], body)
	respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleMove(w http.ResponseWriter, r *http.Request) {
	var body MoveInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
		return
	}
	payload, err := s.service.Move(r.Context(), mux.Vars(r)["type"], body)
	respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var body order.Item
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
		return
	}
	payload, err := s.service.AddItem(r.Context(), mux.Vars(r)["type"], body)
	respond(w, http.StatusCreated, payload, err)
}

func (s *HTTPServer) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	payload, err := s.service.DeleteItem(r.Context(), vars["type"], vars["id"])
	respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleSection(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.Section(r.Context(), mux.Vars(r)["id"])
	respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleSetField(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path  string `json:"path"`
		Value any    `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
		return
	}
	payload, err := s.service.SetField(r.Context(), mux.Vars(r)["id"], body.Path, body.Value)
	respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleVisible(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Visible *bool `json:"visible"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
		return
	}
	if body.Visible == nil {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "visible is required", nil)
		return
	}
	payload, err := s.service.SetVisible(r.Context(), mux.Vars(r)["id"], *body.Visible)
	respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleSave(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.SaveSection(r.Context(), mux.Vars(r)["id"])
	respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.CancelSection(r.Context(), mux.Vars(r)["id"])
	respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
		return
	}
	handled, state, err := s.service.HandleKey(r.Context(), mux.Vars(r)["id"], body.Key)
	respond(w, http.StatusOK, map[string]any{"handled": handled, "state": state}, err)
}

func (s *HTTPServer) handleLeave(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirm bool `json:"confirm"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
		return
	}
	left, err := s.service.Leave(r.Context(), mux.Vars(r)["id"], body.Confirm)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	if !left {
		writeError(w, http.StatusConflict, codeUnsavedChanges, "Section has unsaved changes", map[string]any{"left": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"left": true})
}

func (s *HTTPServer) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxImageBytes+uploadMemory)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, "invalid multipart body", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "file is required", nil)
		return
	}
	defer file.Close()

	path := strings.TrimSpace(r.FormValue("path"))
	if path == "" {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "path is required", nil)
		return
	}
	upload := media.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	img, state, err := s.service.UploadImage(r.Context(), mux.Vars(r)["id"], path, r.FormValue("folder"), upload)
	respond(w, http.StatusCreated, map[string]any{"image": img, "state": state}, err)
}

// handlePreview upgrades to a websocket that receives the section's preview
// stream until either side closes it.
func (s *HTTPServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.service.Section(r.Context(), id); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	conn, err := preview.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("preview: upgrade %s: %v", id, err)
		return
	}
	ch := preview.NewWebsocketChannel(conn)
	detach, err := s.service.AttachPreview(r.Context(), id, ch)
	if err != nil {
		log.Printf("preview: attach %s: %v", id, err)
		ch.Close()
		return
	}
	go func() {
		<-ch.Done()
		detach()
	}()
}

func (s *HTTPServer) handleListImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.service.ListImages(r.Context(), mux.Vars(r)["folder"])
	respond(w, http.StatusOK, map[string]any{"images": images}, err)
}

func (s *HTTPServer) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Device(r.Context()))
}

func (s *HTTPServer) handleSetDevice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Device string `json:"device"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
		return
	}
	payload, err := s.service.SetDevice(r.Context(), body.Device)
	respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "q is required", nil)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.service.Search(search.Query{Text: q, Limit: limit, Offset: offset}))
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setResponseHeaders(writer.Header())
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

// RequestID returns the id the middleware assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the preview websocket take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func setResponseHeaders(header http.Header) {
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, codeNotFound, "Not found", nil
	case errors.Is(err, reorder.ErrBusy):
		return http.StatusConflict, codeSaveInProgress, "A reorder is already being saved", nil
	case errors.Is(err, editor.ErrSaveInProgress):
		return http.StatusConflict, codeSaveInProgress, "A save is already in progress", nil
	case errors.Is(err, store.ErrOrderMismatch):
		return http.StatusConflict, codeOrderMismatch, "Ordering does not match the stored collection", nil
	case errors.Is(err, editor.ErrClosed):
		return http.StatusConflict, codeEditorClosed, "Editor is closed", nil
	case errors.Is(err, editor.ErrNoMediaLibrary):
		return http.StatusServiceUnavailable, codeMediaUnavailable, "Media library is not configured", nil
	case errors.Is(err, order.ErrIndexOutOfRange),
		errors.Is(err, order.ErrDuplicateID),
		errors.Is(err, order.ErrNotContiguous),
		errors.Is(err, order.ErrUnknownID),
		errors.Is(err, reorder.ErrInvalidGesture),
		errors.Is(err, persist.ErrInvalidCollection),
		errors.Is(err, fields.ErrInvalidPath),
		errors.Is(err, preview.ErrInvalidDevice),
		errors.Is(err, media.ErrInvalidImage):
		return http.StatusUnprocessableEntity, codeValidation, err.Error(), nil
	}
	return http.StatusInternalServerError, codeServerError, "Server error", nil
}
