package v1alpha1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	api "github.com/tracklane/catalog-importer/api/v1alpha1"
	"github.com/tracklane/catalog-importer/internal/auth"
	"github.com/tracklane/catalog-importer/internal/handlers/v1alpha1/mappers"
	"github.com/tracklane/catalog-importer/internal/store/model"
	"github.com/tracklane/catalog-importer/pkg/csvsource"
)

const (
	defaultFailedRowsLimit = 50
	previewSampleRows      = 5
)

// (POST /api/v1/imports)
func (h *ImportHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	var req api.SessionCreateRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		parsed, err := h.sessionRequestFromMultipart(r)
		if err != nil {
			renderBadRequest(w, r, err.Error())
			return
		}
		req = *parsed
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderBadRequest(w, r, fmt.Sprintf("failed to decode request: %v", err))
			return
		}
	}

	if err := h.validate.Struct(req); err != nil {
		renderBadRequest(w, r, fmt.Sprintf("invalid request: %v", err))
		return
	}

	session, err := h.importSrv.CreateSession(r.Context(), user, mappers.SessionCreateFormFromApi(req))
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mappers.SessionToApi(session))
}

// sessionRequestFromMultipart builds a create request from an uploaded CSV
// plus a mapping part. The row count comes from the parsed file, so the
// caller cannot disagree with the source about how much work exists.
func (h *ImportHandler) sessionRequestFromMultipart(r *http.Request) (*api.SessionCreateRequest, error) {
	if err := r.ParseMultipartForm(csvsource.MaxFileSize); err != nil {
		return nil, fmt.Errorf("failed to parse multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("file is required: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %v", err)
	}

	doc, err := csvsource.Parse(data)
	if err != nil {
		return nil, err
	}

	var mapping []api.ColumnMapping
	rawMapping := r.FormValue("mapping")
	if rawMapping == "" {
		// No explicit mapping: freeze the advisory defaults.
		mapping = mappers.MappingToApi(h.importSrv.PreviewMapping(doc.Header(), nil))
	} else if err := json.Unmarshal([]byte(rawMapping), &mapping); err != nil {
		return nil, fmt.Errorf("failed to decode mapping: %v", err)
	}

	return &api.SessionCreateRequest{
		FileName:  header.Filename,
		FileSize:  header.Size,
		TotalRows: doc.RowCount(),
		Mapping:   mapping,
	}, nil
}

// (POST /api/v1/imports/preview)
func (h *ImportHandler) PreviewMapping(w http.ResponseWriter, r *http.Request) {
	var header []string
	var samples [][]string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(csvsource.MaxFileSize); err != nil {
			renderBadRequest(w, r, fmt.Sprintf("failed to parse multipart form: %v", err))
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			renderBadRequest(w, r, fmt.Sprintf("file is required: %v", err))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			renderBadRequest(w, r, fmt.Sprintf("failed to read file: %v", err))
			return
		}
		doc, err := csvsource.Parse(data)
		if err != nil {
			renderBadRequest(w, r, err.Error())
			return
		}
		header = doc.Header()
		samples, _ = doc.Slice(0, previewSampleRows)
	} else {
		var req api.PreviewMappingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderBadRequest(w, r, fmt.Sprintf("failed to decode request: %v", err))
			return
		}
		header = req.Header
		samples = req.SampleRows
	}

	mapping := h.importSrv.PreviewMapping(header, samples)
	render.JSON(w, r, mappers.MappingToApi(mapping))
}

// (POST /api/v1/imports/{id}/advance)
func (h *ImportHandler) AdvanceBatch(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req api.AdvanceBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderBadRequest(w, r, fmt.Sprintf("failed to decode request: %v", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		renderBadRequest(w, r, fmt.Sprintf("invalid request: %v", err))
		return
	}

	result, err := h.importSrv.AdvanceBatch(r.Context(), user, sessionID, mappers.SliceFromApi(req))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, mappers.BatchResultToApi(result))
}

// (POST /api/v1/imports/{id}/pause)
func (h *ImportHandler) PauseSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.importSrv.Pause)
}

// (POST /api/v1/imports/{id}/resume)
func (h *ImportHandler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.importSrv.Resume)
}

// (POST /api/v1/imports/{id}/cancel)
func (h *ImportHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.importSrv.Cancel)
}

// (GET /api/v1/imports/{id}/progress)
func (h *ImportHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.importSrv.GetProgress(r.Context(), user, sessionID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, mappers.ProgressToApi(snapshot))
}

// (GET /api/v1/imports/{id}/stats)
func (h *ImportHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	stats, err := h.importSrv.GetStats(r.Context(), user, sessionID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, mappers.StatsToApi(stats))
}

// (GET /api/v1/imports/{id}/failed-rows)
func (h *ImportHandler) ListFailedRows(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", defaultFailedRowsLimit)
	offset := queryInt(r, "offset", 0)

	rows, total, err := h.importSrv.ListFailedRows(r.Context(), user, sessionID, limit, offset)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, mappers.FailedRowsToApi(rows, total))
}

// (POST /api/v1/imports/{id}/retry)
func (h *ImportHandler) RetryFailedRows(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	// an empty body means retry everything
	var req api.RetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		renderBadRequest(w, r, fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	result, err := h.importSrv.RetryFailedRows(r.Context(), user, sessionID, req.RowNumbers)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, mappers.RetryResultToApi(result))
}

// (GET /api/v1/imports/active)
func (h *ImportHandler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	session, err := h.importSrv.GetActiveSessionForOwner(r.Context(), user)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if session == nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, api.Error{Message: "no active import session"})
		return
	}
	render.JSON(w, r, mappers.SessionToApi(session))
}

// (DELETE /api/v1/imports/{id})
func (h *ImportHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.importSrv.DeleteSession(r.Context(), user, sessionID); err != nil {
		renderError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (h *ImportHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, user auth.User, id uuid.UUID) (*model.ImportSession, error)) {
	user := auth.MustHaveUser(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	session, err := fn(r.Context(), user, sessionID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, mappers.SessionToApi(session))
}

func (h *ImportHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderBadRequest(w, r, fmt.Sprintf("invalid session id: %v", err))
		return uuid.UUID{}, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
