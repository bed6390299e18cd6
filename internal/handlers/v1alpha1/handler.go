// Package v1alpha1 contains the HTTP handlers of the import API.
package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	api "github.com/tracklane/catalog-importer/api/v1alpha1"
	"github.com/tracklane/catalog-importer/internal/service"
	"github.com/tracklane/catalog-importer/pkg/requestid"
)

type ImportHandler struct {
	importSrv *service.ImportService
	validate  *validator.Validate
}

func NewImportHandler(importSrv *service.ImportService) *ImportHandler {
	return &ImportHandler{
		importSrv: importSrv,
		validate:  validator.New(),
	}
}

// renderError maps typed service errors onto HTTP statuses.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *service.ErrSessionNotFound:
		status = http.StatusNotFound
	case *service.ErrSessionAccessForbidden:
		status = http.StatusForbidden
	case *service.ErrSessionConflict, *service.ErrStaleCheckpoint, *service.ErrInvalidTransition:
		status = http.StatusConflict
	case *service.ErrInvalidMapping, *service.ErrInvalidSlice:
		status = http.StatusBadRequest
	}

	render.Status(r, status)
	render.JSON(w, r, api.Error{Message: err.Error(), RequestId: requestid.FromContextPtr(r.Context())})
}

func renderBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, api.Error{Message: message, RequestId: requestid.FromContextPtr(r.Context())})
}
