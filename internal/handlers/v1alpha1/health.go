package v1alpha1

import (
	"net/http"
)

// (GET /health)
func (h *ImportHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
