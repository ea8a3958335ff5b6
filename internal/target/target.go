// Package target implements a stand-in for the gateway's process endpoint,
// used for local end-to-end runs.
package target

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi"
	"github.com/sirupsen/logrus"

	"github.com/gatewaylab/gatewaybench/requester"
)

// Handler accepts process payloads and counts them.
type Handler struct {
	http.Handler
	log       *logrus.Entry
	processed atomic.Uint64
	rejected  atomic.Uint64
}

func NewHandler(log *logrus.Entry) *Handler {
	h := &Handler{log: log.WithField("subsystem", "target")}
	router := chi.NewRouter()
	router.Post(requester.ProcessPath, h.process)
	h.Handler = router
	return h
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	var payload requester.ProcessPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.rejected.Add(1)
		h.log.WithError(err).Debug("rejected payload")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}
	h.processed.Add(1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Processed is the number of payloads accepted.
func (h *Handler) Processed() uint64 {
	return h.processed.Load()
}

// Rejected is the number of malformed payloads.
func (h *Handler) Rejected() uint64 {
	return h.rejected.Load()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
