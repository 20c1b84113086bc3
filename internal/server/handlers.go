package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/conductor/vaultprops/pkg/health"
	"github.com/conductor/vaultprops/pkg/log"
	"github.com/conductor/vaultprops/pkg/tracing"
)

// PropertiesResponse lists the names the source resolves. Values are
// never served.
type PropertiesResponse struct {
	Mode        string    `json:"mode"`
	Secrets     int       `json:"secrets"`
	LastRefresh time.Time `json:"last_refresh"`
	Names       []string  `json:"names"`
}

// RefreshResponse reports the outcome of a manual refresh.
type RefreshResponse struct {
	Status      string    `json:"status"`
	Secrets     int       `json:"secrets"`
	LastRefresh time.Time `json:"last_refresh"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// handleHealthz reports liveness. The process is alive as long as it can
// answer.
func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz probes the vault.
func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	result := s.ready.CheckDetailed(r.Context())

	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

func (s *HTTPServer) handleProperties(w http.ResponseWriter, r *http.Request) {
	names := s.source.GetPropertyNames()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, PropertiesResponse{
		Mode:        s.source.Mode().String(),
		Secrets:     s.source.Len(),
		LastRefresh: s.source.LastRefresh(),
		Names:       names,
	})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.source.Refresh(ctx); err != nil {
		log.FromContext(ctx).Warn().Err(err).Msg("manual refresh failed")
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   err.Error(),
			TraceID: tracing.TraceID(ctx),
		})
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{
		Status:      "refreshed",
		Secrets:     s.source.Len(),
		LastRefresh: s.source.LastRefresh(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
