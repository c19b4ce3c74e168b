package health

import (
	"encoding/json"
	"net/http"
	"time"

	"fiado_cache/internal/worker"
)

type StatusSource interface {
	Status() worker.Status
}

type statusBody struct {
	Serving      bool       `json:"serving"`
	CacheName    string     `json:"cache_name,omitempty"`
	Phase        string     `json:"phase"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
	Pending      string     `json:"pending,omitempty"`
	PendingPhase string     `json:"pending_phase,omitempty"`
}

// Handler serves the worker status as JSON: 200 while a generation is
// activated, 503 before that.
func Handler(source StatusSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := source.Status()
		body := statusBody{
			Serving:   status.Phase == worker.PhaseActivated,
			CacheName: status.CacheName,
			Phase:     status.Phase.String(),
		}
		if !status.ActivatedAt.IsZero() {
			activatedAt := status.ActivatedAt.UTC()
			body.ActivatedAt = &activatedAt
		}
		if status.Pending != "" {
			body.Pending = status.Pending
			body.PendingPhase = status.PendingPhase.String()
		}

		code := http.StatusOK
		if !body.Serving {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})
}
