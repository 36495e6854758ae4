package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-rbac/internal/observability"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/jobs"
)

// ReadyCheck probes one dependency for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterParams groups dependencies for building the ops router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Checks     []ReadyCheck
	JobHandler *jobs.Handler
	Verifier   *jobs.AuditVerifyJob
	Metrics    *observability.Metrics
}

// NewRouter constructs the chi.Router serving the ops endpoints.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		results := make(map[string]string, len(params.Checks))
		for _, check := range params.Checks {
			if err := check.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[check.Name] = "down"
				if params.Logger != nil {
					params.Logger.Warn("readiness check failed", slog.String("check", check.Name), slog.Any("error", err))
				}
				continue
			}
			results[check.Name] = "up"
		}
		httpx.JSON(w, status, results)
	})

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	if params.Verifier != nil {
		r.Post("/audit/verify", verifyHandler(params.Verifier))
	}

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}

type verifyResponse struct {
	Checked  int    `json:"checked"`
	LastID   int64  `json:"last_id"`
	LastHash string `json:"last_hash,omitempty"`
	BrokenAt int64  `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func verifyHandler(job *jobs.AuditVerifyJob) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := job.Run(r.Context(), "ops:"+r.RemoteAddr)
		resp := verifyResponse{Checked: report.Checked, LastID: report.LastID}
		if len(report.LastHash) > 0 {
			resp.LastHash = fmt.Sprintf("%x", report.LastHash)
		}
		switch {
		case report.Broken != nil:
			resp.BrokenAt = report.Broken.EntryID
			resp.Reason = report.Broken.Reason
			httpx.JSON(w, http.StatusConflict, resp)
		case err != nil:
			httpx.RespondError(w, err)
		default:
			httpx.JSON(w, http.StatusOK, resp)
		}
	}
}
