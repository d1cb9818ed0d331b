package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Tempo/internal/telemetry"
)

// ListJobRuns возвращает историю runs job, новые первыми.
// GET /api/v1/jobs/{id}/runs?page=...&size=...
func (h *Handler) ListJobRuns(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}
	p, err := parsePagination(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	// 404 для несуществующего job, а не пустой список
	if _, err := h.jobs.GetByID(r.Context(), jobID); HandleError(w, h.logger, err, "job not found") {
		return
	}

	runs, total, err := h.runs.ListByJob(r.Context(), jobID, p.Size, p.Offset())
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i := range runs {
		result[i] = RunFromDomain(&runs[i])
	}

	Page(w, result, total, p)
}

// RunJobNow ставит job в очередь на немедленное выполнение.
// POST /api/v1/jobs/{id}/run
func (h *Handler) RunJobNow(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	run, err := h.runner.RunNow(r.Context(), jobID)
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	telemetry.FromContext(r.Context()).Info("job queued for immediate execution", "job_id", jobID, "run_id", run.ID)
	Accepted(w, RunNowResponse{JobID: jobID, RunID: run.ID})
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(run))
}
