package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"mount_modeling/internal/models"
	"mount_modeling/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusStarted   = "started"
	statusCancelled = "cancelled"
	statusSaved     = "saved"

	errStartRun     = "failed to start model run"
	errCancelRun    = "failed to cancel model run"
	errListRuns     = "failed to load model runs"
	errGetRun       = "failed to load model run"
	errTargetPoints = "failed to load target points"
	errSavePoints   = "failed to save target points"

	defaultRunListLimit = 50
	maxRunListLimit     = 500
)

// StartRunRequest is the payload of POST /modeling/runs.
type StartRunRequest struct {
	// Kind of run. Allowed: Base, Refinement, Check, TimeChange, Hysteresis, Boost
	Kind string `json:"kind" binding:"required" example:"Base"`
	// Points to measure; when empty the points file is used.
	Points []models.TargetPoint `json:"points,omitempty"`
	// PointsFile overrides the configured points file.
	PointsFile string `json:"points_file,omitempty" example:"configs/points.toml"`
	// Repeats for TimeChange and Hysteresis.
	Repeats int `json:"repeats,omitempty" example:"10"`
}

// BatchRequest names a result file to replay into the mount. Relative
// paths resolve against the image directory; the file must stay inside it.
type BatchRequest struct {
	Path string `json:"path" binding:"required" example:"2026-03-01-22-15-00_base.dat"`
}

// @Summary      Start model run
// @Description  Runs in the background; poll /modeling/progress or watch /ws. Only one run at a time.
// @Tags         modeling
// @Accept       json
// @Produce      json
// @Param        body  body      StartRunRequest  true  "Run request"
// @Success      202   {object}  map[string]interface{}  "status, run"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/modeling/runs [post]
// @Security     BearerAuth
func (h *Handler) startRun(c *gin.Context) {
	var req StartRunRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	run, err := h.services.Modeling.Start(c.Request.Context(), service.RunRequest{
		Kind:       models.RunKind(strings.TrimSpace(req.Kind)),
		Points:     req.Points,
		PointsFile: req.PointsFile,
		Repeats:    req.Repeats,
	})
	if err != nil {
		h.respondServiceError(c, err, errStartRun, "model_run_start_failed", "kind", req.Kind)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusStarted, "run": run})
}

// @Summary      Replay result file
// @Description  Validates the file, backs up the current model as BATCH and programs every row into a new model.
// @Tags         modeling
// @Accept       json
// @Produce      json
// @Param        body  body      BatchRequest  true  "Result file"
// @Success      202   {object}  map[string]interface{}  "status, run"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/modeling/batch [post]
// @Security     BearerAuth
func (h *Handler) runBatch(c *gin.Context) {
	var req BatchRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	run, err := h.services.Modeling.RunBatch(c.Request.Context(), req.Path)
	if err != nil {
		h.respondServiceError(c, err, errStartRun, "model_batch_start_failed", "path", req.Path)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusStarted, "run": run})
}

// @Summary      Cancel model run
// @Description  Stops the active run after the current step and waits until it has closed.
// @Tags         modeling
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, progress"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/modeling/cancel [post]
// @Security     BearerAuth
func (h *Handler) cancelRun(c *gin.Context) {
	if err := h.services.Modeling.Cancel(c.Request.Context()); err != nil {
		h.respondServiceError(c, err, errCancelRun, "model_run_cancel_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusCancelled, "progress": h.services.Modeling.Progress()})
}

// @Summary      Run progress
// @Tags         modeling
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "progress, status"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/modeling/progress [get]
// @Security     BearerAuth
func (h *Handler) getProgress(c *gin.Context) {
	p := h.services.Modeling.Progress()
	c.JSON(http.StatusOK, gin.H{"progress": p, "status": p.Status()})
}

// @Summary      Model log
// @Description  Recent operator log lines, oldest first.
// @Tags         modeling
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, lines"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/modeling/log [get]
// @Security     BearerAuth
func (h *Handler) getModelLog(c *gin.Context) {
	lines := h.services.Modeling.ModelLog()
	c.JSON(http.StatusOK, gin.H{"count": len(lines), "lines": lines})
}

// @Summary      List model runs
// @Tags         modeling
// @Produce      json
// @Param        limit  query     int  false  "Maximum number of runs, newest first"  default(50)
// @Success      200    {object}  map[string]interface{}  "count, runs"
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /api/v1/modeling/runs [get]
// @Security     BearerAuth
func (h *Handler) listRuns(c *gin.Context) {
	limit := defaultRunListLimit
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 || v > maxRunListLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = v
	}
	runs, err := h.services.Modeling.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListRuns, "model_runs_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(runs), "runs": runs})
}

// @Summary      Get model run
// @Description  The active run is returned live; finished runs come from history.
// @Tags         modeling
// @Produce      json
// @Param        id   path      string  true  "Run ID"
// @Success      200  {object}  models.ModelRun
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/modeling/runs/{id} [get]
// @Security     BearerAuth
func (h *Handler) getRun(c *gin.Context) {
	id := c.Param("id")
	run, err := h.services.Modeling.GetRun(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err, errGetRun, "model_run_get_failed", "run_id", id)
		return
	}
	c.JSON(http.StatusOK, run)
}

// @Summary      Target points
// @Tags         modeling
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, points"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/modeling/points [get]
// @Security     BearerAuth
func (h *Handler) getTargetPoints(c *gin.Context) {
	points, err := h.services.Modeling.TargetPoints(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err, errTargetPoints, "target_points_load_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(points), "points": points})
}

// @Summary      Replace target points
// @Tags         modeling
// @Accept       json
// @Produce      json
// @Param        body  body      []models.TargetPoint  true  "Points"
// @Success      200   {object}  map[string]interface{}  "status, count"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/modeling/points [put]
// @Security     BearerAuth
func (h *Handler) putTargetPoints(c *gin.Context) {
	var points []models.TargetPoint
	if ok := h.bindJSONOrBadRequest(c, &points); !ok {
		return
	}
	for i, p := range points {
		if p.Altitude < 0 || p.Altitude > 90 || p.Azimuth < 0 || p.Azimuth >= 360 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "point " + strconv.Itoa(i+1) + " out of range"})
			return
		}
	}
	if err := h.services.Modeling.SaveTargetPoints(c.Request.Context(), points); err != nil {
		h.respondServiceError(c, err, errSavePoints, "target_points_save_failed", "count", len(points))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusSaved, "count": len(points)})
}
