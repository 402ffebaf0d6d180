package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	errGetStatus       = "failed to load mount status"
	errGetAlignment    = "failed to load alignment model"
	errDeletePoint     = "failed to delete alignment point"
	errLoadModel       = "failed to load model"
	errImagingStatus   = "failed to query imaging backend"
	errInvalidIndex    = "index must be a non-negative integer"
	errInvalidBodyPref = "invalid body: "
)

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Mount status
// @Description  Latest telemetry snapshot. updated_at is zero until the first status frame arrived.
// @Tags         mount
// @Produce      json
// @Success      200  {object}  models.MountStatus
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/mount/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.services.Monitoring.GetStatus(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetStatus, "mount_get_status_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Alignment model
// @Description  Mirrored alignment stars, model names and whether the mirror matches the mount's star count.
// @Tags         mount
// @Produce      json
// @Success      200  {object}  models.AlignmentModel
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/mount/alignment [get]
// @Security     BearerAuth
func (h *Handler) getAlignment(c *gin.Context) {
	m, err := h.services.Monitoring.GetAlignment(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetAlignment, "mount_get_alignment_failed", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary      Delete alignment star
// @Description  Removes the star at the zero-based index from the mount's model and the mirror.
// @Tags         mount
// @Produce      json
// @Param        index  path      int  true  "Zero-based star index"
// @Success      200    {object}  models.AlignmentModel
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Failure      503    {object}  map[string]string
// @Router       /api/v1/mount/alignment/{index} [delete]
// @Security     BearerAuth
func (h *Handler) deleteAlignmentPoint(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidIndex})
		return
	}
	ctx := c.Request.Context()
	if err := h.services.Alignment.DeletePoint(ctx, idx); err != nil {
		h.respondServiceError(c, err, errDeletePoint, "alignment_delete_failed", "index", idx)
		return
	}
	m, err := h.services.Monitoring.GetAlignment(ctx)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": statusOK})
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary      Load stored model
// @Description  Makes a model stored on the mount (BASE, REFINE, BATCH or another listed name) the active one and re-reads the mirror.
// @Tags         mount
// @Produce      json
// @Param        name  path      string  true  "Model name as listed by the mount"
// @Success      200   {object}  models.AlignmentModel
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/mount/model/{name}/load [post]
// @Security     BearerAuth
func (h *Handler) loadModel(c *gin.Context) {
	name := c.Param("name")
	ctx := c.Request.Context()
	if err := h.services.Alignment.LoadModel(ctx, name); err != nil {
		h.respondServiceError(c, err, errLoadModel, "model_load_failed", "model", name)
		return
	}
	m, err := h.services.Monitoring.GetAlignment(ctx)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": statusOK})
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary      Imaging backend status
// @Tags         imaging
// @Produce      json
// @Success      200  {object}  imaging.DeviceStatus
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/imaging/status [get]
// @Security     BearerAuth
func (h *Handler) getImagingStatus(c *gin.Context) {
	st, err := h.services.Monitoring.ImagingStatus(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusBadGateway, errImagingStatus, "imaging_status_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}
