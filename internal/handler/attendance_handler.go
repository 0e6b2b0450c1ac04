package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aite-labs/aite-api/internal/models"
	"github.com/aite-labs/aite-api/internal/service"
	appErrors "github.com/aite-labs/aite-api/pkg/errors"
	"github.com/aite-labs/aite-api/pkg/response"
)

// AttendanceHandler exposes QR check-in and attendance log endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

type checkInRequest struct {
	Code string `json:"code" binding:"required"`
}

type undoSessionRequest struct {
	Subject string `json:"subject" binding:"required"`
}

// CheckIn godoc
// @Summary Check in a scanned code
// @Description Record one session for the matched subject and return the updated counter
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body checkInRequest true "Scanned QR payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /check-in [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.attendance.CheckIn(c.Request.Context(), req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UndoSession godoc
// @Summary Undo the most recent session
// @Description Roll back one session for a subject and reactivate the registration
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body undoSessionRequest true "Subject to roll back"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/undo-session [post]
func (h *AttendanceHandler) UndoSession(c *gin.Context) {
	var req undoSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.attendance.UndoSession(c.Request.Context(), c.Param("id"), req.Subject)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Logs godoc
// @Summary List attendance logs for a registration
// @Tags Attendance
// @Produce json
// @Param id path string true "Registration ID"
// @Param kind query string false "Filter by entry kind"
// @Param subject query string false "Filter by subject"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/attendance [get]
func (h *AttendanceHandler) Logs(c *gin.Context) {
	var filter models.AttendanceFilter
	if kind := c.Query("kind"); kind != "" {
		v := models.AttendanceKind(kind)
		filter.Kind = &v
	}
	filter.Subject = c.Query("subject")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	logs, pagination, err := h.attendance.Logs(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

// DeleteLog godoc
// @Summary Delete an attendance log entry
// @Description Remove a single log row without touching session counters
// @Tags Attendance
// @Produce json
// @Param id path string true "Log ID"
// @Success 204 {object} response.Envelope
// @Router /attendance/logs/{id} [delete]
func (h *AttendanceHandler) DeleteLog(c *gin.Context) {
	if err := h.attendance.DeleteLog(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
