// internal/handler/journal_handler.go
package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labware-service/internal/model"
	"labware-service/internal/repository"
	"labware-service/internal/service"
	"labware-service/internal/utils"
)

// JournalHandler serves the command journal
type JournalHandler struct {
	deviceService *service.DeviceService
	logger        *utils.ServiceLogger
}

// NewJournalHandler creates a new journal handler
func NewJournalHandler(deviceService *service.DeviceService, logger *zap.Logger) *JournalHandler {
	return &JournalHandler{
		deviceService: deviceService,
		logger:        utils.NewServiceLogger(logger, "journal-handler"),
	}
}

// ListJournal lists executed commands, newest first
// @Summary List command journal
// @Tags Journal
// @Produce json
// @Param device query string false "Filter by device"
// @Param command query string false "Filter by wire command"
// @Param status query string false "Filter by status" Enums(SUCCESS, REJECTED, FAILED, TIMEOUT, SIMULATED)
// @Param start_date query string false "Start date (RFC3339)"
// @Param end_date query string false "End date (RFC3339)"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} utils.APIResponse{data=[]model.CommandRecord} "Journal retrieved successfully"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Router /journal [get]
func (h *JournalHandler) ListJournal(c *gin.Context) {
	filter, errs := parseJournalFilter(c)
	if len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	records, total, err := h.deviceService.Journal(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "Failed to list journal", err)
		return
	}
	utils.PageResponse(c, "Journal retrieved successfully", records, utils.Page{
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func parseJournalFilter(c *gin.Context) (*repository.JournalFilter, map[string]string) {
	filter := &repository.JournalFilter{Limit: 50}
	errs := make(map[string]string)

	if device := c.Query("device"); device != "" {
		filter.Device = &device
	}
	if command := c.Query("command"); command != "" {
		filter.Command = &command
	}
	if status := c.Query("status"); status != "" {
		s := model.CommandStatus(status)
		filter.Status = &s
	}
	if start := c.Query("start_date"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			filter.StartDate = &t
		} else {
			errs["start_date"] = "must be RFC3339"
		}
	}
	if end := c.Query("end_date"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			filter.EndDate = &t
		} else {
			errs["end_date"] = "must be RFC3339"
		}
	}
	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 && l <= 1000 {
			filter.Limit = l
		} else {
			errs["limit"] = "must be between 1 and 1000"
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = o
		} else {
			errs["offset"] = "must be a non-negative integer"
		}
	}
	return filter, errs
}
