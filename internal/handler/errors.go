// internal/handler/errors.go
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labware-service/internal/protocol"
	"labware-service/internal/repository"
	"labware-service/internal/service"
	"labware-service/internal/task"
	"labware-service/internal/utils"
	pkgdriver "labware-service/pkg/driver"
)

// statusFor maps service and device errors to HTTP status codes. The
// order matters: the command errors all wrap ErrDevice.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrDeviceNotFound),
		errors.Is(err, pkgdriver.ErrUnknownCommand),
		errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, pkgdriver.ErrDeviceCommand),
		errors.Is(err, pkgdriver.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDeviceExists),
		errors.Is(err, task.ErrAmbiguousTask):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrConnectionTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, protocol.ErrConnection),
		errors.Is(err, pkgdriver.ErrDevice):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status it maps to
func respondError(c *gin.Context, logger *utils.ServiceLogger, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(message, errorFields(c, err)...)
	} else {
		logger.Debug(message, errorFields(c, err)...)
	}
	utils.ErrorResponse(c, status, message, err)
}

func errorFields(c *gin.Context, err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	if name := c.Param("name"); name != "" {
		fields = append(fields, zap.String("device", name))
	}
	if id, ok := c.Get("request_id"); ok {
		fields = append(fields, zap.Any("request_id", id))
	}
	return fields
}
