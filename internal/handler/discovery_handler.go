// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labware-service/internal/service"
	"labware-service/internal/utils"
)

// DiscoveryHandler handles device discovery requests
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	logger           *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discoveryService *service.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		logger:           utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// ScanDevices runs every scanner, or the one named by type
// @Summary Scan for devices
// @Description List serial ports and USB devices instruments may be attached to
// @Tags Discovery
// @Produce json
// @Param type query string false "Scan type" Enums(all, serial, usb) default(all)
// @Success 200 {object} utils.APIResponse{data=object{devices_found=int,devices=[]discovery.DiscoveredDevice}} "Device scan completed"
// @Failure 400 {object} utils.APIResponse "Scanner not available"
// @Failure 500 {object} utils.APIResponse "Scan failed"
// @Router /discovery/scan [get]
func (h *DiscoveryHandler) ScanDevices(c *gin.Context) {
	h.scan(c, c.DefaultQuery("type", "all"))
}

// ScanSerial lists serial ports
// @Summary Scan serial ports
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{devices_found=int,devices=[]discovery.DiscoveredDevice}} "Device scan completed"
// @Failure 400 {object} utils.APIResponse "Scanner not available"
// @Router /discovery/serial [get]
func (h *DiscoveryHandler) ScanSerial(c *gin.Context) {
	h.scan(c, "serial")
}

// ScanUSB lists known USB devices
// @Summary Scan USB devices
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{devices_found=int,devices=[]discovery.DiscoveredDevice}} "Device scan completed"
// @Failure 400 {object} utils.APIResponse "Scanner not available"
// @Router /discovery/usb [get]
func (h *DiscoveryHandler) ScanUSB(c *gin.Context) {
	h.scan(c, "usb")
}

// ListScanners lists the available scanners
// @Summary List scanners
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]string} "Scanners retrieved successfully"
// @Router /discovery/scanners [get]
func (h *DiscoveryHandler) ListScanners(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Scanners retrieved successfully", h.discoveryService.Scanners())
}

func (h *DiscoveryHandler) scan(c *gin.Context, scanType string) {
	devices, err := h.discoveryService.Scan(c.Request.Context(), scanType)
	if err != nil {
		respondError(c, h.logger, "Failed to scan devices", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device scan completed", gin.H{
		"devices_found": len(devices),
		"devices":       devices,
	})
}
