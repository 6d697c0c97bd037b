// internal/handler/device_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labware-service/internal/service"
	"labware-service/internal/utils"
)

// DeviceHandler handles device-related HTTP requests
type DeviceHandler struct {
	deviceService *service.DeviceService
	logger        *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
		logger:        utils.NewServiceLogger(logger, "device-handler"),
	}
}

// SimulationRequest toggles simulation mode
type SimulationRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// CommandRequest carries the optional command argument
type CommandRequest struct {
	Value interface{} `json:"value,omitempty"`
}

// ListDevices lists the configured devices
// @Summary List devices
// @Description Get every configured device with its connection status
// @Tags Devices
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.DeviceInfo} "Devices retrieved successfully"
// @Router /devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices := h.deviceService.ListDevices()
	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved successfully", devices)
}

// GetDevice returns one device
// @Summary Get device
// @Tags Devices
// @Produce json
// @Param name path string true "Device name"
// @Success 200 {object} utils.APIResponse{data=model.DeviceInfo} "Device retrieved successfully"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Router /devices/{name} [get]
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	info, err := h.deviceService.Info(c.Param("name"))
	if err != nil {
		respondError(c, h.logger, "Device not found", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device retrieved successfully", info)
}

// ConnectDevice opens the device connection
// @Summary Connect device
// @Description Open the connection, initialize the device and start its configured tasks
// @Tags Devices
// @Produce json
// @Param name path string true "Device name"
// @Success 200 {object} utils.APIResponse{data=model.DeviceInfo} "Device connected"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Failure 502 {object} utils.APIResponse "Device error"
// @Failure 504 {object} utils.APIResponse "Device timeout"
// @Router /devices/{name}/connect [post]
func (h *DeviceHandler) ConnectDevice(c *gin.Context) {
	name := c.Param("name")
	if err := h.deviceService.Connect(c.Request.Context(), name); err != nil {
		respondError(c, h.logger, "Failed to connect device", err)
		return
	}
	info, _ := h.deviceService.Info(name)
	utils.SuccessResponse(c, http.StatusOK, "Device connected", info)
}

// DisconnectDevice closes the device connection
// @Summary Disconnect device
// @Description Stop the device tasks and close its connection
// @Tags Devices
// @Produce json
// @Param name path string true "Device name"
// @Success 200 {object} utils.APIResponse{data=model.DeviceInfo} "Device disconnected"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Router /devices/{name}/disconnect [post]
func (h *DeviceHandler) DisconnectDevice(c *gin.Context) {
	name := c.Param("name")
	if err := h.deviceService.Disconnect(c.Request.Context(), name); err != nil {
		respondError(c, h.logger, "Failed to disconnect device", err)
		return
	}
	info, _ := h.deviceService.Info(name)
	utils.SuccessResponse(c, http.StatusOK, "Device disconnected", info)
}

// SetSimulation switches a device in or out of simulation
// @Summary Set simulation mode
// @Tags Devices
// @Accept json
// @Produce json
// @Param name path string true "Device name"
// @Param request body SimulationRequest true "Simulation state"
// @Success 200 {object} utils.APIResponse{data=model.DeviceInfo} "Simulation mode updated"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Router /devices/{name}/simulation [put]
func (h *DeviceHandler) SetSimulation(c *gin.Context) {
	var req SimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	info, err := h.deviceService.SetSimulation(c.Param("name"), *req.Enabled)
	if err != nil {
		respondError(c, h.logger, "Failed to set simulation mode", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Simulation mode updated", info)
}

// ListCommands lists the command table of a device
// @Summary List device commands
// @Tags Commands
// @Produce json
// @Param name path string true "Device name"
// @Success 200 {object} utils.APIResponse{data=[]service.CommandInfo} "Commands retrieved successfully"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Router /devices/{name}/commands [get]
func (h *DeviceHandler) ListCommands(c *gin.Context) {
	commands, err := h.deviceService.ListCommands(c.Param("name"))
	if err != nil {
		respondError(c, h.logger, "Failed to list commands", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Commands retrieved successfully", commands)
}

// ExecuteCommand sends a table command to a device
// @Summary Execute command
// @Description Validate the value, send the command and return the parsed reply
// @Tags Commands
// @Accept json
// @Produce json
// @Param name path string true "Device name"
// @Param command path string true "Command key"
// @Param request body CommandRequest false "Command argument"
// @Success 200 {object} utils.APIResponse{data=service.ExecuteResult} "Command executed"
// @Failure 400 {object} utils.APIResponse "Value rejected"
// @Failure 404 {object} utils.APIResponse "Unknown device or command"
// @Failure 502 {object} utils.APIResponse "Device error"
// @Failure 504 {object} utils.APIResponse "Device timeout"
// @Router /devices/{name}/commands/{command} [post]
func (h *DeviceHandler) ExecuteCommand(c *gin.Context) {
	var req CommandRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	result, err := h.deviceService.Execute(c.Request.Context(), c.Param("name"), c.Param("command"), req.Value)
	if err != nil {
		respondError(c, h.logger, "Command failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Command executed", result)
}
