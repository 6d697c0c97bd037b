// internal/handler/task_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"labware-service/internal/service"
	"labware-service/internal/utils"
)

// TaskHandler handles background task requests
type TaskHandler struct {
	taskService *service.TaskService
	logger      *utils.ServiceLogger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService *service.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		logger:      utils.NewServiceLogger(logger, "task-handler"),
	}
}

// ListTasks lists the tasks running on a device
// @Summary List tasks
// @Tags Tasks
// @Produce json
// @Param name path string true "Device name"
// @Success 200 {object} utils.APIResponse{data=[]task.Info} "Tasks retrieved successfully"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Router /devices/{name}/tasks [get]
func (h *TaskHandler) ListTasks(c *gin.Context) {
	tasks, err := h.taskService.List(c.Param("name"))
	if err != nil {
		respondError(c, h.logger, "Failed to list tasks", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Tasks retrieved successfully", tasks)
}

// StartTask starts polling a command
// @Summary Start task
// @Description Run a table command on a fixed interval; results are queued and broadcast
// @Tags Tasks
// @Accept json
// @Produce json
// @Param name path string true "Device name"
// @Param request body service.StartTaskRequest true "Task definition"
// @Success 201 {object} utils.APIResponse{data=task.Info} "Task started"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 404 {object} utils.APIResponse "Unknown device or command"
// @Router /devices/{name}/tasks [post]
func (h *TaskHandler) StartTask(c *gin.Context) {
	var req service.StartTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	info, err := h.taskService.Start(c.Request.Context(), c.Param("name"), req)
	if err != nil {
		respondError(c, h.logger, "Failed to start task", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Task started", info)
}

// StopTask stops a task
// @Summary Stop task
// @Tags Tasks
// @Produce json
// @Param name path string true "Device name"
// @Param id path string true "Task ID"
// @Success 200 {object} utils.APIResponse "Task stopped"
// @Failure 400 {object} utils.APIResponse "Invalid task ID"
// @Failure 404 {object} utils.APIResponse "Task not found"
// @Router /devices/{name}/tasks/{id} [delete]
func (h *TaskHandler) StopTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	if err := h.taskService.Stop(c.Param("name"), id); err != nil {
		respondError(c, h.logger, "Failed to stop task", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Task stopped", gin.H{"id": id})
}

// TaskResults drains the queued results of a task
// @Summary Task results
// @Description Return and remove every result queued since the last call
// @Tags Tasks
// @Produce json
// @Param name path string true "Device name"
// @Param id path string true "Task ID"
// @Success 200 {object} utils.APIResponse{data=[]model.TaskResult} "Results retrieved successfully"
// @Failure 400 {object} utils.APIResponse "Invalid task ID"
// @Failure 404 {object} utils.APIResponse "Task not found"
// @Router /devices/{name}/tasks/{id}/results [get]
func (h *TaskHandler) TaskResults(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	results, err := h.taskService.Results(c.Param("name"), id)
	if err != nil {
		respondError(c, h.logger, "Failed to get task results", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Results retrieved successfully", results)
}
