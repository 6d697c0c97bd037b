// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"labware-service/internal/model"
	"labware-service/internal/service"
	"labware-service/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	commandTimeout = 30 * time.Second
)

// WebSocketHandler streams device events to WebSocket clients and accepts
// device commands over the same connection
type WebSocketHandler struct {
	upgrader      websocket.Upgrader
	connections   *ConnectionManager
	deviceService *service.DeviceService
	eventBus      *EventBus
	logger        *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler. An empty origin
// list or "*" accepts any origin.
func NewWebSocketHandler(
	deviceService *service.DeviceService,
	eventBus *EventBus,
	allowedOrigins []string,
	logger *zap.Logger,
) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		},
	}

	return &WebSocketHandler{
		upgrader:      upgrader,
		connections:   NewConnectionManager(),
		deviceService: deviceService,
		eventBus:      eventBus,
		logger:        utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// Start forwards bus events to clients until ctx is done
func (h *WebSocketHandler) Start(ctx context.Context) {
	id, events := h.eventBus.Subscribe()
	defer h.eventBus.Unsubscribe(id)
	defer h.connections.CloseAll()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.BroadcastEvent(event)
		}
	}
}

// HandleEventConnection streams every event, or the events of the device
// named by the device query parameter
// @Summary Event stream
// @Description Upgrade to a WebSocket streaming device events
// @Tags Events
// @Param device query string false "Only events of this device"
// @Router /ws/events [get]
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	h.serve(c, c.Query("device"))
}

// HandleDeviceConnection streams the events of one device, starting with
// its current status
// @Summary Device event stream
// @Tags Events
// @Param name path string true "Device name"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Router /ws/devices/{name} [get]
func (h *WebSocketHandler) HandleDeviceConnection(c *gin.Context) {
	name := c.Param("name")
	if _, err := h.deviceService.Info(name); err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Device not found", err)
		return
	}
	client := h.serve(c, name)
	if client == nil {
		return
	}

	info, _ := h.deviceService.Info(name)
	h.sendMessage(client, &WebSocketMessage{
		Type:      "initial_status",
		Data:      info,
		Timestamp: time.Now(),
	})
}

func (h *WebSocketHandler) serve(c *gin.Context, device string) *Client {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return nil
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Device:      device,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("device", device),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
	return client
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
		h.logger.Info("WebSocket client disconnected", zap.String("client_id", client.ID))
	}()

	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			return
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "malformed message")
			continue
		}
		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	data, _ := message.Data.(map[string]interface{})

	switch message.Type {
	case "subscribe", "unsubscribe":
		eventType, _ := data["event_type"].(string)
		if eventType == "" {
			h.sendError(client, "event_type is required")
			return
		}
		if message.Type == "subscribe" {
			client.Subscribe(model.EventType(eventType))
		} else {
			client.Unsubscribe(model.EventType(eventType))
		}
		h.sendMessage(client, &WebSocketMessage{
			Type:      message.Type + "d",
			Data:      map[string]interface{}{"event_type": eventType},
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	case "device_command":
		h.handleDeviceCommand(client, message.RequestID, data)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
		h.sendError(client, "unknown message type: "+message.Type)
	}
}

// handleDeviceCommand executes a command and answers with command_response
func (h *WebSocketHandler) handleDeviceCommand(client *Client, requestID string, data map[string]interface{}) {
	device, _ := data["device"].(string)
	if device == "" {
		device = client.Device
	}
	command, _ := data["command"].(string)
	if device == "" || command == "" {
		h.sendError(client, "device and command are required")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		result, err := h.deviceService.Execute(ctx, device, command, data["value"])
		response := map[string]interface{}{
			"device":  device,
			"command": command,
			"success": err == nil,
		}
		if err != nil {
			status := statusFor(err)
			response["error"] = err.Error()
			response["status"] = status
			response["code"] = utils.ErrorCode(status)
		} else {
			response["result"] = result.Result
		}

		h.sendMessage(client, &WebSocketMessage{
			Type:      "command_response",
			Data:      response,
			Timestamp: time.Now(),
			RequestID: requestID,
		})
	}()
}

// BroadcastEvent sends an event to every client that wants it
func (h *WebSocketHandler) BroadcastEvent(event model.DeviceEvent) {
	clients := h.connections.Matching(event)
	if len(clients) == 0 {
		return
	}

	messageBytes, err := json.Marshal(&WebSocketMessage{
		Type:      "device_event",
		Data:      event,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}
	for _, client := range clients {
		h.enqueue(client, messageBytes)
	}
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}
	h.enqueue(client, messageBytes)
}

// enqueue never blocks; a full queue drops the message. Send may already
// be closed by Unregister, which the connection manager lock guards.
func (h *WebSocketHandler) enqueue(client *Client, message []byte) {
	h.connections.mutex.RLock()
	defer h.connections.mutex.RUnlock()
	if _, ok := h.connections.clients[client.ID]; !ok {
		return
	}

	select {
	case client.Send <- message:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
	})
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
