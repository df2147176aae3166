package monitor

import (
	"fmt"

	"github.com/yegors/co-rwsl/internal/rwsl"
	"github.com/yegors/co-rwsl/internal/websocket"
	"github.com/yegors/co-rwsl/pkg/logger"
)

// WebSocketHandler answers dashboard requests from the latest cycle
type WebSocketHandler struct {
	service *Service
	logger  *logger.Logger
}

// NewWebSocketHandler creates a new WebSocket message handler
func NewWebSocketHandler(service *Service, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		logger:  log.Named("rwsl-ws-handler"),
	}
}

// HandleMessage handles incoming WebSocket messages
func (h *WebSocketHandler) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	switch messageType {
	case websocket.MessageTypeStateRequest:
		h.sendState(client)
		return nil
	case websocket.MessageTypeFilterUpdate:
		return h.handleFilterUpdate(client, data)
	default:
		h.logger.Debug("Unhandled message type", logger.String("type", messageType))
		return nil
	}
}

// handleFilterUpdate replaces the client's filters and sends it a filtered state
func (h *WebSocketHandler) handleFilterUpdate(client *websocket.Client, data map[string]any) error {
	filters, err := ParseFilters(data)
	if err != nil {
		return err
	}
	client.UpdateFilters(filters)

	h.logger.Debug("Updated client filters",
		logger.Int("runways", len(filters.RunwayIDs)),
		logger.String("min_severity", string(filters.MinSeverity)))

	h.sendState(client)
	return nil
}

func (h *WebSocketHandler) sendState(client *websocket.Client) {
	out, ok := h.service.Latest()
	if !ok {
		return
	}
	if !client.SendMessage(websocket.StateMessage(out)) {
		h.logger.Warn("Client send channel full, dropping state")
	}
}

// ParseFilters reads a filter_update payload: "runways" is a list of runway ids and
// "min_severity" a severity name. Missing keys clear the filter.
func ParseFilters(data map[string]any) (*websocket.ClientFilters, error) {
	filters := &websocket.ClientFilters{RunwayIDs: make(map[string]bool)}

	if raw, ok := data["runways"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("runways must be a list, got %T", raw)
		}
		for _, v := range list {
			id, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("runway id must be a string, got %T", v)
			}
			filters.RunwayIDs[id] = true
		}
	}

	if raw, ok := data["min_severity"].(string); ok && raw != "" {
		sev, ok := rwsl.ParseSeverity(raw)
		if !ok {
			return nil, fmt.Errorf("unknown severity %q", raw)
		}
		filters.MinSeverity = sev
	}
	return filters, nil
}
