package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"
)

// StatusProvider is implemented by the orchestrator: the handler queries
// it on every "status" command rather than holding its own copy of
// live state, so the control plane always reports what the render loop
// currently sees.
type StatusProvider interface {
	Status() StatusReport
}

// Reloader applies a settings reload without restarting the render loop,
// per §12's daemon control-plane supplement.
type Reloader interface {
	Reload() error
}

// StatusReport is the orchestrator's point-in-time snapshot returned by
// the "status" command.
type StatusReport struct {
	UptimeS    float64         `json:"uptime_s"`
	ActivePage string          `json:"active_page"`
	Handlers   []HandlerStatus `json:"handlers"`
}

// HandlerStatus is one sensor handler's diagnostics, per §4.1's
// update_rate_hz/frames_dropped/consecutive_failures surface.
type HandlerStatus struct {
	Name                string  `json:"name"`
	State               string  `json:"state"`
	UpdateRateHz        float32 `json:"update_rate_hz"`
	FramesDropped       uint64  `json:"frames_dropped"`
	ConsecutiveFailures uint64  `json:"consecutive_failures"`
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id"`
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes, JSON-RPC 2.0 standard.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// CommandHandler answers the small set of control-plane commands the CLI
// issues against a running instance: "status" and "reload" (§12).
type CommandHandler struct {
	status   StatusProvider
	reloader Reloader

	startTime time.Time
}

// NewCommandHandler creates a new command handler bound to the running
// orchestrator's status provider and settings reloader.
func NewCommandHandler(status StatusProvider, reloader Reloader) *CommandHandler {
	return &CommandHandler{status: status, reloader: reloader, startTime: time.Now()}
}

// Handle dispatches one command to its method and returns a Response
// with the same ID, per the JSON-RPC transport uds_server.go wraps this
// in.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	switch cmd.Method {
	case "status":
		return h.handleStatus(cmd)
	case "reload":
		return h.handleReload(cmd)
	case "ping":
		return Response{ID: cmd.ID, Result: "pong"}
	default:
		return Response{ID: cmd.ID, Error: &ErrorInfo{
			Code:    ErrCodeMethodNotFound,
			Message: fmt.Sprintf("unknown method %q", cmd.Method),
		}}
	}
}

func (h *CommandHandler) handleStatus(cmd Command) Response {
	if h.status == nil {
		return Response{ID: cmd.ID, Error: &ErrorInfo{Code: ErrCodeInternalError, Message: "status provider not configured"}}
	}
	return Response{ID: cmd.ID, Result: h.status.Status()}
}

func (h *CommandHandler) handleReload(cmd Command) Response {
	if h.reloader == nil {
		return Response{ID: cmd.ID, Error: &ErrorInfo{Code: ErrCodeInternalError, Message: "reloader not configured"}}
	}
	if err := h.reloader.Reload(); err != nil {
		return Response{ID: cmd.ID, Error: &ErrorInfo{Code: ErrCodeInternalError, Message: err.Error()}}
	}
	return Response{ID: cmd.ID, Result: "reloaded"}
}

// NewRequestID produces a correlation ID for a client-issued command,
// per the UDS command-channel correlation ID DOMAIN STACK entry.
func NewRequestID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil.String()
	}
	return id.String()
}
