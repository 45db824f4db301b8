package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loykin/procstream/internal/event"
	"github.com/loykin/procstream/internal/executor"
	"github.com/loykin/procstream/internal/process"
)

// Router provides embeddable HTTP handlers driving one Executor.
// Endpoints:
//
//	POST {basePath}/operations    body: {operation_id?, args, work_dir?}
//	POST {basePath}/cancel
//	GET  {basePath}/status
//	GET  {basePath}/last-command
//	GET  {basePath}/events        query: operation_id (optional), SSE
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	exec     *executor.Executor
	bus      *event.Bus
	tool     Tool
	basePath string
	// keepAlive is the SSE comment interval for idle streams.
	keepAlive time.Duration
}

// Tool is the fixed binary operations run. Clients only choose arguments.
type Tool struct {
	Binary  string
	WorkDir string
	Env     []string
}

// NewRouter constructs a Router. bus must be the sink (or part of the sink)
// exec publishes to, otherwise /events stays silent.
func NewRouter(exec *executor.Executor, bus *event.Bus, tool Tool, basePath string) *Router {
	return &Router{exec: exec, bus: bus, tool: tool, basePath: sanitizeBase(basePath), keepAlive: 15 * time.Second}
}

// BasePath returns the sanitized prefix routes are mounted under.
func (r *Router) BasePath() string { return r.basePath }

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	r.Register(g.Group(r.basePath))
	return g
}

// Register adds the routes to an existing gin route group.
func (r *Router) Register(group gin.IRoutes) {
	group.POST("/operations", r.handleStart)
	group.POST("/cancel", r.handleCancel)
	group.GET("/status", r.handleStatus)
	group.GET("/last-command", r.handleLastCommand)
	group.GET("/events", r.handleEvents)
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// StartRequest is the body of POST /operations.
type StartRequest struct {
	OperationID string   `json:"operation_id,omitempty"`
	Args        []string `json:"args"`
	WorkDir     string   `json:"work_dir,omitempty"`
}

type StartResponse struct {
	OperationID string `json:"operation_id"`
	PID         int    `json:"pid"`
}

type StatusResponse struct {
	Busy        bool      `json:"busy"`
	OperationID string    `json:"operation_id,omitempty"`
	PID         int       `json:"pid,omitempty"`
	Since       time.Time `json:"since,omitempty"`
}

func (r *Router) handleStart(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	req.OperationID = strings.TrimSpace(req.OperationID)
	if req.OperationID == "" {
		req.OperationID = uuid.NewString()
	}
	if !isSafeID(req.OperationID) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid operation_id: allowed [A-Za-z0-9._:-] and no '..'"})
		return
	}
	if !isSafeAbsPath(req.WorkDir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid work_dir: must be absolute path without traversal"})
		return
	}
	workDir := req.WorkDir
	if workDir == "" {
		workDir = r.tool.WorkDir
	}

	inv := executor.Invocation{
		OperationID: req.OperationID,
		Binary:      r.tool.Binary,
		Args:        req.Args,
		WorkDir:     workDir,
		Env:         r.tool.Env,
	}
	// The run outlives the request, so it is not bound to the request context.
	run, err := r.exec.Start(context.Background(), inv)
	switch {
	case err == nil:
	case errors.Is(err, process.ErrBusy):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	case errors.Is(err, executor.ErrInvalid):
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	go func() {
		if _, err := run.Wait(); err != nil {
			slog.Info("Operation finished with error", "operation_id", run.OperationID, "error", err)
		}
	}()
	writeJSON(c, http.StatusAccepted, StartResponse{OperationID: run.OperationID, PID: run.PID})
}

func (r *Router) handleCancel(c *gin.Context) {
	if err := r.exec.Cancel(); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	h, ok := r.exec.Registry().Current()
	if !ok {
		writeJSON(c, http.StatusOK, StatusResponse{})
		return
	}
	writeJSON(c, http.StatusOK, StatusResponse{Busy: true, OperationID: h.OperationID, PID: h.PID, Since: h.Since})
}

func (r *Router) handleLastCommand(c *gin.Context) {
	info, ok := executor.LastCommand()
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no command has been run"})
		return
	}
	writeJSON(c, http.StatusOK, info)
}

// handleEvents streams bus messages as server-sent events named after their
// topic. With operation_id set the stream ends after that operation's
// completion event.
func (r *Router) handleEvents(c *gin.Context) {
	opID := c.Query("operation_id")
	if opID != "" && !isSafeID(opID) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid operation_id"})
		return
	}
	sub := r.bus.Subscribe(opID)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	// Headers go out right away so a client knows it is subscribed before it
	// starts the operation.
	c.Writer.Flush()

	ticker := time.NewTicker(r.keepAlive)
	defer ticker.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Writer.WriteString(": keep-alive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			c.SSEvent(msg.Topic, msg)
			c.Writer.Flush()
			if opID != "" && msg.Complete != nil {
				return
			}
		}
	}
}
