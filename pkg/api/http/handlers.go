package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/taskdag/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GraphRequest represents a graph load or validation request.
type GraphRequest struct {
	Graph *domain.TaskGraph `json:"graph" binding:"required"`
}

// GraphLoadResponse represents a graph load response.
type GraphLoadResponse struct {
	RunID      string                  `json:"run_id"`
	Validation domain.ValidationResult `json:"validation"`
	LoadedAt   time.Time               `json:"loaded_at"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details.
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"checks": gin.H{
			"orchestrator": "ok",
		},
	})
}

// handleLoadGraph replaces the active graph and returns the validation
// result. An invalid graph is accepted but refuses to execute.
func (s *Server) handleLoadGraph(c *gin.Context) {
	var req GraphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	validation := s.orchestrator.LoadGraph(c.Request.Context(), req.Graph)

	c.JSON(http.StatusCreated, GraphLoadResponse{
		RunID:      s.orchestrator.RunID(),
		Validation: validation,
		LoadedAt:   time.Now(),
	})
}

// handleValidateGraph validates a graph without loading it.
func (s *Server) handleValidateGraph(c *gin.Context) {
	var req GraphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, s.validator.Validate(req.Graph))
}

// handleGetGraph returns a copy of the active graph.
func (s *Server) handleGetGraph(c *gin.Context) {
	g, err := s.orchestrator.GetGraph()
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NO_GRAPH",
				Message: "No graph loaded",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":     s.orchestrator.RunID(),
		"graph":      g,
		"validation": s.orchestrator.GetValidation(),
	})
}

// handleExecute starts a sequential execution of the active graph. The run
// proceeds in the background; progress is observable through the status,
// results and events endpoints.
func (s *Server) handleExecute(c *gin.Context) {
	s.startExecution(c, false)
}

// handleExecuteParallel starts a parallel execution of the active graph.
func (s *Server) handleExecuteParallel(c *gin.Context) {
	s.startExecution(c, true)
}

func (s *Server) startExecution(c *gin.Context, parallel bool) {
	// Refuse synchronously on the conditions Execute itself would refuse,
	// so the client gets the validation errors instead of a bare 202.
	if _, err := s.orchestrator.GetGraph(); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NO_GRAPH",
				Message: "No graph loaded",
			},
		})
		return
	}
	if validation := s.orchestrator.GetValidation(); !validation.Valid {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_GRAPH",
				Message: "Graph validation failed",
				Details: validation.Errors,
			},
		})
		return
	}

	runID := s.orchestrator.RunID()
	mode := "sequential"
	if parallel {
		mode = "parallel"
	}

	// Detached from the request context: the run outlives the HTTP call.
	go func() {
		var err error
		if parallel {
			_, err = s.orchestrator.ExecuteParallel(context.Background(), nil)
		} else {
			_, err = s.orchestrator.Execute(context.Background())
		}
		if err != nil {
			s.logger.Error("graph execution failed",
				zap.String("run_id", runID),
				zap.String("mode", mode),
				zap.Error(err))
			return
		}
		s.logger.Info("graph execution finished",
			zap.String("run_id", runID),
			zap.String("mode", mode))
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":     runID,
		"mode":       mode,
		"started_at": time.Now(),
	})
}

// handleAllStatuses returns the status of every task.
func (s *Server) handleAllStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"run_id":   s.orchestrator.RunID(),
		"statuses": s.orchestrator.GetAllStatuses(),
	})
}

// handleAllResults returns every recorded result.
func (s *Server) handleAllResults(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"run_id":  s.orchestrator.RunID(),
		"results": s.orchestrator.GetAllResults(),
	})
}

// handleEvents returns the event log, oldest first.
func (s *Server) handleEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"run_id": s.orchestrator.RunID(),
		"events": s.orchestrator.GetEvents(),
	})
}

// handleTaskStatus returns the status of a single task.
func (s *Server) handleTaskStatus(c *gin.Context) {
	taskID := c.Param("id")

	status, err := s.orchestrator.GetTaskStatus(taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "TASK_NOT_FOUND",
				Message: "Task not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id": taskID,
		"status":  status,
	})
}

// handleTaskResult returns the recorded result of a single task.
func (s *Server) handleTaskResult(c *gin.Context) {
	taskID := c.Param("id")

	result, err := s.orchestrator.GetResult(taskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: ErrorDetail{
					Code:    "RESULT_NOT_FOUND",
					Message: "No result recorded for task",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INTERNAL_ERROR",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleTaskContext builds and returns the context snapshot for a task.
func (s *Server) handleTaskContext(c *gin.Context) {
	taskID := c.Param("id")

	snapshot, err := s.orchestrator.CreateContextSnapshot(taskID)
	if err != nil {
		code := http.StatusNotFound
		detail := ErrorDetail{Code: "TASK_NOT_FOUND", Message: "Task not found"}
		if errors.Is(err, domain.ErrNoGraph) {
			code = http.StatusConflict
			detail = ErrorDetail{Code: "NO_GRAPH", Message: "No graph loaded"}
		}
		c.JSON(code, ErrorResponse{Error: detail})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// handleCancelTask cancels a single running task.
func (s *Server) handleCancelTask(c *gin.Context) {
	taskID := c.Param("id")

	if err := s.orchestrator.Cancel(taskID); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CANCELLATION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id":      taskID,
		"status":       "cancelled",
		"cancelled_at": time.Now(),
	})
}

// handleCancelAll cancels every running task.
func (s *Server) handleCancelAll(c *gin.Context) {
	count := s.orchestrator.CancelAll()

	c.JSON(http.StatusOK, gin.H{
		"cancelled":    count,
		"cancelled_at": time.Now(),
	})
}

// handleReset discards all derived state; the loaded graph is kept and every
// task returns to pending.
func (s *Server) handleReset(c *gin.Context) {
	s.orchestrator.Reset(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"run_id":   s.orchestrator.RunID(),
		"reset_at": time.Now(),
	})
}
