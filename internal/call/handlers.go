package call

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/callgate/internal/logging"
)

// maxEventBody caps mid-call event payload reads.
const maxEventBody = 1 << 20 // 1MB

// Handler exposes the state machine over the webhook HTTP surface.
type Handler struct {
	service *Service
}

// NewHandler creates the webhook handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the webhook endpoints.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/onCall", h.OnCall)
	r.POST("/onEvent", h.OnEvent)
}

// OnCall handles POST /onCall, the call-start webhook. It always answers
// promptly: the platform enforces its own webhook deadline and treats a
// hang as a dead endpoint.
func (h *Handler) OnCall(c *gin.Context) {
	var start CallStart
	if err := c.ShouldBindJSON(&start); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid call-start body",
		})
		return
	}

	actions, err := h.service.OnCallStart(c.Request.Context(), start)
	if err != nil {
		if isValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
			return
		}
		logging.L(c.Request.Context()).Error("call-start handling failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to handle call start",
		})
		return
	}

	c.JSON(http.StatusOK, actions)
}

// OnEvent handles POST /onEvent, the mid-call webhook. Events that need no
// instruction are acknowledged with a bare 200 so the platform does not
// retry them.
func (h *Handler) OnEvent(c *gin.Context) {
	sessionID := c.Query("session-id")

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Unreadable event body",
		})
		return
	}

	var ev Event
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Invalid event body",
			})
			return
		}
	}
	ev.Raw = raw

	actions, err := h.service.OnCallEvent(c.Request.Context(), sessionID, ev)
	if err != nil {
		logging.L(c.Request.Context()).Error("call-event handling failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to handle call event",
		})
		return
	}

	if len(actions) == 0 {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, actions)
}

func isValidation(err error) bool {
	return errors.Is(err, ErrInvalidCallStart)
}
