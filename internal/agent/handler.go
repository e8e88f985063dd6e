package agent

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/akashmahlaz/rockreach-sub000/internal/export"
	"github.com/akashmahlaz/rockreach-sub000/internal/tenant"
	"github.com/akashmahlaz/rockreach-sub000/internal/tools"
	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

// Handler exposes the chat and conversation HTTP surface.
type Handler struct {
	orchestrator *Orchestrator
	store        *ConversationStore
	artifacts    *export.Artifacts
	limiter      *RateLimiter
	logger       logging.Logger
}

func NewHandler(orchestrator *Orchestrator, store *ConversationStore, artifacts *export.Artifacts, limiter *RateLimiter, logger logging.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		store:        store,
		artifacts:    artifacts,
		limiter:      limiter,
		logger:       logger,
	}
}

// RegisterRoutes mounts the agent surface. Everything under /v1 except the
// export download requires tenant identity.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	// Download handles carry their own signed tenant claim.
	router.GET("/v1/exports/download", h.downloadExport)

	v1 := router.Group("/v1", tenant.Middleware())
	v1.POST("/chat", h.chat)
	v1.GET("/conversations", h.listConversations)
	v1.GET("/conversations/:id", h.getConversation)
	v1.DELETE("/conversations/:id", h.deleteConversation)
}

type chatRequest struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []ChatMessage `json:"messages" binding:"required"`
}

type chatResponse struct {
	ConversationID string           `json:"conversation_id"`
	Answer         string           `json:"answer"`
	ToolCalls      []ToolCallRecord `json:"tool_calls,omitempty"`
	Steps          int              `json:"steps"`
	Aborted        bool             `json:"aborted,omitempty"`
}

func (h *Handler) chat(c *gin.Context) {
	id, ok := tenant.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}

	if h.limiter != nil {
		allowed, remaining, resetSeconds := h.limiter.Allow(id.TenantID)
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "chat rate limit exceeded, try again later",
				"retry_after": resetSeconds,
			})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetSeconds))
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages are required"})
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	ctx := c.Request.Context()
	persisted, err := h.store.Get(ctx, id.TenantID, id.UserID, conversationID)
	if err != nil {
		h.logger.WithFields(logging.Fields{"conversation_id": conversationID, "error": err}).Error("Failed to load conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	history := Reconcile(persisted, req.Messages)

	result, err := h.orchestrator.Run(ctx, tools.Invocation{TenantID: id.TenantID, UserID: id.UserID}, conversationID, history)
	if err != nil {
		if errors.Is(err, ctx.Err()) {
			c.JSON(http.StatusRequestTimeout, gin.H{"error": "turn cancelled"})
			return
		}
		h.logger.WithFields(logging.Fields{"conversation_id": conversationID, "error": err}).Error("Agent turn failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "the assistant is unavailable right now"})
		return
	}

	transcript := Transcript{
		ID:       conversationID,
		TenantID: id.TenantID,
		UserID:   id.UserID,
		Messages: append(history, TextMessage(uuid.New().String(), "assistant", result.Answer)),
	}
	if persisted != nil {
		transcript.Title = persisted.Title
	}
	if transcript.Title == "" && len(history) > 0 {
		transcript.Title = title(history[0].Text())
	}
	if err := h.store.Save(c.Request.Context(), transcript); err != nil {
		h.logger.WithFields(logging.Fields{"conversation_id": conversationID, "error": err}).Error("Failed to persist conversation")
	}

	c.JSON(http.StatusOK, chatResponse{
		ConversationID: conversationID,
		Answer:         result.Answer,
		ToolCalls:      result.ToolCalls,
		Steps:          result.Steps,
		Aborted:        result.Aborted,
	})
}

func (h *Handler) listConversations(c *gin.Context) {
	id, _ := tenant.FromContext(c.Request.Context())
	transcripts, err := h.store.List(c.Request.Context(), id.TenantID, id.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": transcripts})
}

func (h *Handler) getConversation(c *gin.Context) {
	id, _ := tenant.FromContext(c.Request.Context())
	transcript, err := h.store.Get(c.Request.Context(), id.TenantID, id.UserID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}
	if transcript == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	c.JSON(http.StatusOK, transcript)
}

func (h *Handler) deleteConversation(c *gin.Context) {
	id, _ := tenant.FromContext(c.Request.Context())
	if err := h.store.Delete(c.Request.Context(), id.TenantID, id.UserID, c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) downloadExport(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	data, filename, err := h.artifacts.Fetch(c.Request.Context(), token)
	if errors.Is(err, export.ErrExpired) {
		c.JSON(http.StatusGone, gin.H{"error": "this export link has expired"})
		return
	}
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid export link"})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Data(http.StatusOK, "text/csv", data)
}

func title(text string) string {
	const max = 60
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}
