package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nexus/internal/chat"
	"nexus/internal/store"
)

func (h *handler) askChat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	reply, err := h.chat.Ask(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *handler) chatHistory(c *gin.Context) {
	skip, limit, ok := h.pagination(c)
	if !ok {
		return
	}
	messages, err := h.chat.History(c.Request.Context(), limit, skip)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if messages == nil {
		messages = []*store.ChatMessage{}
	}
	c.JSON(http.StatusOK, ChatHistoryResponse{Messages: messages, Skip: skip, Limit: limit})
}

func (h *handler) clearChat(c *gin.Context) {
	n, err := h.chat.Clear(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ChatClearResponse{Status: "cleared", MessagesDeleted: n})
}
