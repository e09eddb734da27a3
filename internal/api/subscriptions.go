package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nexus/internal/ingest"
	"nexus/internal/store"
)

func (h *handler) listSubscriptions(c *gin.Context) {
	subs, err := h.store.ListSubscriptions(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if subs == nil {
		subs = []*store.Subscription{}
	}
	c.JSON(http.StatusOK, subs)
}

func (h *handler) createSubscription(c *gin.Context) {
	var req ingest.SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	sub, err := h.ingest.CreateSubscription(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *handler) getSubscription(c *gin.Context) {
	sub, err := h.store.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if sub == nil {
		h.notFound(c, "subscription")
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *handler) updateSubscription(c *gin.Context) {
	var patch store.SubscriptionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	sub, err := h.ingest.UpdateSubscription(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *handler) deleteSubscription(c *gin.Context) {
	id := c.Param("id")
	if err := h.ingest.DeleteSubscription(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "subscription_id": id})
}

func (h *handler) syncSubscription(c *gin.Context) {
	id := c.Param("id")
	taskID, err := h.ingest.SyncNow(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, SyncResponse{SubscriptionID: id, TaskID: taskID, Status: "queued"})
}

// importSubscriptions accepts a YAML document either as the raw body or as
// the multipart field "file".
func (h *handler) importSubscriptions(c *gin.Context) {
	body := c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			h.badRequest(c, "multipart field \"file\" is required")
			return
		}
		file, err := header.Open()
		if err != nil {
			h.respondError(c, err)
			return
		}
		defer file.Close()
		body = file
	}
	result, err := h.ingest.ImportSubscriptions(c.Request.Context(), body)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
