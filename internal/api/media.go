package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"nexus/internal/ingest"
	"nexus/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (h *handler) processURL(c *gin.Context) {
	var req ingest.URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	sub, err := h.ingest.SubmitURL(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sub)
}

func (h *handler) processUpload(c *gin.Context) {
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

	sub, err := h.ingest.SubmitUpload(c.Request.Context(), file, header.Filename, c.PostForm("title"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sub)
}

func (h *handler) listMedia(c *gin.Context) {
	skip, limit, ok := h.pagination(c)
	if !ok {
		return
	}
	status := strings.TrimSpace(c.Query("status"))
	items, err := h.store.ListMedia(c.Request.Context(), store.MediaFilter{
		Status:         store.MediaStatus(status),
		Kind:           store.MediaKind(strings.TrimSpace(c.Query("type"))),
		SubscriptionID: strings.TrimSpace(c.Query("subscription_id")),
		Limit:          limit,
		Offset:         skip,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []*store.MediaItem{}
	}
	c.JSON(http.StatusOK, MediaListResponse{Items: items, Skip: skip, Limit: limit, Status: status})
}

func (h *handler) getMedia(c *gin.Context) {
	item, err := h.store.GetMedia(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if item == nil {
		h.notFound(c, "media")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *handler) deleteMedia(c *gin.Context) {
	id := c.Param("id")
	if err := h.ingest.DeleteMedia(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "media_id": id})
}

func (h *handler) mediaJob(c *gin.Context) {
	job, err := h.store.LatestJobForMedia(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if job == nil {
		h.notFound(c, "job")
		return
	}
	c.JSON(http.StatusOK, job.View())
}

func (h *handler) retryMedia(c *gin.Context) {
	sub, err := h.ingest.RetryJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sub)
}

func (h *handler) getJob(c *gin.Context) {
	view, err := h.store.JobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if view == nil {
		h.notFound(c, "job")
		return
	}
	c.JSON(http.StatusOK, view)
}

// pagination reads skip and limit query parameters. It writes a 400 and
// returns false on malformed values.
func (h *handler) pagination(c *gin.Context) (skip, limit int, ok bool) {
	limit = defaultPageSize
	if raw := c.Query("skip"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			h.badRequest(c, "skip must be a non-negative integer")
			return 0, 0, false
		}
		skip = value
	}
	if raw := c.Query("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 1 {
			h.badRequest(c, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = min(value, maxPageSize)
	}
	return skip, limit, true
}
