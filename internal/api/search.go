package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nexus/internal/search"
	"nexus/internal/store"
)

func (h *handler) semanticSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	minSimilarity := search.DefaultMinSimilarity
	if req.MinSimilarity != nil {
		minSimilarity = *req.MinSimilarity
	}
	if minSimilarity < -1 || minSimilarity > 1 {
		h.badRequest(c, "min_similarity must be between -1 and 1")
		return
	}
	results, err := h.search.Search(c.Request.Context(), req.Query, req.Limit, minSimilarity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	c.JSON(http.StatusOK, SearchResponse{Query: req.Query, Results: results})
}

func (h *handler) searchByTag(c *gin.Context) {
	skip, limit, ok := h.pagination(c)
	if !ok {
		return
	}
	items, err := h.search.ByTag(c.Request.Context(), c.Param("tag"), limit, skip)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []*store.MediaItem{}
	}
	c.JSON(http.StatusOK, MediaListResponse{Items: items, Skip: skip, Limit: limit})
}
