package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mediamatic/ikdisplay/internal/store"
)

func (h *Handlers) ListFeeds(c *gin.Context) {
	feeds, err := h.Store.ListFeeds(c.Request.Context())
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, feeds)
}

func (h *Handlers) CreateFeed(c *gin.Context) {
	var feed store.Feed
	if err := c.ShouldBindJSON(&feed); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if feed.Handle == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "handle is required"})
		return
	}
	if err := h.Store.CreateFeed(c.Request.Context(), &feed); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, feed)
}

func (h *Handlers) GetFeed(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	feed, err := h.Store.GetFeed(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *Handlers) UpdateFeed(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var feed store.Feed
	if err := c.ShouldBindJSON(&feed); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	feed.ID = id
	if err := h.Store.UpdateFeed(c.Request.Context(), &feed); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *Handlers) DeleteFeed(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteFeed(c.Request.Context(), id); err != nil {
		h.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
