package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mediamatic/ikdisplay/internal/store"
)

func (h *Handlers) ListThings(c *gin.Context) {
	things, err := h.Store.ListThings(c.Request.Context())
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, things)
}

func (h *Handlers) CreateThing(c *gin.Context) {
	var thing store.Thing
	if err := c.ShouldBindJSON(&thing); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if thing.URI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uri is required"})
		return
	}
	if err := h.Store.CreateThing(c.Request.Context(), &thing); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, thing)
}

func (h *Handlers) GetThing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	thing, err := h.Store.GetThing(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, thing)
}

func (h *Handlers) UpdateThing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var thing store.Thing
	if err := c.ShouldBindJSON(&thing); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	thing.ID = id
	if err := h.Store.UpdateThing(c.Request.Context(), &thing); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, thing)
}

func (h *Handlers) DeleteThing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteThing(c.Request.Context(), id); err != nil {
		h.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) ListSites(c *gin.Context) {
	sites, err := h.Store.ListSites(c.Request.Context())
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sites)
}

func (h *Handlers) CreateSite(c *gin.Context) {
	var site store.Site
	if err := c.ShouldBindJSON(&site); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if site.URI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uri is required"})
		return
	}
	if err := h.Store.CreateSite(c.Request.Context(), &site); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, site)
}

func (h *Handlers) GetSite(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	site, err := h.Store.GetSite(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, site)
}

func (h *Handlers) UpdateSite(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var site store.Site
	if err := c.ShouldBindJSON(&site); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	site.ID = id
	if err := h.Store.UpdateSite(c.Request.Context(), &site); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, site)
}

func (h *Handlers) DeleteSite(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteSite(c.Request.Context(), id); err != nil {
		h.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
