package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mediamatic/ikdisplay/internal/aggregator"
	"github.com/mediamatic/ikdisplay/internal/dispatch"
	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/store"
	"github.com/mediamatic/ikdisplay/internal/xmpp"
)

// SubscriptionDispatcher is the slice of the dispatcher the admin API
// drives when sources come and go.
type SubscriptionDispatcher interface {
	AddObserver(ctx context.Context, service xmpp.JID, node string, observerID int64, o dispatch.Observer) error
	RemoveObserver(service xmpp.JID, node string, observerID int64)
}

// FilterRefresher recomputes the stream filters after a source change.
type FilterRefresher interface {
	RefreshFilters(ctx context.Context) error
}

// Handlers holds the admin API dependencies.
type Handlers struct {
	Store      *store.Store
	Dispatcher SubscriptionDispatcher
	Twitter    FilterRefresher
	Sink       aggregator.Aggregator
	Logger     logging.Logger
}

// RegisterRoutes mounts the admin CRUD API on the given group.
func (h *Handlers) RegisterRoutes(api gin.IRouter) {
	api.GET("/feeds", h.ListFeeds)
	api.POST("/feeds", h.CreateFeed)
	api.GET("/feeds/:id", h.GetFeed)
	api.PUT("/feeds/:id", h.UpdateFeed)
	api.DELETE("/feeds/:id", h.DeleteFeed)

	api.GET("/things", h.ListThings)
	api.POST("/things", h.CreateThing)
	api.GET("/things/:id", h.GetThing)
	api.PUT("/things/:id", h.UpdateThing)
	api.DELETE("/things/:id", h.DeleteThing)

	api.GET("/sites", h.ListSites)
	api.POST("/sites", h.CreateSite)
	api.GET("/sites/:id", h.GetSite)
	api.PUT("/sites/:id", h.UpdateSite)
	api.DELETE("/sites/:id", h.DeleteSite)

	api.GET("/sources", h.ListSources)
	api.POST("/sources", h.CreateSource)
	api.GET("/sources/:id", h.GetSource)
	api.PUT("/sources/:id", h.UpdateSource)
	api.DELETE("/sources/:id", h.DeleteSource)
}

func parseQueryID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handlers) storeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.Logger.WithError(err).Error("Store operation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
