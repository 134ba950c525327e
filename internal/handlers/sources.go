package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mediamatic/ikdisplay/internal/aggregator"
	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/source"
	"github.com/mediamatic/ikdisplay/internal/store"
)

// sourcePayload is the wire shape of a source. Reference fields are
// pointers so absent and null both mean unset.
type sourcePayload struct {
	ID      int64  `json:"id"`
	Kind    string `json:"kind"`
	FeedID  int64  `json:"feed_id"`
	Enabled bool   `json:"enabled"`
	Via     string `json:"via"`

	QuestionID *int64 `json:"question_id,omitempty"`
	EventID    *int64 `json:"event_id,omitempty"`
	CreatorID  *int64 `json:"creator_id,omitempty"`
	RaceID     *int64 `json:"race_id,omitempty"`
	AgentID    *int64 `json:"agent_id,omitempty"`
	UserID     *int64 `json:"user_id,omitempty"`
	SiteID     *int64 `json:"site_id,omitempty"`

	Service        string   `json:"service,omitempty"`
	NodeIdentifier string   `json:"node_identifier,omitempty"`
	Template       string   `json:"template,omitempty"`
	Terms          []string `json:"terms,omitempty"`
	UserIDs        []string `json:"user_ids,omitempty"`
}

func nullRef(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func refPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func (p *sourcePayload) toRecord() *store.Source {
	return &store.Source{
		ID:             p.ID,
		Kind:           p.Kind,
		FeedID:         p.FeedID,
		Enabled:        p.Enabled,
		Via:            p.Via,
		QuestionID:     nullRef(p.QuestionID),
		EventID:        nullRef(p.EventID),
		CreatorID:      nullRef(p.CreatorID),
		RaceID:         nullRef(p.RaceID),
		AgentID:        nullRef(p.AgentID),
		UserID:         nullRef(p.UserID),
		SiteID:         nullRef(p.SiteID),
		Service:        p.Service,
		NodeIdentifier: p.NodeIdentifier,
		Template:       p.Template,
		Terms:          p.Terms,
		UserIDs:        p.UserIDs,
	}
}

func sourceResponse(rec *store.Source) sourcePayload {
	return sourcePayload{
		ID:             rec.ID,
		Kind:           rec.Kind,
		FeedID:         rec.FeedID,
		Enabled:        rec.Enabled,
		Via:            rec.Via,
		QuestionID:     refPtr(rec.QuestionID),
		EventID:        refPtr(rec.EventID),
		CreatorID:      refPtr(rec.CreatorID),
		RaceID:         refPtr(rec.RaceID),
		AgentID:        refPtr(rec.AgentID),
		UserID:         refPtr(rec.UserID),
		SiteID:         refPtr(rec.SiteID),
		Service:        rec.Service,
		NodeIdentifier: rec.NodeIdentifier,
		Template:       rec.Template,
		Terms:          rec.Terms,
		UserIDs:        rec.UserIDs,
	}
}

func (h *Handlers) ListSources(c *gin.Context) {
	var (
		records []store.Source
		err     error
	)
	if feedID := c.Query("feed_id"); feedID != "" {
		var id int64
		if id, err = parseQueryID(feedID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feed_id"})
			return
		}
		records, err = h.Store.ListSourcesByFeed(c.Request.Context(), id)
	} else {
		records, err = h.Store.ListSources(c.Request.Context())
	}
	if err != nil {
		h.storeError(c, err)
		return
	}
	payloads := make([]sourcePayload, len(records))
	for i := range records {
		payloads[i] = sourceResponse(&records[i])
	}
	c.JSON(http.StatusOK, payloads)
}

func (h *Handlers) CreateSource(c *gin.Context) {
	var payload sourcePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := source.ParseKind(payload.Kind); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec := payload.toRecord()
	rec.ID = 0
	if err := h.Store.CreateSource(c.Request.Context(), rec); err != nil {
		h.storeError(c, err)
		return
	}
	h.activateSource(c.Request.Context(), rec)
	c.JSON(http.StatusCreated, sourceResponse(rec))
}

func (h *Handlers) GetSource(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := h.Store.GetSource(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sourceResponse(rec))
}

func (h *Handlers) UpdateSource(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	prev, err := h.Store.GetSource(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	var payload sourcePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := source.ParseKind(payload.Kind); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec := payload.toRecord()
	rec.ID = id
	if err := h.Store.UpdateSource(c.Request.Context(), rec); err != nil {
		h.storeError(c, err)
		return
	}
	h.deactivateSource(c.Request.Context(), prev)
	h.activateSource(c.Request.Context(), rec)
	c.JSON(http.StatusOK, sourceResponse(rec))
}

func (h *Handlers) DeleteSource(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := h.Store.GetSource(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	h.deactivateSource(c.Request.Context(), rec)
	if err := h.Store.DeleteSource(c.Request.Context(), id); err != nil {
		h.storeError(c, err)
		return
	}
	if rec.Kind == string(source.KindTwitter) {
		h.refreshTwitterFilters(c.Request.Context())
	}
	c.Status(http.StatusNoContent)
}

// activateSource wires a freshly created or updated source into the
// delivery machinery. Failures here are logged, not surfaced: the
// record itself was saved.
func (h *Handlers) activateSource(ctx context.Context, rec *store.Source) {
	if rec.Kind == string(source.KindTwitter) {
		h.refreshTwitterFilters(ctx)
		return
	}
	if !rec.Enabled {
		return
	}

	src, err := source.Load(ctx, h.Store, rec)
	if err != nil {
		h.Logger.WithError(err).WithFields(logging.Fields{
			"source": rec.ID,
		}).Error("Failed to load source")
		return
	}
	service, node, err := src.NodeAddress()
	if errors.Is(err, source.ErrNoNode) {
		h.Logger.WithFields(logging.Fields{
			"source": rec.ID,
			"kind":   rec.Kind,
		}).Warn("Source has no node address, not subscribing")
		return
	}
	if err != nil {
		h.Logger.WithError(err).WithFields(logging.Fields{
			"source": rec.ID,
		}).Error("Failed to derive node address")
		return
	}

	sub, err := h.Store.EnsureSubscription(ctx, service.Bare(), node)
	if err != nil {
		h.Logger.WithError(err).WithFields(logging.Fields{
			"source": rec.ID,
		}).Error("Failed to record subscription")
		return
	}
	if err := h.Store.SetSourceSubscription(ctx, rec.ID, sql.NullInt64{Int64: sub.ID, Valid: true}); err != nil {
		h.Logger.WithError(err).WithFields(logging.Fields{
			"source": rec.ID,
		}).Error("Failed to link source to subscription")
	}

	observer := &aggregator.FeedObserver{Source: src, Sink: h.Sink, Logger: h.Logger}
	if err := h.Dispatcher.AddObserver(ctx, service, node, rec.ID, observer); err != nil {
		h.Logger.WithError(err).WithFields(logging.Fields{
			"source":  rec.ID,
			"service": service.String(),
			"node":    node,
		}).Error("Failed to add observer")
	}
}

// deactivateSource detaches a source from the node it was observing,
// based on the record as it was before the change.
func (h *Handlers) deactivateSource(ctx context.Context, rec *store.Source) {
	if rec.Kind == string(source.KindTwitter) {
		return
	}

	src, err := source.Load(ctx, h.Store, rec)
	if err != nil {
		h.Logger.WithError(err).WithFields(logging.Fields{
			"source": rec.ID,
		}).Error("Failed to load source for detach")
		return
	}
	service, node, err := src.NodeAddress()
	if err != nil {
		return
	}
	h.Dispatcher.RemoveObserver(service, node, rec.ID)
	if rec.SubscriptionID.Valid {
		if err := h.Store.SetSourceSubscription(ctx, rec.ID, sql.NullInt64{}); err != nil && !errors.Is(err, store.ErrNotFound) {
			h.Logger.WithError(err).WithFields(logging.Fields{
				"source": rec.ID,
			}).Error("Failed to unlink source subscription")
		}
	}
}

func (h *Handlers) refreshTwitterFilters(ctx context.Context) {
	if h.Twitter == nil {
		return
	}
	if err := h.Twitter.RefreshFilters(ctx); err != nil {
		h.Logger.WithError(err).Error("Failed to refresh stream filters")
	}
}
