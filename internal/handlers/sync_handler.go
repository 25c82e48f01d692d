package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	statusmodels "io.winapps.triptracker/internal/models/sync_status"
	"io.winapps.triptracker/internal/syncstatus"
)

// Watchable is anything that reports changes, such as an Entity Cache.
type Watchable interface {
	OnChange(fn func()) func()
}

type SyncHandler struct {
	agg       *syncstatus.Aggregator
	refocuser *syncstatus.Refocuser
	watch     []Watchable
	logger    *zap.SugaredLogger
}

// NewSyncHandler creates a new sync handler. Changes on any of watch are
// pushed to /sync/events listeners.
func NewSyncHandler(agg *syncstatus.Aggregator, refocuser *syncstatus.Refocuser, logger *zap.SugaredLogger, watch ...Watchable) *SyncHandler {
	return &SyncHandler{agg: agg, refocuser: refocuser, watch: watch, logger: logger}
}

func toStatusResponse(st syncstatus.Status) statusmodels.SyncStatusResponse {
	resp := statusmodels.SyncStatusResponse{
		Level:      string(st.Level),
		Label:      st.Label,
		Error:      st.Error,
		Refreshing: st.Refreshing,
		LastSynced: st.LastSynced,
		Sources:    make([]statusmodels.SourceStatus, 0, len(st.Sources)),
	}
	for _, src := range st.Sources {
		errText := src.State.RefreshError
		if errText == "" {
			errText = src.State.SubscriptionError
		}
		resp.Sources = append(resp.Sources, statusmodels.SourceStatus{
			Name:       src.Name,
			Phase:      src.State.Phase.String(),
			FromCache:  src.State.FromCache,
			Pending:    src.State.HasPendingWrites,
			Refreshing: src.State.Refreshing,
			LastSynced: src.State.LastSynced,
			Error:      errText,
		})
	}
	return resp
}

// Status reports the combined sync state for the status bar
func (h *SyncHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, toStatusResponse(h.agg.Status()))
}

// Refresh forces a server read of every source and waits for it. Partial
// failures still answer 200; the status body says what failed.
func (h *SyncHandler) Refresh(c *gin.Context) {
	err := h.agg.RefreshAll(c.Request.Context())
	if errors.Is(err, syncstatus.ErrRefreshInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "Refresh already in progress"})
		return
	}
	if err != nil {
		h.logError(c, err, "manual refresh had failures")
	}
	c.JSON(http.StatusOK, toStatusResponse(h.agg.Status()))
}

// Refocus records that the client came back to the foreground. The refresh,
// if any, happens in the background after the debounce.
func (h *SyncHandler) Refocus(c *gin.Context) {
	h.refocuser.Visible()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// Events streams the sync status whenever a cache changes. Bursts of changes
// collapse into one event.
func (h *SyncHandler) Events(c *gin.Context) {
	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	for _, w := range h.watch {
		unregister := w.OnChange(notify)
		defer unregister()
	}

	ticker := time.NewTicker(eventKeepAlive)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("status", toStatusResponse(h.agg.Status()))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-changed:
			c.SSEvent("status", toStatusResponse(h.agg.Status()))
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
