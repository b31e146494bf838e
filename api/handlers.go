package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ilovepumpkin/dsa-historian/internal/database"
	"github.com/ilovepumpkin/dsa-historian/internal/watch"
	"github.com/ilovepumpkin/dsa-historian/internal/watchgroup"
)

type createGroupRequest struct {
	ID string `json:"id" binding:"required"`
}

func (s *Server) createGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, err := s.provider.CreateGroup(req.ID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, groupView(g))
}

func (s *Server) listGroups(c *gin.Context) {
	groups := s.provider.Groups()
	out := make([]gin.H, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupView(g))
	}
	c.JSON(http.StatusOK, out)
}

func groupView(g *watchgroup.WatchGroup) gin.H {
	settings := g.Settings()
	return gin.H{
		"id":                 g.ID,
		"loggingType":        settings.LoggingType.String(),
		"intervalSeconds":    settings.IntervalSeconds,
		"bufferFlushSeconds": settings.BufferFlushSeconds,
		"queueLength":        g.QueueLen(),
		"watchCount":         len(g.Watches()),
	}
}

// editGroupSettingsRequest mirrors §6's edit action parameters: Buffer
// Flush Time, Logging Type, Interval.
type editGroupSettingsRequest struct {
	BufferFlushSeconds *int64  `json:"bufferFlushSeconds"`
	LoggingType        *string `json:"loggingType"`
	IntervalSeconds    *int64  `json:"intervalSeconds"`
}

func (s *Server) editGroupSettings(c *gin.Context) {
	g, ok := s.provider.Group(c.Param("groupID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}

	var req editGroupSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current := g.Settings()
	next := current
	if req.BufferFlushSeconds != nil {
		next.BufferFlushSeconds = *req.BufferFlushSeconds
	}
	if req.IntervalSeconds != nil {
		next.IntervalSeconds = *req.IntervalSeconds
	}
	if req.LoggingType != nil {
		next.LoggingType = watchgroup.ParseLoggingType(*req.LoggingType)
	}

	g.EditSettings(next)
	c.JSON(http.StatusOK, groupView(g))
}

func (s *Server) deleteGroup(c *gin.Context) {
	if err := s.provider.DeleteGroup(c.Param("groupID")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// restoreGetHistory refreshes the provider's path registry for every
// watch in the group, the Go-native equivalent of rebuilding the
// @@getHistory bus alias on each member watch (§6).
func (s *Server) restoreGetHistory(c *gin.Context) {
	g, ok := s.provider.Group(c.Param("groupID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	for _, w := range g.Watches() {
		s.provider.OnWatchAdded(g.ID, w)
	}
	c.Status(http.StatusNoContent)
}

type addWatchRequest struct {
	Path string `json:"path" binding:"required"`
}

func (s *Server) addWatch(c *gin.Context) {
	groupID := c.Param("groupID")
	var req addWatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	w, err := s.provider.AddWatch(groupID, req.Path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, watchView(w))
}

type setWatchEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) setWatchEnabled(c *gin.Context) {
	_, w, ok := s.lookupWatch(c)
	if !ok {
		return
	}

	var req setWatchEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := w.Enable(req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, watchView(w))
}

func (s *Server) getWatch(c *gin.Context) {
	_, w, ok := s.lookupWatch(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, watchView(w))
}

func (s *Server) deleteWatch(c *gin.Context) {
	_, w, ok := s.lookupWatch(c)
	if !ok {
		return
	}
	if err := w.Unsubscribe(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getWatchHistory(c *gin.Context) {
	g, w, ok := s.lookupWatch(c)
	if !ok {
		return
	}

	from, err := strconv.ParseInt(c.DefaultQuery("from", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	to, err := strconv.ParseInt(c.DefaultQuery("to", strconv.FormatInt(time.Now().UnixMilli(), 10)), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}

	rows := make([]gin.H, 0, 128)
	err = g.Database().Query(c.Request.Context(), w.Path, from, to, func(r database.Row) error {
		rows = append(rows, gin.H{
			"type":   r.Value.Type().String(),
			"timeMs": r.Time.UnixMilli(),
			"value":  valueView(r.Value),
		})
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) lookupWatch(c *gin.Context) (*watchgroup.WatchGroup, *watch.Watch, bool) {
	g, ok := s.provider.Group(c.Param("groupID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return nil, nil, false
	}
	w, ok := g.FindWatch(c.Param("watchID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "watch not found"})
		return nil, nil, false
	}
	return g, w, true
}

func watchView(w *watch.Watch) gin.H {
	start, startSet := w.StartDate()
	view := gin.H{
		"id":              w.ID.String(),
		"path":            w.Path,
		"enabled":         w.Enabled(),
		"endDate":         w.EndDate(),
		"lwv":             valueView(w.LastWrittenValue()),
		"lastWrittenTime": w.LastWrittenTime(),
	}
	if startSet {
		view["startDate"] = start
	}
	return view
}
