package source

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/motionfeed/internal/model"
)

// Handler serves a Store over HTTP.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler creates a Handler for store.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Register mounts the data endpoint at path.
func (h *Handler) Register(r gin.IRoutes, path string) {
	r.GET(path, h.data)
}

// data answers GET ?start=N[&from=name:N].
func (h *Handler) data(c *gin.Context) {
	offsets, err := parseOffsets(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	series := h.store.Since(offsets)

	h.logger.Debug("served data",
		"start", offsets.Start,
		"overrides", len(offsets.From),
		"series", len(series),
	)

	c.JSON(http.StatusOK, series)
}

func parseOffsets(c *gin.Context) (model.Offsets, error) {
	var o model.Offsets

	if raw := c.Query("start"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return o, fmt.Errorf("invalid start %q: want a non-negative integer", raw)
		}
		o.Start = n
	}

	for _, raw := range c.QueryArray("from") {
		name, off, err := model.ParseFrom(raw)
		if err != nil {
			return o, err
		}
		if o.From == nil {
			o.From = make(map[string]int)
		}
		o.From[name] = off
	}

	return o, nil
}
