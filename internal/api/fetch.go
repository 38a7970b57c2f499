package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rickgao/motionfeed/internal/model"
)

// FetchSince returns the points each series gained since the given offsets.
//
// A nil or empty JSON body is treated as no series.
func (c *Client) FetchSince(ctx context.Context, offsets model.Offsets) ([]model.Series, error) {
	query := url.Values{}
	query.Set("start", strconv.Itoa(offsets.Start))
	for _, f := range offsets.FromParams() {
		query.Add("from", f)
	}

	body, err := c.doWithRetry(ctx, http.MethodGet, query)
	if err != nil {
		return nil, err
	}

	var series []model.Series
	if len(body) == 0 {
		return series, nil
	}
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return series, nil
}
