package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// historyResponse is the REST history envelope.
type historyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    []struct {
		Username  string    `json:"username"`
		Content   string    `json:"content"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"data"`
}

// HasMore reports whether another REST history page may exist.
func (c *Client) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// fetchPage loads one REST history page and merges it into the view. An empty
// page marks the end of pagination; a fetch error leaves hasMore untouched so
// a later scroll can retry. The caller must have set c.fetching.
func (c *Client) fetchPage(page int) {
	rows, err := c.loadHistory(page)

	c.mu.Lock()
	c.fetching = false
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.log.Warn("client.history.fetch.fail", "page", page, "err", err)
		return
	}
	if len(rows) == 0 {
		c.hasMore = false
		c.mu.Unlock()
		c.notify()
		return
	}
	if page > c.page {
		c.page = page
	}
	c.mergeHistoryLocked(rows)
	c.mu.Unlock()
	c.notify()
}

func (c *Client) loadHistory(page int) ([]wireFrame, error) {
	ctx, cancel := context.WithTimeout(c.ctx, fetchTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/api/chat/history?page=%d&pageSize=%d",
		trimSlash(c.cfg.ServerURL), page, historyPageSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history: unexpected status %d", resp.StatusCode)
	}

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if !body.Status {
		return nil, fmt.Errorf("history: server rejected request: %s", body.Message)
	}

	out := make([]wireFrame, 0, len(body.Data))
	for _, e := range body.Data {
		out = append(out, wireFrame{
			Username:  e.Username,
			Content:   e.Content,
			Timestamp: e.Timestamp,
		})
	}
	return out, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
