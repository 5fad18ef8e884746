package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/noahxzhu/discord-scheduler/internal/model"
	"github.com/noahxzhu/discord-scheduler/internal/web"
)

// client talks to the scheduler's operator API.
type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient(server, token string) *client {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return &client{base: strings.TrimRight(server, "/"), token: token, http: http.DefaultClient}
}

func (c *client) deliveriesURL(queue string) string {
	return c.base + "/api/queues/" + url.PathEscape(queue) + "/deliveries"
}

func (c *client) list(ctx context.Context, queue string) ([]model.Delivery, error) {
	var out []model.Delivery
	err := c.do(ctx, http.MethodGet, c.deliveriesURL(queue), nil, http.StatusOK, &out)
	return out, err
}

func (c *client) schedule(ctx context.Context, queue string, req web.ScheduleRequest) (model.Delivery, error) {
	var out model.Delivery
	err := c.do(ctx, http.MethodPost, c.deliveriesURL(queue), req, http.StatusCreated, &out)
	return out, err
}

func (c *client) cancel(ctx context.Context, queue, id string) error {
	return c.do(ctx, http.MethodDelete, c.deliveriesURL(queue)+"/"+url.PathEscape(id), nil, http.StatusNoContent, nil)
}

func (c *client) do(ctx context.Context, method, u string, body any, want int, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
