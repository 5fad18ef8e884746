package pushover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/noahxzhu/discord-scheduler/internal/model"
	"github.com/noahxzhu/discord-scheduler/internal/sink"
)

const DefaultAPIURL = "https://api.pushover.net/1/messages.json"

// Client sends messages with one application token; the destination of each
// delivery is the Pushover user key.
type Client struct {
	Token  string
	APIURL string
	HTTP   *http.Client
	Title  string
}

func NewClient(token, apiURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		Token:  token,
		APIURL: apiURL,
		HTTP:   http.DefaultClient,
		Title:  "Reminder",
	}
}

func (c *Client) SendMessage(ctx context.Context, user, title, message string) error {
	params := url.Values{}
	params.Set("token", c.Token)
	params.Set("user", user)
	params.Set("title", title)
	params.Set("message", message)
	params.Set("html", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pushover api error: status %s, body %s", resp.Status, string(body))
	}

	return nil
}

// Deliver implements sink.Sink for pushover destinations. Mentions have no
// meaning on Pushover and are dropped.
func (c *Client) Deliver(ctx context.Context, d model.Delivery) error {
	if c.Token == "" || d.Destination.ID == "" {
		return fmt.Errorf("%w: pushover token or user key missing", sink.ErrInvalidDestination)
	}
	if err := c.SendMessage(ctx, d.Destination.ID, c.Title, d.Payload.Content); err != nil {
		return fmt.Errorf("%w: %w", sink.ErrDeliveryFailed, err)
	}
	return nil
}
