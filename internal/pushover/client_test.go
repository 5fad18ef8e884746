package pushover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/noahxzhu/discord-scheduler/internal/model"
	"github.com/noahxzhu/discord-scheduler/internal/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverPostsForm(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form = map[string]string{
			"token":   r.PostForm.Get("token"),
			"user":    r.PostForm.Get("user"),
			"title":   r.PostForm.Get("title"),
			"message": r.PostForm.Get("message"),
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":1}`))
	}))
	defer srv.Close()

	c := NewClient("apptoken", srv.URL)
	err := c.Deliver(context.Background(), model.Delivery{
		Destination: model.Destination{Kind: model.KindPushover, ID: "userkey"},
		Payload:     model.Payload{Content: "stretch", MentionRole: "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"token":   "apptoken",
		"user":    "userkey",
		"title":   "Reminder",
		"message": "stretch",
	}, form)
}

func TestDeliverAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"user":"invalid"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewClient("apptoken", srv.URL).Deliver(context.Background(), model.Delivery{
		Destination: model.Destination{Kind: model.KindPushover, ID: "nope"},
		Payload:     model.Payload{Content: "x"},
	})
	assert.ErrorIs(t, err, sink.ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "400")
}

func TestDeliverWithoutToken(t *testing.T) {
	err := NewClient("", "").Deliver(context.Background(), model.Delivery{
		Destination: model.Destination{Kind: model.KindPushover, ID: "u"},
		Payload:     model.Payload{Content: "x"},
	})
	assert.ErrorIs(t, err, sink.ErrInvalidDestination)
}
