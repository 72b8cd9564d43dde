package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedSince(t *testing.T) {
	feed := NewFeed(10)
	ctx := context.Background()
	a := New(KindSuccess, "a")
	b := New(KindError, "b")
	feed.Notify(ctx, a)
	feed.Notify(ctx, b)

	assert.Len(t, feed.Since(""), 2)
	got := feed.Since(a.ID)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Message)
	assert.Empty(t, feed.Since(b.ID))
}

func TestFeedDropsOldest(t *testing.T) {
	feed := NewFeed(2)
	ctx := context.Background()
	for _, msg := range []string{"1", "2", "3"} {
		feed.Notify(ctx, New(KindSuccess, msg))
	}
	got := feed.Since("")
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Message)
	assert.Equal(t, "3", got[1].Message)
}

func TestLogSinkWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	n := New(KindError, "transaction reverted")
	n.TxHash = "0xabc"
	LogSink{Log: logrus.NewEntry(logger)}.Notify(context.Background(), n)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, "0xabc", line["tx"])
	assert.Equal(t, "transaction reverted", line["msg"])
}

func TestWebhookSinkPostsJSON(t *testing.T) {
	received := make(chan Notification, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n Notification
		_ = json.NewDecoder(r.Body).Decode(&n)
		received <- n
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, time.Second, logrus.NewEntry(logrus.New()))
	sent := New(KindSuccess, "Successfully redeemed")
	sink.Notify(context.Background(), sent)

	select {
	case got := <-received:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, KindSuccess, got.Kind)
	case <-time.After(time.Second):
		t.Fatal("webhook not called")
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewFeed(5), NewFeed(5)
	Multi{a, nil, b}.Notify(context.Background(), New(KindSuccess, "x"))
	assert.Len(t, a.Since(""), 1)
	assert.Len(t, b.Since(""), 1)
}
