package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dashrpc/rpcerr"
	"dashrpc/server"
	"dashrpc/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sendItems(ids ...string) server.StreamHandler {
	return func(ctx context.Context, data []byte, send func([]byte) error) error {
		for _, id := range ids {
			if err := send([]byte(fmt.Sprintf(`{"id":%q}`, id))); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestCollectInOrder(t *testing.T) {
	url := startServer(t, func(svr *server.Server) {
		svr.HandleStream("chats.getAll", sendItems("a", "b", "c"))
		svr.HandleStream("chats.none", sendItems())
	})
	c := newClient(t, &countingDialer{url: url})

	items, err := Collect[item](context.Background(), c, "chats.getAll", nil, Propagate)
	require.NoError(t, err)
	assert.Equal(t, []item{{"a"}, {"b"}, {"c"}}, items)

	items, err = Collect[item](context.Background(), c, "chats.none", nil, Propagate)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestCollectSkipsMalformedItems(t *testing.T) {
	url := startServer(t, func(svr *server.Server) {
		svr.HandleStream("chats.getAll", func(ctx context.Context, data []byte, send func([]byte) error) error {
			send([]byte(`{"id":"a"}`))
			send([]byte(`not json`))
			send([]byte(`{}`))
			send([]byte(`{"id":"b"}`))
			return nil
		})
	})
	c := newClient(t, &countingDialer{url: url})

	items, err := Collect[item](context.Background(), c, "chats.getAll", nil, Propagate)
	require.NoError(t, err)
	assert.Equal(t, []item{{"a"}, {"b"}}, items)
}

func TestCollectStreamFailure(t *testing.T) {
	url := startServer(t, func(svr *server.Server) {
		svr.HandleStream("chats.getAll", func(ctx context.Context, data []byte, send func([]byte) error) error {
			send([]byte(`{"id":"a"}`))
			send([]byte(`{"id":"b"}`))
			return errors.New("feed broken")
		})
	})
	c := newClient(t, &countingDialer{url: url})

	// Items received before the failure are discarded, not returned.
	items, err := Collect[item](context.Background(), c, "chats.getAll", nil, DegradeToEmpty)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	items, err = Collect[item](context.Background(), c, "chats.getAll", nil, Propagate)
	assert.Nil(t, items)
	require.True(t, rpcerr.IsConnection(err), "got %v", err)
	var remote *transport.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "feed broken", remote.Message)
}

func TestCollectConnectFailure(t *testing.T) {
	c := newClient(t, &countingDialer{fail: errors.New("connection refused")})

	items, err := Collect[item](context.Background(), c, "chats.getAll", nil, DegradeToEmpty)
	require.NoError(t, err)
	assert.Equal(t, []item{}, items)

	_, err = Collect[item](context.Background(), c, "chats.getAll", nil, Propagate)
	assert.True(t, rpcerr.IsConnection(err))
}

func TestCollectCancelledContextIsNotMasked(t *testing.T) {
	cancelled := make(chan struct{})
	url := startServer(t, func(svr *server.Server) {
		svr.HandleStream("chats.getAll", func(ctx context.Context, data []byte, send func([]byte) error) error {
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		})
	})
	c := newClient(t, &countingDialer{url: url})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Collect[item](ctx, c, "chats.getAll", nil, DegradeToEmpty)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("server stream was not cancelled")
	}
}

func TestSlowSubscriberDoesNotStallOtherCalls(t *testing.T) {
	sent := make(chan struct{})
	url := startServer(t, func(svr *server.Server) {
		svr.HandleStream("chats.streamMessages", func(ctx context.Context, data []byte, send func([]byte) error) error {
			for i := 0; i < 100; i++ {
				if err := send([]byte(fmt.Sprintf(`{"id":"m%d"}`, i))); err != nil {
					return err
				}
			}
			close(sent)
			<-ctx.Done()
			return nil
		})
		svr.Handle("echo", func(ctx context.Context, data []byte) ([]byte, error) {
			return data, nil
		})
	})
	c := newClient(t, &countingDialer{url: url})

	gate := make(chan struct{})
	var mu sync.Mutex
	var got []string
	sub, err := Subscribe(context.Background(), c, "chats.streamMessages", map[string]string{"chatId": "c1"},
		func(it item) {
			<-gate
			mu.Lock()
			got = append(got, it.ID)
			mu.Unlock()
		}, nil)
	require.NoError(t, err)
	defer sub.Close()

	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("stream items not sent")
	}

	// The subscriber is stuck in its first callback; an unrelated call still completes.
	start := time.Now()
	reply, err := c.RequestResponse(context.Background(), "echo", []byte("ping"), Timeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "ping", string(reply))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(gate)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "m0", got[0])
	assert.Equal(t, "m99", got[99])
	mu.Unlock()
}

func TestSubscribePushesItems(t *testing.T) {
	cancelled := make(chan struct{})
	url := startServer(t, func(svr *server.Server) {
		svr.HandleStream("chats.streamMessages", func(ctx context.Context, data []byte, send func([]byte) error) error {
			send([]byte(`{"id":"m1"}`))
			send([]byte(`{"id":"m2"}`))
			<-ctx.Done()
			close(cancelled)
			return nil
		})
	})
	c := newClient(t, &countingDialer{url: url})

	var mu sync.Mutex
	var got []item
	two := make(chan struct{})
	sub, err := Subscribe(context.Background(), c, "chats.streamMessages", map[string]string{"chatId": "c1"},
		func(it item) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, it)
			if len(got) == 2 {
				close(two)
			}
		},
		func(err error) { t.Errorf("unexpected stream error: %v", err) })
	require.NoError(t, err)

	select {
	case <-two:
	case <-time.After(time.Second):
		t.Fatal("items not pushed")
	}
	sub.Close()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("server stream was not cancelled")
	}
	<-sub.Done()
	assert.NoError(t, sub.Err())
	mu.Lock()
	assert.Equal(t, []item{{"m1"}, {"m2"}}, got)
	mu.Unlock()
}

func TestSubscribeReportsFailureOnce(t *testing.T) {
	url := startServer(t, func(svr *server.Server) {
		svr.HandleStream("chats.streamMessages", func(ctx context.Context, data []byte, send func([]byte) error) error {
			send([]byte(`{"id":"m1"}`))
			return errors.New("chat deleted")
		})
	})
	c := newClient(t, &countingDialer{url: url})

	var items []item
	var failures []error
	sub, err := Subscribe(context.Background(), c, "chats.streamMessages", nil,
		func(it item) { items = append(items, it) },
		func(err error) { failures = append(failures, err) })
	require.NoError(t, err)

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not end")
	}
	assert.Equal(t, []item{{"m1"}}, items)
	require.Len(t, failures, 1)
	assert.True(t, rpcerr.IsConnection(failures[0]))
	assert.Equal(t, failures[0], sub.Err())
}

func TestSubscribeCompletesSilently(t *testing.T) {
	url := startServer(t, func(svr *server.Server) {
		svr.HandleStream("chats.streamMessages", sendItems("m1"))
	})
	c := newClient(t, &countingDialer{url: url})

	sub, err := Subscribe(context.Background(), c, "chats.streamMessages", nil,
		func(item) {},
		func(err error) { t.Errorf("unexpected stream error: %v", err) })
	require.NoError(t, err)
	<-sub.Done()
	assert.NoError(t, sub.Err())
}
