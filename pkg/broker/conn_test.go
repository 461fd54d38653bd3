package broker_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nats-io/nats.go"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/brokertest"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = broker.Identity{Token: "s3cret"}

func testOptions() broker.Options {
	opts := broker.DefaultOptions()
	opts.ConnectTimeout = 2 * time.Second
	opts.ReconnectDelay = 10 * time.Millisecond
	opts.MaxReconnectDelay = 50 * time.Millisecond
	return opts
}

func connect(t *testing.T, srv *brokertest.Server, opts broker.Options) *broker.Conn {
	t.Helper()

	conn, err := broker.Connect(context.Background(), srv.URL, testIdentity, opts)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func next(t *testing.T, sub *broker.Subscription) *broker.Msg {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	return msg
}

func nextErr(t *testing.T, sub *broker.Subscription) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for {
		_, err := sub.Next(ctx)
		if err != nil {
			return err
		}
	}
}

func TestConnect(t *testing.T) {
	t.Run("sends_token_and_client_name", func(t *testing.T) {
		srv := brokertest.NewServer(t, brokertest.WithToken("s3cret"))
		conn := connect(t, srv, testOptions())

		assert.Equal(t, broker.StatusConnected, conn.Status())
		assert.Equal(t, srv.URL, conn.URL())

		info := conn.ServerInfo()
		assert.Equal(t, "brokertest", info.ServerName)
		assert.NotEmpty(t, info.ServerID)
		assert.True(t, info.Headers)
		assert.Positive(t, info.MaxPayload)

		clients := srv.Clients()
		require.Len(t, clients, 1)
		assert.Equal(t, "ui", clients[0].Name)
		assert.Equal(t, "go", clients[0].Lang)
	})

	t.Run("presents_jwt_as_token", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "7"}).
			SignedString([]byte("test-secret"))
		require.NoError(t, err)

		srv := brokertest.NewServer(t, brokertest.WithToken(token))
		conn, err := broker.Connect(context.Background(), srv.URL, broker.Identity{Token: token}, testOptions())
		require.NoError(t, err)
		defer conn.Close()

		assert.Len(t, srv.Clients(), 1)
	})

	t.Run("sends_user_and_pass", func(t *testing.T) {
		srv := brokertest.NewServer(t, brokertest.WithUserPass("ui", "S3c_r3t!"))
		id := broker.Identity{User: "ui", Pass: "S3c_r3t!", Name: "tasks"}
		conn, err := broker.Connect(context.Background(), srv.URL, id, testOptions())
		require.NoError(t, err)
		defer conn.Close()

		clients := srv.Clients()
		require.Len(t, clients, 1)
		assert.Equal(t, "tasks", clients[0].Name)
	})

	t.Run("rejects_invalid_identity", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		_, err := broker.Connect(context.Background(), srv.URL, broker.Identity{}, testOptions())
		assert.ErrorIs(t, err, broker.ErrNoCredentials)
		assert.Zero(t, srv.Dials())
	})

	t.Run("authorization_violation_is_not_retried", func(t *testing.T) {
		srv := brokertest.NewServer(t, brokertest.WithToken("other"))

		_, err := broker.Connect(context.Background(), srv.URL, testIdentity, testOptions())
		require.Error(t, err)
		assert.ErrorIs(t, err, broker.ErrAuthorization)

		var connErr *broker.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, 1, connErr.Attempts)
		assert.Equal(t, srv.URL, connErr.URL)
		assert.Equal(t, 1, srv.Dials())
	})

	t.Run("fails_fast_without_wait_for_first_connect", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		srv.SetAvailable(false)
		opts := testOptions()
		opts.WaitForFirstConnect = false

		_, err := broker.Connect(context.Background(), srv.URL, testIdentity, opts)

		var connErr *broker.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, 1, connErr.Attempts)
		assert.Equal(t, 1, srv.Dials())
	})

	t.Run("retries_until_server_is_available", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		srv.SetAvailable(false)
		go func() {
			time.Sleep(100 * time.Millisecond)
			srv.SetAvailable(true)
		}()

		conn := connect(t, srv, testOptions())
		assert.Equal(t, broker.StatusConnected, conn.Status())
		assert.Greater(t, srv.Dials(), 1)
	})

	t.Run("gives_up_after_max_attempts", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		srv.SetAvailable(false)
		opts := testOptions()
		opts.MaxReconnectAttempts = 1

		_, err := broker.Connect(context.Background(), srv.URL, testIdentity, opts)
		assert.ErrorIs(t, err, broker.ErrAttemptsExhausted)

		var connErr *broker.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, 2, connErr.Attempts)
	})

	t.Run("times_out", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		srv.SetAvailable(false)
		opts := testOptions()
		opts.ConnectTimeout = 150 * time.Millisecond

		start := time.Now()
		_, err := broker.Connect(context.Background(), srv.URL, testIdentity, opts)
		assert.ErrorIs(t, err, broker.ErrConnectTimeout)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestSubscription(t *testing.T) {
	t.Run("delivers_messages_in_order", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		conn := connect(t, srv, testOptions())

		sub, err := conn.Subscribe("task.42.>")
		require.NoError(t, err)
		assert.Equal(t, "task.42.>", sub.Pattern())
		srv.WaitForSubscriptions(t, 1)

		for i := range 50 {
			require.NoError(t, srv.Publish("task.42.expiring", []byte(fmt.Sprintf("%d", i))))
		}
		require.NoError(t, srv.Publish("task.43.expiring", []byte("other user")))

		for i := range 50 {
			msg := next(t, sub)
			assert.Equal(t, "task.42.expiring", msg.Subject)
			assert.Equal(t, fmt.Sprintf("%d", i), string(msg.Data))
		}
		assert.Zero(t, sub.Pending())
	})

	t.Run("each_subscribe_is_a_fresh_stream", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		conn := connect(t, srv, testOptions())

		first, err := conn.Subscribe("task.>")
		require.NoError(t, err)
		second, err := conn.Subscribe("task.>")
		require.NoError(t, err)
		srv.WaitForSubscriptions(t, 2)

		require.NoError(t, srv.Publish("task.1.expired", []byte("x")))

		assert.Equal(t, "x", string(next(t, first).Data))
		assert.Equal(t, "x", string(next(t, second).Data))
	})

	t.Run("decodes_json_payload", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		conn := connect(t, srv, testOptions())

		sub, err := conn.Subscribe("task.*.expired")
		require.NoError(t, err)
		srv.WaitForSubscriptions(t, 1)

		srv.PublishJSON(t, "task.9.expired", map[string]any{"name": "Report"})

		var payload struct {
			Name string `json:"name"`
		}
		require.NoError(t, next(t, sub).JSON(&payload))
		assert.Equal(t, "Report", payload.Name)
	})

	t.Run("keeps_headers", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		conn := connect(t, srv, testOptions())

		sub, err := conn.Subscribe("a.>")
		require.NoError(t, err)
		srv.WaitForSubscriptions(t, 1)

		srv.PublishMsg(t, &nats.Msg{
			Subject: "a.b",
			Header:  nats.Header{"K": []string{"v"}},
			Data:    []byte("hello"),
		})

		msg := next(t, sub)
		assert.Equal(t, "a.b", msg.Subject)
		assert.Equal(t, "v", msg.Header.Get("K"))
		assert.Equal(t, "hello", string(msg.Data))
	})

	t.Run("messages_iterator", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		conn := connect(t, srv, testOptions())

		sub, err := conn.Subscribe("a.b")
		require.NoError(t, err)
		srv.WaitForSubscriptions(t, 1)

		require.NoError(t, srv.Publish("a.b", []byte("1")))
		require.NoError(t, srv.Publish("a.b", []byte("2")))

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		var got []string
		for msg, err := range sub.Messages(ctx) {
			require.NoError(t, err)
			got = append(got, string(msg.Data))
			if len(got) == 2 {
				break
			}
		}
		assert.Equal(t, []string{"1", "2"}, got)
	})

	t.Run("unsubscribe_ends_stream", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		conn := connect(t, srv, testOptions())

		sub, err := conn.Subscribe("a.b")
		require.NoError(t, err)
		srv.WaitForSubscriptions(t, 1)

		require.NoError(t, sub.Unsubscribe())
		assert.ErrorIs(t, nextErr(t, sub), broker.ErrSubscriptionClosed)

		require.Eventually(t, func() bool { return srv.Subscriptions() == 0 }, 3*time.Second, 5*time.Millisecond)
	})

	t.Run("rejects_invalid_pattern", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		conn := connect(t, srv, testOptions())

		_, err := conn.Subscribe("task..x")
		assert.Error(t, err)
		_, err = conn.Subscribe("task.>.x")
		assert.Error(t, err)
	})
}

func TestPublish(t *testing.T) {
	srv := brokertest.NewServer(t)
	conn := connect(t, srv, testOptions())

	sub, err := conn.Subscribe("task.42.>")
	require.NoError(t, err)
	srv.WaitForSubscriptions(t, 1)

	require.NoError(t, conn.PublishJSON("task.42.expired", map[string]string{"name": "Report"}))

	msg := next(t, sub)
	assert.Equal(t, "task.42.expired", msg.Subject)
	assert.JSONEq(t, `{"name":"Report"}`, string(msg.Data))

	published := srv.WaitForPublished(t, 1)
	assert.Equal(t, "task.42.expired", published[0].Subject)

	assert.Error(t, conn.Publish("task.*.expired", nil))
	assert.ErrorIs(t, conn.Publish("big", make([]byte, 2<<20)), broker.ErrMaxPayload)
	assert.NoError(t, conn.Flush())
}

func TestReconnect(t *testing.T) {
	t.Run("resubscribes_after_drop", func(t *testing.T) {
		srv := brokertest.NewServer(t)

		disconnected := make(chan error, 1)
		reconnected := make(chan string, 1)
		opts := testOptions()
		opts.DisconnectHandler = func(err error) { disconnected <- err }
		opts.ReconnectHandler = func(url string) { reconnected <- url }

		conn := connect(t, srv, opts)
		sub, err := conn.Subscribe("task.42.>")
		require.NoError(t, err)
		srv.WaitForSubscriptions(t, 1)

		srv.DropConnections()

		select {
		case <-disconnected:
		case <-time.After(3 * time.Second):
			t.Fatal("disconnect handler not called")
		}
		select {
		case url := <-reconnected:
			assert.Equal(t, srv.URL, url)
		case <-time.After(3 * time.Second):
			t.Fatal("reconnect handler not called")
		}

		srv.WaitForSubscriptions(t, 1)
		assert.Equal(t, broker.StatusConnected, conn.Status())
		assert.Equal(t, 2, srv.Dials())

		require.NoError(t, srv.Publish("task.42.expired", []byte("after")))
		assert.Equal(t, "after", string(next(t, sub).Data))
	})

	t.Run("close_from_disconnect_handler", func(t *testing.T) {
		srv := brokertest.NewServer(t)

		var conn *broker.Conn
		ready := make(chan struct{})
		returned := make(chan struct{})
		opts := testOptions()
		opts.DisconnectHandler = func(error) {
			<-ready
			conn.Close()
			close(returned)
		}

		conn = connect(t, srv, opts)
		close(ready)
		srv.DropConnections()

		select {
		case <-returned:
		case <-time.After(5 * time.Second):
			t.Fatal("Close called from the disconnect handler did not return")
		}
		assert.Equal(t, broker.StatusClosed, conn.Status())
		select {
		case <-conn.Done():
		default:
			t.Fatal("connection not stopped after Close")
		}
	})

	t.Run("close_from_reconnect_handler", func(t *testing.T) {
		srv := brokertest.NewServer(t)

		var conn *broker.Conn
		ready := make(chan struct{})
		returned := make(chan struct{})
		opts := testOptions()
		opts.ReconnectHandler = func(string) {
			<-ready
			conn.Close()
			close(returned)
		}

		conn = connect(t, srv, opts)
		close(ready)
		srv.DropConnections()

		select {
		case <-returned:
		case <-time.After(5 * time.Second):
			t.Fatal("Close called from the reconnect handler did not return")
		}
		assert.Equal(t, broker.StatusClosed, conn.Status())
	})

	t.Run("subscribe_while_reconnecting", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		conn := connect(t, srv, testOptions())

		srv.SetAvailable(false)
		srv.DropConnections()
		require.Eventually(t, func() bool {
			return conn.Status() == broker.StatusReconnecting
		}, 3*time.Second, 5*time.Millisecond)

		sub, err := conn.Subscribe("a.b")
		require.NoError(t, err)

		srv.SetAvailable(true)
		srv.WaitForSubscriptions(t, 1)

		require.NoError(t, srv.Publish("a.b", []byte("late")))
		assert.Equal(t, "late", string(next(t, sub).Data))
	})

	t.Run("ends_streams_when_attempts_exhausted", func(t *testing.T) {
		srv := brokertest.NewServer(t)
		opts := testOptions()
		opts.MaxReconnectAttempts = 2

		conn := connect(t, srv, opts)
		sub, err := conn.Subscribe("a.b")
		require.NoError(t, err)
		srv.WaitForSubscriptions(t, 1)

		srv.SetAvailable(false)
		srv.DropConnections()

		assert.ErrorIs(t, nextErr(t, sub), broker.ErrAttemptsExhausted)
		select {
		case <-conn.Done():
		case <-time.After(3 * time.Second):
			t.Fatal("connection did not stop")
		}
		assert.Equal(t, broker.StatusClosed, conn.Status())
		assert.ErrorIs(t, conn.Publish("a.b", nil), broker.ErrConnectionClosed)
	})
}

func TestClose(t *testing.T) {
	srv := brokertest.NewServer(t)
	conn, err := broker.Connect(context.Background(), srv.URL, testIdentity, testOptions())
	require.NoError(t, err)

	sub, err := conn.Subscribe("a.b")
	require.NoError(t, err)
	srv.WaitForSubscriptions(t, 1)

	require.NoError(t, srv.Publish("a.b", []byte("queued")))
	require.Eventually(t, func() bool { return sub.Pending() == 1 }, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, broker.StatusClosed, conn.Status())

	// queued messages drain before the terminal error
	assert.Equal(t, "queued", string(next(t, sub).Data))
	err = nextErr(t, sub)
	assert.True(t, errors.Is(err, broker.ErrConnectionClosed), "got %v", err)

	_, err = conn.Subscribe("a.b")
	assert.ErrorIs(t, err, broker.ErrConnectionClosed)
}
