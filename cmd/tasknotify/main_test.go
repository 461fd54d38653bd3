package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/tasknotify-go/internal/brokertest"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/config"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/presenter"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/taskevents"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useConfig installs a configuration loaded from environ for the duration of the test
func useConfig(t *testing.T, environ map[string]string) {
	t.Helper()

	loaded, err := config.LoadFrom(environ)
	require.NoError(t, err)

	originalCfg, originalLogger := cfg, logger
	cfg, logger = loaded, zerolog.Nop()
	t.Cleanup(func() { cfg, logger = originalCfg, originalLogger })
}

func TestMainCommandHelp(t *testing.T) {
	rootCmd := newRootCommand()

	output := &bytes.Buffer{}
	rootCmd.SetOut(output)
	rootCmd.SetArgs([]string{"--help"})

	err := rootCmd.Execute()
	require.NoError(t, err)

	helpOutput := output.String()
	assert.Contains(t, helpOutput, "listen")
	assert.Contains(t, helpOutput, "confirm")
	assert.Contains(t, helpOutput, "publish")
	assert.Contains(t, helpOutput, "endpoint")
	assert.Contains(t, helpOutput, "--user-id")
}

func TestApplyFlags(t *testing.T) {
	rootCmd := newRootCommand()

	err := rootCmd.ParseFlags([]string{"--origin", "https://tasks.example.com", "--user-id", "42", "--connect-timeout", "10s"})
	require.NoError(t, err)

	c, err := config.LoadFrom(map[string]string{
		"TASKNOTIFY_HUB":   "/ws",
		"TASKNOTIFY_TOKEN": "from-env",
	})
	require.NoError(t, err)
	applyFlags(rootCmd, &c)

	assert.Equal(t, "https://tasks.example.com", c.Origin)
	assert.Equal(t, "42", c.UserID)
	assert.Equal(t, 10*time.Second, c.ConnectTimeout)

	// Flags that were not set keep the environment values
	assert.Equal(t, "/ws", c.Hub)
	assert.Equal(t, "from-env", c.Token)
}

func TestEndpointCommand(t *testing.T) {
	useConfig(t, map[string]string{"TASKNOTIFY_ORIGIN": "https://tasks.example.com"})

	cmd := newEndpointCommand()
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "wss://tasks.example.com/hub/v1\n", output.String())
}

func TestRunPublish(t *testing.T) {
	t.Run("per_user_subject", func(t *testing.T) {
		srv := brokertest.NewServer(t, brokertest.WithToken("s3cret"))
		useConfig(t, map[string]string{
			"TASKNOTIFY_ORIGIN":  srv.Origin(),
			"TASKNOTIFY_HUB":     "/ws",
			"TASKNOTIFY_TOKEN":   "s3cret",
			"TASKNOTIFY_USER_ID": "42",
		})

		output := &bytes.Buffer{}
		err := runPublish(context.Background(), output, taskevents.KindExpired, taskevents.Task{ID: 3, Name: "Pay rent"})
		require.NoError(t, err)
		assert.Contains(t, output.String(), "task.42.expired")

		published := srv.WaitForPublished(t, 1)
		assert.Equal(t, "task.42.expired", published[0].Subject)

		var ev taskevents.Event
		require.NoError(t, json.Unmarshal(published[0].Data, &ev))
		require.NotNil(t, ev.Task)
		assert.Equal(t, "Pay rent", ev.Task.Name)
		assert.Equal(t, 3, ev.Task.ID)
		assert.Equal(t, "42", ev.Task.UserID)
	})

	t.Run("broadcast_without_user", func(t *testing.T) {
		srv := brokertest.NewServer(t, brokertest.WithUserPass("ui", "pw"))
		useConfig(t, map[string]string{
			"TASKNOTIFY_ORIGIN": srv.Origin(),
			"TASKNOTIFY_HUB":    "/ws",
			"TASKNOTIFY_USER":   "ui",
			"TASKNOTIFY_PASS":   "pw",
		})

		err := runPublish(context.Background(), &bytes.Buffer{}, taskevents.KindExpiring, taskevents.Task{Name: "Standup"})
		require.NoError(t, err)

		published := srv.WaitForPublished(t, 1)
		assert.Equal(t, "tasks.ui.expiring", published[0].Subject)
	})

	t.Run("invalid_kind", func(t *testing.T) {
		err := runPublish(context.Background(), &bytes.Buffer{}, taskevents.Kind("archived"), taskevents.Task{Name: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid kind")
	})
}

const deletePage = `<div class="modal" id="delete-task">
  <h5 class="modal-title">Delete task?</h5>
  <div class="modal-body">This cannot be undone.</div>
</div>`

func answering(answer bool) presenter.Surface {
	return presenter.SurfaceFunc(func(m *presenter.Modal, reply func(presenter.ConfirmResult)) {
		reply(presenter.ConfirmResult{Answer: answer})
	})
}

func TestRunConfirm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tasks/1":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(deletePage))
		case "/empty":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<p>nothing here</p>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	useConfig(t, map[string]string{"TASKNOTIFY_ORIGIN": server.URL})

	t.Run("yes", func(t *testing.T) {
		output := &bytes.Buffer{}
		err := runConfirm(context.Background(), output, "/tasks/1", "#delete-task", answering(true))
		require.NoError(t, err)
		assert.Equal(t, "yes\n", output.String())
	})

	t.Run("no", func(t *testing.T) {
		output := &bytes.Buffer{}
		err := runConfirm(context.Background(), output, "/tasks/1", "#delete-task", answering(false))
		assert.ErrorIs(t, err, errDeclined)
		assert.Equal(t, "no\n", output.String())
	})

	t.Run("unknown_target", func(t *testing.T) {
		err := runConfirm(context.Background(), &bytes.Buffer{}, "/tasks/1", "#archive-task", answering(true))
		assert.ErrorIs(t, err, presenter.ErrUnknownDialog)
	})

	t.Run("no_dialogs", func(t *testing.T) {
		err := runConfirm(context.Background(), &bytes.Buffer{}, "/empty", "#delete-task", answering(true))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declares no dialogs")
	})

	t.Run("missing_page", func(t *testing.T) {
		err := runConfirm(context.Background(), &bytes.Buffer{}, "/missing", "#delete-task", answering(true))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to fetch")
	})

	t.Run("interrupted", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		silent := presenter.SurfaceFunc(func(*presenter.Modal, func(presenter.ConfirmResult)) { cancel() })

		err := runConfirm(ctx, &bytes.Buffer{}, "/tasks/1", "#delete-task", silent)
		assert.ErrorIs(t, err, presenter.ErrInterrupted)
	})
}
