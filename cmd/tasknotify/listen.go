package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/app"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/presenter"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/notify"
	"github.com/spf13/cobra"
)

func newListenCommand() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Show task notifications as they arrive",
		Long: `Connect to the broker and show task notifications until interrupted.
By default toasts are stacked in a live terminal view (x closes the oldest,
q quits). With --plain every notification is printed as one line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if plain {
				return runListenPlain(cmd.OutOrStdout())
			}
			return runListen()
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Print notifications as lines instead of the live view")

	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// linePresenter prints one line per notification
func linePresenter(w io.Writer) notify.Presenter {
	return notify.PresenterFunc(func(n notify.Notification) {
		n = n.WithDefaults()
		fmt.Fprintf(w, "🔔 [%s] %s: %s\n", n.Severity, n.Title, n.Text)
		if n.HasDetails() {
			fmt.Fprintf(w, "   %s\n", n.Details)
		}
	})
}

func runListenPlain(out io.Writer) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, err := app.New(cfg, app.Deps{Presenter: linePresenter(out), Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Fprintf(out, "🌊 Listening for task notifications on %s (Ctrl+C to stop)\n", cfg.Origin)
	if err := client.Run(ctx); err != nil {
		return fmt.Errorf("notification client failed: %w", err)
	}
	fmt.Fprintln(out, "✅ Stopped.")
	return nil
}

func runListen() error {
	ctx, cancel := signalContext()
	defer cancel()

	region := presenter.NewStackRegion(presenter.StackOptions{})
	toaster := presenter.NewToaster(region, presenter.ToasterOptions{Timeout: cfg.ToastTimeout, Logger: logger})

	client, err := app.New(cfg, app.Deps{Presenter: toaster, Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	view := presenter.NewStackView(region, "🔔 tasknotify")
	view.Status = func() string {
		if s := client.Subject(); s != "" {
			return fmt.Sprintf("%s · %s", client.Status(), s)
		}
		return client.Status()
	}

	program := tea.NewProgram(view, tea.WithContext(ctx))

	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		runErr = client.Run(ctx)
		// Quit the view when the client stops on its own
		program.Quit()
	}()

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		cancel()
		<-done
		return fmt.Errorf("terminal view failed: %w", err)
	}
	cancel()
	<-done

	if runErr != nil {
		return fmt.Errorf("notification client failed: %w", runErr)
	}
	return nil
}
