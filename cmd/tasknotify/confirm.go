package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rmacdonaldsmith/tasknotify-go/internal/app"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/presenter"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/fragment"
	"github.com/spf13/cobra"
)

func newConfirmCommand() *cobra.Command {
	var (
		page   string
		target string
	)

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Ask a confirmation dialog declared by a page",
		Long: `Fetch a page fragment from the origin, register the dialogs it declares
and ask the one named by --target. Prints "yes" or "no" and exits 1 on "no".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			surface := &presenter.TerminalDialog{Logger: logger, Interrupted: cancel}
			return runConfirm(ctx, cmd.OutOrStdout(), page, target, surface)
		},
	}

	cmd.Flags().StringVar(&page, "page", "", "Page path declaring the dialog (required)")
	cmd.Flags().StringVar(&target, "target", "", "Dialog selector, for example #delete-task (required)")
	for _, flag := range []string{"page", "target"} {
		if err := cmd.MarkFlagRequired(flag); err != nil {
			panic(fmt.Sprintf("Failed to mark %s as required: %v", flag, err))
		}
	}

	return cmd
}

func runConfirm(ctx context.Context, out io.Writer, page, target string, surface presenter.Surface) error {
	fragments, err := fragment.NewClient(fragment.Config{BaseURL: cfg.Origin, Token: cfg.Token})
	if err != nil {
		return fmt.Errorf("failed to create fragment client: %w", err)
	}

	dialogs := presenter.NewDialogs(presenter.DialogsOptions{Surface: surface, Logger: logger})
	client, err := app.New(cfg, app.Deps{
		Presenter: linePresenter(os.Stderr),
		Dialogs:   dialogs,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()
	fragments.AddObserver(client.Observer())

	frag, err := fragments.Get(ctx, page)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", page, err)
	}
	if client.OnFragmentInserted(frag.Selection()) == 0 {
		return fmt.Errorf("%s declares no dialogs", page)
	}

	answer, err := client.ShowConfirmModal(target)
	if err != nil {
		return err
	}
	ok, err := answer.Wait(ctx)
	if err != nil {
		return errors.Join(presenter.ErrInterrupted, err)
	}

	if !ok {
		fmt.Fprintln(out, "no")
		return errDeclined
	}
	fmt.Fprintln(out, "yes")
	return nil
}
