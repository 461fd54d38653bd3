package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rmacdonaldsmith/tasknotify-go/internal/app"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/taskevents"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/notify"
	"github.com/spf13/cobra"
)

func newPublishCommand() *cobra.Command {
	var (
		kind     string
		taskName string
		taskID   int
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a task event",
		Long: `Publish an expiring or expired task event. The event goes to the user's
subject when --user-id is set, otherwise to the broadcast subject.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), cmd.OutOrStdout(), taskevents.Kind(kind), taskevents.Task{ID: taskID, Name: taskName})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(taskevents.KindExpiring), "Event kind (expiring or expired)")
	cmd.Flags().StringVar(&taskName, "task-name", "", "Task name (required)")
	cmd.Flags().IntVar(&taskID, "task-id", 0, "Task id")
	if err := cmd.MarkFlagRequired("task-name"); err != nil {
		panic(fmt.Sprintf("Failed to mark task-name as required: %v", err))
	}

	return cmd
}

func runPublish(ctx context.Context, out io.Writer, kind taskevents.Kind, task taskevents.Task) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid kind %q (want %s or %s)", kind, taskevents.KindExpiring, taskevents.KindExpired)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pubCfg := cfg
	if pubCfg.Subject == "" && pubCfg.UserID == "" {
		// Listen on the broadcast subject so the client connects
		pubCfg.Subject = taskevents.BroadcastPattern
	}

	client, err := app.New(pubCfg, app.Deps{Presenter: notify.PresenterFunc(func(notify.Notification) {}), Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	task.UserID = pubCfg.UserID
	if err := client.PublishTask(kind, task); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	subj, _ := taskevents.SubjectFor(pubCfg.UserID, kind)
	fmt.Fprintf(out, "✅ Published %s event for %q to %s\n", kind, task.Name, subj)
	return nil
}
