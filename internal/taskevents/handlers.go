package taskevents

import (
	"context"
	"fmt"

	"github.com/rmacdonaldsmith/tasknotify-go/internal/router"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/broker"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/notify"
	"github.com/rs/zerolog"
)

const (
	// TitleExpiring is the title of expiring notifications
	TitleExpiring = "Task Expiring"
	// TitleExpired is the title of expired notifications
	TitleExpired = "Task Expired"
)

// NotificationFor builds the notification for an event of kind k. A malformed
// payload still yields a notification; the decode error is returned alongside it.
func NotificationFor(k Kind, data []byte) (notify.Notification, error) {
	name, err := TaskName(data)

	n := notify.Notification{Text: name}
	switch k {
	case KindExpiring:
		n.Severity = notify.SeverityWarning
		n.Title = TitleExpiring
	case KindExpired:
		n.Severity = notify.SeverityError
		n.Title = TitleExpired
	default:
		return notify.Notification{}, fmt.Errorf("unknown event kind %q", k)
	}
	return n, err
}

// Register installs the expiring, expired and unknown handlers on r
func Register(r *router.Router, p notify.Presenter, log zerolog.Logger) error {
	log = log.With().Str("component", "taskevents").Logger()

	for _, k := range []Kind{KindExpiring, KindExpired} {
		if err := r.HandleSuffix(k.Suffix(), handler(k, p, log)); err != nil {
			return fmt.Errorf("register %s handler: %w", k, err)
		}
	}

	r.HandleUnknown(router.HandlerFunc(func(_ context.Context, msg *broker.Msg) error {
		log.Warn().
			Str("subject", msg.Subject).
			Int("size", len(msg.Data)).
			Msg("dropped unknown message")
		return nil
	}))
	return nil
}

func handler(k Kind, p notify.Presenter, log zerolog.Logger) router.Handler {
	return router.HandlerFunc(func(_ context.Context, msg *broker.Msg) error {
		n, err := NotificationFor(k, msg.Data)
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("showing placeholder for malformed task event")
		}
		p.Show(n)
		return nil
	})
}
