package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"streamwatch/internal/eventbus"
	"streamwatch/internal/watch"
	logx "streamwatch/pkg/logx"
)

// OutcomeAppender records delivery outcomes. Satisfied by store.Store.
type OutcomeAppender interface {
	AppendDeliveryOutcome(ctx context.Context, o watch.DeliveryOutcome) error
}

// Notifier renders a target's template for an item, delivers it, and
// appends exactly one DeliveryOutcome before returning.
type Notifier struct {
	dispatcher *Dispatcher
	outcomes   OutcomeAppender
	bus        eventbus.Bus
	log        logx.Logger
}

// NewNotifier wires the render/deliver/record pipeline. bus may be nil.
func NewNotifier(d *Dispatcher, outcomes OutcomeAppender, bus eventbus.Bus, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{dispatcher: d, outcomes: outcomes, bus: bus, log: log}
}

// Variables builds the substitution set for an item's platform.
func Variables(it *watch.Item) map[string]string {
	if it.Platform == watch.PlatformTwitch {
		return map[string]string{
			"streamer": it.Streamer,
			"title":    it.Title,
			"link":     it.URL,
			"started":  formatTimestamp(it.PublishedAt),
		}
	}
	return map[string]string{
		"title":     it.Title,
		"link":      it.URL,
		"published": formatTimestamp(it.PublishedAt),
	}
}

// Notify delivers the item's rendered message to the target's webhook.
// The delivery error (if any) is returned after the outcome is recorded.
func (n *Notifier) Notify(ctx context.Context, t *watch.Target, it *watch.Item) error {
	msg := Render(t.Template, Variables(it))

	err := n.dispatcher.Deliver(ctx, t.WebhookURL, msg)

	o := watch.DeliveryOutcome{
		ID:        uuid.NewString(),
		TargetID:  t.ID,
		Platform:  it.Platform,
		Type:      it.Type,
		ContentID: it.ContentID,
		Message:   msg,
		SentAt:    time.Now(),
		Status:    watch.StatusSuccess,
	}
	if err != nil {
		o.Status = watch.StatusError
		o.Error = err.Error()
	}
	if aerr := n.outcomes.AppendDeliveryOutcome(ctx, o); aerr != nil {
		n.log.Error("append delivery outcome failed",
			logx.String("target", t.ID), logx.Err(aerr))
	}
	if n.bus != nil {
		n.bus.Publish(eventbus.Event{Type: eventbus.TypeDelivery, Data: o})
	}
	return err
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}
