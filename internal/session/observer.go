package session

import "github.com/dgallion1/pagewatch/internal/reconcile"

// NotificationKind names a lifecycle notification.
type NotificationKind string

const (
	NotifyStarted   NotificationKind = "started"
	NotifySnapshot  NotificationKind = "snapshot"
	NotifyCompleted NotificationKind = "completed"
	NotifyFailed    NotificationKind = "failed"
)

// Notification is delivered to observers after every state change. Reason is
// set only for failures.
type Notification struct {
	Kind      NotificationKind   `json:"kind"`
	SessionID string             `json:"session_id,omitempty"`
	Snapshot  reconcile.Snapshot `json:"snapshot"`
	Reason    string             `json:"reason,omitempty"`
}

// Observer receives notifications synchronously on the session goroutine.
// Implementations must return quickly and must not call Cancel, Start,
// LoadDocument or Reset from Notify.
type Observer interface {
	Notify(Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Notification)

func (f ObserverFunc) Notify(n Notification) { f(n) }

func (c *Controller) notify(n Notification) {
	c.mu.Lock()
	obs := make([]Observer, 0, len(c.observers))
	for _, o := range c.observers {
		obs = append(obs, o)
	}
	c.mu.Unlock()

	for _, o := range obs {
		o.Notify(n)
	}
}
