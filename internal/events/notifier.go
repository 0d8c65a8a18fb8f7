package events

import (
	"github.com/sirupsen/logrus"

	"github.com/estatehub/catalog/internal/models"
)

// Notifier hands accepted mutations to the hub. It holds no state
// beyond the hub reference, performs no filtering and never retries;
// a broadcast problem is logged and swallowed so the write path stays
// fail-open.
type Notifier struct {
	hub    *Hub
	logger *logrus.Logger
}

func NewNotifier(hub *Hub, logger *logrus.Logger) *Notifier {
	return &Notifier{hub: hub, logger: logger}
}

func (n *Notifier) Notify(event models.ChangeEvent) {
	n.hub.Broadcast(event)
	n.logger.WithFields(logrus.Fields{
		"event_type":  event.Type,
		"property_id": event.ID,
		"listeners":   n.hub.Len(),
	}).Debug("Change event broadcast")
}
