package websocket

import (
	"encoding/json"
	"log"

	"tabel/internal/service"
)

// Notifier adapts the Hub to the service layer's notification port.
// Broadcasts are fire-and-forget: a full hub drops the event rather than
// blocking the request.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

func (n *Notifier) Broadcast(event service.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal event %s: %v", event.Type, err)
		return
	}
	select {
	case n.hub.Broadcast <- payload:
	default:
		log.Printf("notification dropped: hub busy (type=%s)", event.Type)
	}
}
