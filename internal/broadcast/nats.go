package broadcast

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nimbuside/nimbus/internal/provider"
)

// NATSPublisher fans manager lifecycle events out to NATS so other
// services (editor gateway, activity feeds) can consume them without
// holding a reference to the manager.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher connects to NATS with the reconnect policy used
// throughout nimbus.
func NewNATSPublisher(natsURL string) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

// Handler returns an event handler suitable for Emitter.SubscribeAll.
// Publish failures are logged and dropped; event fan-out is best effort.
func (p *NATSPublisher) Handler() provider.Handler {
	return func(ev provider.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("broadcast: marshal %s event: %v", ev.Type, err)
			return
		}
		subject := fmt.Sprintf("sandbox.events.%s", ev.Provider)
		if err := p.nc.Publish(subject, data); err != nil {
			log.Printf("broadcast: publish %s: %v", subject, err)
		}
	}
}

// Close flushes and closes the NATS connection.
func (p *NATSPublisher) Close() {
	_ = p.nc.Flush()
	p.nc.Close()
}
