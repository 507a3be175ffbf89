// Package bus carries live log lines from tailers to websocket clients over
// NATS. With no URL configured an in-process server is started and bound
// to loopback.
package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/ernie/hostlog/internal/domain"
)

const readyTimeout = 5 * time.Second

// Bus publishes and subscribes to per-server log subjects
type Bus struct {
	ns *server.Server // nil when connected to an external server
	nc *nats.Conn
}

// Subject returns the subject live lines for serverID are published on
func Subject(serverID int64) string {
	return fmt.Sprintf("logs.%d", serverID)
}

// Start connects to the NATS server at url, or starts an embedded one when
// url is empty.
func Start(url string) (*Bus, error) {
	b := &Bus{}
	if url == "" {
		ns, err := server.NewServer(&server.Options{
			Host:   "127.0.0.1",
			Port:   server.RANDOM_PORT,
			NoLog:  true,
			NoSigs: true,
		})
		if err != nil {
			return nil, fmt.Errorf("creating embedded nats server: %w", err)
		}
		go ns.Start()
		if !ns.ReadyForConnections(readyTimeout) {
			ns.Shutdown()
			return nil, fmt.Errorf("embedded nats server not ready after %s", readyTimeout)
		}
		b.ns = ns
		url = ns.ClientURL()
		log.Printf("Embedded NATS server listening on %s", url)
	}

	nc, err := nats.Connect(url,
		nats.Name("hostlog"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		if b.ns != nil {
			b.ns.Shutdown()
		}
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	b.nc = nc
	return b, nil
}

// PublishLines sends a batch of lines for serverID
func (b *Bus) PublishLines(serverID int64, lines []domain.LiveLine) error {
	if len(lines) == 0 {
		return nil
	}
	data, err := json.Marshal(domain.LiveMessage{
		Type:     domain.MessageLines,
		ServerID: serverID,
		Lines:    lines,
	})
	if err != nil {
		return fmt.Errorf("encoding live lines: %w", err)
	}
	if err := b.nc.Publish(Subject(serverID), data); err != nil {
		return fmt.Errorf("publishing live lines: %w", err)
	}
	return nil
}

// Subscribe calls fn with every encoded LiveMessage published for serverID.
// fn runs on the subscription's delivery goroutine.
func (b *Bus) Subscribe(serverID int64, fn func(data []byte)) (*nats.Subscription, error) {
	sub, err := b.nc.Subscribe(Subject(serverID), func(m *nats.Msg) {
		fn(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", Subject(serverID), err)
	}
	return sub, nil
}

// Flush waits until the server has processed everything published so far
func (b *Bus) Flush() error {
	return b.nc.Flush()
}

// Close drains the connection and stops the embedded server
func (b *Bus) Close() {
	if b.nc != nil {
		if err := b.nc.Drain(); err != nil {
			log.Printf("Error draining NATS connection: %v", err)
			b.nc.Close()
		}
	}
	if b.ns != nil {
		b.ns.Shutdown()
		b.ns.WaitForShutdown()
	}
}
