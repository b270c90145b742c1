// Package broker provides the NATS-backed Broker used in clustered
// deployments.
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// subjectPrefix namespaces every hub topic under one NATS subject tree so a
// shared NATS cluster can serve other applications.
const subjectPrefix = "pulsehub.topic."

// NATS implements Broker on core NATS publish/subscribe.
type NATS struct {
	conn *nats.Conn
	sub  *nats.Subscription
	log  *zap.Logger
}

// NewNATS connects to the NATS server at url (nats://host:port) with
// unlimited reconnects, so a broker outage degrades delivery instead of
// killing the process.
func NewNATS(url string, log *zap.Logger) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("broker: nats connect: %w", err)
	}

	return &NATS{conn: conn, log: log}, nil
}

// Publish sends payload under the topic's subject.
func (n *NATS) Publish(_ context.Context, topic string, payload []byte) error {
	if n.conn.IsClosed() {
		return ErrClosed
	}
	if err := n.conn.Publish(subjectPrefix+topic, payload); err != nil {
		return fmt.Errorf("broker: nats publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers h for every topic in the hub's subject tree.
func (n *NATS) Subscribe(_ context.Context, h Handler) error {
	sub, err := n.conn.Subscribe(subjectPrefix+">", func(msg *nats.Msg) {
		topic := strings.TrimPrefix(msg.Subject, subjectPrefix)
		h(topic, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("broker: nats subscribe: %w", err)
	}
	n.sub = sub
	return nil
}

// Close drains the subscription so in-flight deliveries finish, then closes
// the connection.
func (n *NATS) Close() error {
	if n.sub != nil {
		if err := n.sub.Drain(); err != nil {
			n.log.Warn("nats subscription drain failed", zap.Error(err))
		}
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("broker: nats drain: %w", err)
	}
	return nil
}
