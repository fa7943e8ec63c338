// Package nats carries realtime events between gateway nodes so a user's
// connections receive them regardless of which node accepted the message.
package nats

import (
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/config"
)

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(cfg config.NATSConfig, name string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to NATS", "url", conn.ConnectedUrl())
	return &Client{conn: conn, logger: logger}, nil
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) (*nats.Subscription, error) {
	return c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
}

// Ping round-trips to the server, used by health checks.
func (c *Client) Ping() error {
	return c.conn.Flush()
}

// Close drains pending messages before closing.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
