package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSBus publishes changes as JSON on <prefix>.<table>.<op> and subscribes
// to <prefix>.>.
type NATSBus struct {
	nc     *nats.Conn
	prefix string
	log    *slog.Logger
}

func NewNATSBus(nc *nats.Conn, prefix string, log *slog.Logger) *NATSBus {
	if prefix == "" {
		prefix = "tabib"
	}
	if log == nil {
		log = slog.Default()
	}
	return &NATSBus{nc: nc, prefix: prefix, log: log}
}

func (b *NATSBus) Publish(ctx context.Context, c Change) {
	data, err := json.Marshal(c)
	if err != nil {
		b.log.ErrorContext(ctx, "feed: encode change failed", "table", c.Table, "err", err)
		return
	}
	if err := b.nc.Publish(Subject(b.prefix, c), data); err != nil {
		b.log.WarnContext(ctx, "feed: publish failed", "table", c.Table, "id", c.ID, "err", err)
	}
}

func (b *NATSBus) Subscribe(h Handler) (func(), error) {
	sub, err := b.nc.Subscribe(b.prefix+".>", func(msg *nats.Msg) {
		var c Change
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			b.log.Warn("feed: undecodable change", "subject", msg.Subject, "err", err)
			return
		}
		h(c)
	})
	if err != nil {
		return nil, fmt.Errorf("feed: subscribe: %w", err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			b.log.Warn("feed: unsubscribe failed", "err", err)
		}
	}, nil
}
