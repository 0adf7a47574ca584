package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/feed"
)

const (
	feedBuffer    = 64
	feedHeartbeat = 25 * time.Second
)

type FeedHandler struct {
	bus feed.Subscriber
	log *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewFeedHandler(bus feed.Subscriber, log *slog.Logger) *FeedHandler {
	if log == nil {
		log = slog.Default()
	}
	return &FeedHandler{bus: bus, log: log, done: make(chan struct{})}
}

// Close ends every open stream and refuses new ones. It is safe to call
// more than once.
func (h *FeedHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func tableFilter(raw string) map[feed.Table]bool {
	if raw == "" {
		return nil
	}
	out := map[feed.Table]bool{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[feed.Table(t)] = true
		}
	}
	return out
}

// GET /feed?tables=visits,lab_requests
//
// Streams row changes as server-sent events. Slow clients lose events
// rather than stall the bus; they refetch on reconnect.
func (h *FeedHandler) Stream(c fiber.Ctx) error {
	select {
	case <-h.done:
		return serviceUnavailable(c, "server is shutting down")
	default:
	}
	tables := tableFilter(c.Query("tables"))

	events := make(chan feed.Change, feedBuffer)
	unsubscribe, err := h.bus.Subscribe(func(ch feed.Change) {
		if tables != nil && !tables[ch.Table] {
			return
		}
		select {
		case events <- ch:
		default:
		}
	})
	if err != nil {
		return serviceUnavailable(c, "change feed unavailable")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		ticker := time.NewTicker(feedHeartbeat)
		defer ticker.Stop()

		fmt.Fprint(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}
		for {
			select {
			case ch := <-events:
				data, err := json.Marshal(ch)
				if err != nil {
					h.log.Warn("feed: encode change", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ch.Table, data)
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			case <-h.done:
				fmt.Fprint(w, "event: shutdown\ndata: {}\n\n")
				_ = w.Flush()
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
}
