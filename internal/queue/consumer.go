package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/tee-time-reservation/internal/lib/logger/sl"
)

// DefaultQueue is the durable queue reservation events are published to.
const DefaultQueue = "reservation.events"

// Consumer drains the reservation event queue into a notification log, one
// line per event.
type Consumer struct {
	log    *slog.Logger
	url    string
	queue  string
	logDir string
}

// NewConsumer returns a Consumer for queue on the broker at url.  Lines are
// appended to <logDir>/notifications.log.
func NewConsumer(log *slog.Logger, url, queue, logDir string) *Consumer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if queue == "" {
		queue = DefaultQueue
	}
	if logDir == "" {
		logDir = "logs"
	}
	return &Consumer{log: log, url: url, queue: queue, logDir: logDir}
}

// Run connects to RabbitMQ, declares the queue (durable) and consumes until
// ctx is cancelled.  Lost connections are re-dialled with a doubling delay
// capped at 30s.  Messages that cannot be handled are rejected without
// requeue so the loop keeps going.
func (c *Consumer) Run(ctx context.Context) error {
	const op = "queue.Consumer.Run"
	log := c.log.With(slog.String("op", op), slog.String("queue", c.queue))

	delay := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Warn("failed to dial broker", slog.Duration("retry_in", delay), sl.Err(err))
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			if delay < 30*time.Second {
				delay *= 2
			}
			continue
		}
		delay = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", sl.Err(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", sl.Err(err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.handleMessage(d.Body); err != nil {
			c.log.Error("handle message failed", slog.String("message_id", d.MessageId), sl.Err(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (c *Consumer) handleMessage(body []byte) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Kind == "" || ev.ReservationID == "" {
		return fmt.Errorf("event without kind or reservation id")
	}
	if err := os.MkdirAll(c.logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.logDir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.logDir, "notifications.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(ev ReservationEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | reservation_id=%s | actor=%s", ev.OccurredAt, ev.Kind, ev.ReservationID, who(ev.ActorID, ev.ActorName))
	if ev.SubjectID != "" {
		fmt.Fprintf(&b, " | subject=%s", who(ev.SubjectID, ev.SubjectName))
	}
	if ev.MembershipStatus != "" {
		fmt.Fprintf(&b, " | membership=%s", ev.MembershipStatus)
	}
	fmt.Fprintf(&b, " | status=%s | players=%d/%d | location=%q | tee_time=%s\n",
		ev.Status, ev.Occupancy, ev.Capacity, ev.Location, ev.ScheduledAt)
	return b.String()
}

func who(id, name string) string {
	if name == "" || name == id {
		return id
	}
	return fmt.Sprintf("%s(%q)", id, name)
}
