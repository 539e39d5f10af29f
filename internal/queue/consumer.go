package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	amqp "github.com/rabbitmq/amqp091-go"
)

const consumerPrefetch = 50

// StartNotificationConsumer consumes the notification queue and hands each
// message to deliverer. It reconnects with backoff until ctx is cancelled.
func StartNotificationConsumer(ctx context.Context, url, queue string, deliverer services.Dispatcher) {
	go func() {
		backoff := time.Second
		for {
			if ctx.Err() != nil {
				return
			}
			conn, err := amqp.Dial(url)
			if err != nil {
				log.Printf("notification-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
				if !sleepCtx(ctx, backoff) {
					return
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second
			log.Printf("✅ Notification consumer connected (queue: %s)", queue)

			err = consumeLoop(ctx, conn, queue, deliverer)
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			log.Printf("notification-consumer: consume loop ended: %v; reconnecting", err)
			if !sleepCtx(ctx, 2*time.Second) {
				return
			}
		}
	}()
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, deliverer services.Dispatcher) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
		log.Printf("notification-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			handleDelivery(ctx, d, deliverer)
		}
	}
}

// handleDelivery acks on success. Undecodable messages are dropped; a failed
// send is requeued once and dropped on its second failure.
func handleDelivery(ctx context.Context, d amqp.Delivery, deliverer services.Dispatcher) {
	var n models.Notification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		log.Printf("notification-consumer: bad message %s: %v", d.MessageId, err)
		_ = d.Nack(false, false)
		return
	}
	if err := deliverer.Dispatch(ctx, n); err != nil {
		requeue := !d.Redelivered
		log.Printf("notification-consumer: deliver %s failed (requeue: %t): %v", n.ID, requeue, err)
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
