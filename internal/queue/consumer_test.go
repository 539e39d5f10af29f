package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services/servicestest"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type ackRecorder struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acks++; return nil }

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error { return a.Nack(0, false, requeue) }

func delivery(t *testing.T, ack amqp.Acknowledger, body []byte, redelivered bool) amqp.Delivery {
	t.Helper()
	return amqp.Delivery{Acknowledger: ack, Body: body, Redelivered: redelivered, DeliveryTag: 1}
}

func notificationBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(models.Notification{ID: uuid.New(), ToAddress: "fan@example.com", Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestHandleDelivery(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		body        []byte
		failTimes   int
		redelivered bool
		wantAcks    int
		wantNacks   int
		wantRequeue bool
	}{
		{name: "delivered", body: notificationBody(t), wantAcks: 1},
		{name: "undecodable is dropped", body: []byte("{"), wantNacks: 1},
		{name: "first failure is requeued", body: notificationBody(t), failTimes: 1, wantNacks: 1, wantRequeue: true},
		{name: "second failure is dropped", body: notificationBody(t), failTimes: 1, redelivered: true, wantNacks: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &ackRecorder{}
			dispatcher := &servicestest.Dispatcher{FailTimes: tt.failTimes}
			handleDelivery(ctx, delivery(t, ack, tt.body, tt.redelivered), dispatcher)

			if ack.acks != tt.wantAcks || ack.nacks != tt.wantNacks || ack.requeue != tt.wantRequeue {
				t.Fatalf("acks=%d nacks=%d requeue=%t", ack.acks, ack.nacks, ack.requeue)
			}
			if tt.wantAcks == 1 && len(dispatcher.Sent) != 1 {
				t.Fatalf("dispatched %d", len(dispatcher.Sent))
			}
		})
	}
}
