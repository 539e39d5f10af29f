package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
)

// NewMessageNotification builds the outbox row announcing a message to its
// recipient. It returns nil when the recipient has no email address.
func NewMessageNotification(sender, recipient *models.User, content string, withVoiceMemo bool) *models.Notification {
	to := strings.TrimSpace(recipient.Email)
	if to == "" {
		return nil
	}
	name := strings.TrimSpace(sender.FirstName + " " + sender.LastName)
	if name == "" {
		name = sender.DisplayName()
	}
	memo := ""
	if withVoiceMemo {
		memo = " (includes voice memo)"
	}
	return &models.Notification{
		Kind:        models.NotificationKindNewMessage,
		RecipientID: recipient.ID,
		ToAddress:   to,
		Subject:     fmt.Sprintf("New message from %s", name),
		Body:        fmt.Sprintf("You have a new message from %s: \"%s\"%s. Log in to view and respond.", name, content, memo),
		Status:      models.NotificationPending,
	}
}

// Dispatcher hands a notification to the next delivery stage.
type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

// Email is one outbound message.
type Email struct {
	To      string
	Subject string
	Text    string
}

// Mailer sends an email and returns the provider's message id.
type Mailer interface {
	Send(ctx context.Context, email Email) (string, error)
}

// Delivery is one delivery attempt as recorded in the delivery log.
type Delivery struct {
	NotificationID    string    `bson:"notification_id" json:"notification_id"`
	RecipientID       string    `bson:"recipient_id" json:"recipient_id"`
	ToAddress         string    `bson:"to_address" json:"to_address"`
	Subject           string    `bson:"subject" json:"subject"`
	ProviderMessageID string    `bson:"provider_message_id,omitempty" json:"provider_message_id,omitempty"`
	Status            string    `bson:"status" json:"status"`
	Error             string    `bson:"error,omitempty" json:"error,omitempty"`
	Timestamp         time.Time `bson:"timestamp" json:"timestamp"`
}

// DeliveryLog records delivery attempts.
type DeliveryLog interface {
	RecordDelivery(ctx context.Context, d Delivery) error
}

// EmailDeliverer is the last stage: it sends the email and logs the outcome.
type EmailDeliverer struct {
	mailer Mailer
	log    DeliveryLog
}

func NewEmailDeliverer(mailer Mailer, deliveries DeliveryLog) *EmailDeliverer {
	return &EmailDeliverer{mailer: mailer, log: deliveries}
}

func (d *EmailDeliverer) Dispatch(ctx context.Context, n models.Notification) error {
	if d.mailer == nil {
		return fmt.Errorf("%w: no mailer configured", ErrExternalDependency)
	}
	providerID, err := d.mailer.Send(ctx, Email{To: n.ToAddress, Subject: n.Subject, Text: n.Body})

	entry := Delivery{
		NotificationID:    n.ID.String(),
		RecipientID:       n.RecipientID,
		ToAddress:         n.ToAddress,
		Subject:           n.Subject,
		ProviderMessageID: providerID,
		Status:            string(models.NotificationSent),
		Timestamp:         time.Now().UTC(),
	}
	if err != nil {
		entry.Status = string(models.NotificationFailed)
		entry.Error = err.Error()
	}
	if d.log != nil {
		if logErr := d.log.RecordDelivery(ctx, entry); logErr != nil {
			log.Printf("notifications: delivery log write failed for %s: %v", n.ID, logErr)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: send email: %v", ErrExternalDependency, err)
	}
	return nil
}

// claimLease is how long a claimed row stays hidden from other relays. A row
// whose mark fails after delivery is retried once its lease runs out.
const claimLease = 5 * time.Minute

// Relay drains the notification outbox into a Dispatcher.
type Relay struct {
	store       Store
	dispatcher  Dispatcher
	batchSize   int
	maxAttempts int
	interval    time.Duration
	lease       time.Duration
}

func NewRelay(store Store, dispatcher Dispatcher, batchSize, maxAttempts int, interval time.Duration) *Relay {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{
		store:       store,
		dispatcher:  dispatcher,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		interval:    interval,
		lease:       claimLease,
	}
}

// RunOnce claims one batch, dispatches it and returns how many rows were
// delivered. Each row is marked on its own, so one failed update does not
// undo the others. Only a failed claim is returned as an error.
func (rl *Relay) RunOnce(ctx context.Context) (int, error) {
	claimed, err := rl.store.ClaimNotifications(ctx, rl.batchSize, rl.lease)
	if err != nil {
		return 0, fmt.Errorf("claim notifications: %w", err)
	}

	sent := 0
	for _, n := range claimed {
		if err := rl.dispatcher.Dispatch(ctx, n); err != nil {
			failed := n.Attempts+1 >= rl.maxAttempts
			log.Printf("notifications: dispatch %s to %s failed (attempt %d, giving up: %t): %v",
				n.ID, n.ToAddress, n.Attempts+1, failed, err)
			if err := rl.store.MarkNotificationAttempt(ctx, n.ID, err.Error(), failed); err != nil {
				log.Printf("notifications: record attempt for %s failed: %v", n.ID, err)
			}
			continue
		}
		sent++
		if err := rl.store.MarkNotificationSent(ctx, n.ID, time.Now().UTC()); err != nil {
			log.Printf("notifications: mark %s sent failed, redelivered after lease: %v", n.ID, err)
		}
	}
	return sent, nil
}

// Start polls the outbox until ctx is cancelled.
func (rl *Relay) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(rl.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := rl.RunOnce(ctx); err != nil && ctx.Err() == nil {
					log.Printf("notifications: relay batch failed: %v", err)
				}
			}
		}
	}()
}
