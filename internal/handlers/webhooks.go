package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	svix "github.com/svix/svix-webhooks/go"
)

const maxWebhookBytes = 1 << 20

// clerkEvent is the subset of a Clerk user.* webhook payload we mirror.
type clerkEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		ImageURL       string `json:"image_url"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

func (e clerkEvent) identity() models.Identity {
	id := models.Identity{
		ID:        e.Data.ID,
		FirstName: e.Data.FirstName,
		LastName:  e.Data.LastName,
		ImageURL:  e.Data.ImageURL,
	}
	if len(e.Data.EmailAddresses) > 0 {
		id.Email = e.Data.EmailAddresses[0].EmailAddress
	}
	return id
}

// ClerkWebhook mirrors identity-provider user lifecycle events. Deliveries are
// signed with Svix; unsigned or tampered payloads are rejected.
func ClerkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	wh, err := svix.NewWebhook(deps.ClerkWebhookSecret)
	if err != nil {
		log.Printf("❌ clerk webhook secret is invalid: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Webhook verification is not configured")
		return
	}
	if err := wh.Verify(body, r.Header); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid webhook signature")
		return
	}

	var event clerkEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := deps.Directory.SyncIdentity(ctx, event.Type, event.identity()); err != nil {
		writeError(w, err, "Failed to process identity event")
		return
	}
	writeMessage(w, http.StatusOK, "Webhook processed")
}

type PaymentWebhookResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Balance   int64  `json:"balance,omitempty"`
}

// StripeWebhook credits purchased packages on checkout.session.completed.
// Stripe retries deliveries; the payment reference makes each credit apply once.
func StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), deps.StripeWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid webhook signature")
		return
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		writeMessage(w, http.StatusOK, "Event ignored")
		return
	}

	completion, err := services.ParseCheckoutCompleted(event)
	if err != nil {
		writeError(w, err, "Failed to read checkout session")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	result, err := deps.Ledger.Credit(ctx, completion.UserID, completion.Credits, models.TransactionPurchase, completion.ExternalRef)
	if err != nil {
		writeError(w, err, "Failed to credit purchase")
		return
	}
	if result.Duplicate {
		log.Printf("payments: duplicate delivery for %s ignored", completion.ExternalRef)
		writeJSON(w, http.StatusOK, PaymentWebhookResponse{Success: true, Message: "Already processed", Duplicate: true, Balance: result.Balance})
		return
	}
	log.Printf("✅ credited %d credits to %s (%s)", completion.Credits, completion.UserID, completion.ExternalRef)
	writeJSON(w, http.StatusOK, PaymentWebhookResponse{Success: true, Message: "Credits added", Balance: result.Balance})
}
