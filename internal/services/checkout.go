package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// CreditPackages are the bundles offered at checkout.
var CreditPackages = []models.CreditPackage{
	{ID: "small", Credits: 10, PriceCents: 999},
	{ID: "medium", Credits: 25, PriceCents: 1999},
	{ID: "large", Credits: 50, PriceCents: 3499},
}

func FindCreditPackage(id string) (models.CreditPackage, bool) {
	for _, p := range CreditPackages {
		if p.ID == id {
			return p, true
		}
	}
	return models.CreditPackage{}, false
}

// CheckoutRequest is what a payment provider needs to open a checkout page.
type CheckoutRequest struct {
	UserID     string
	Email      string
	Package    models.CreditPackage
	SuccessURL string
	CancelURL  string
}

// CheckoutProvider creates a hosted checkout session and returns its URL.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (string, error)
}

type Checkout struct {
	provider CheckoutProvider
	appURL   string
}

func NewCheckout(provider CheckoutProvider, appURL string) *Checkout {
	return &Checkout{provider: provider, appURL: appURL}
}

// CreateCheckout opens a checkout for one credit package and returns the redirect URL.
func (c *Checkout) CreateCheckout(ctx context.Context, actor *models.User, packageID string) (string, error) {
	if actor == nil {
		return "", ErrUnauthorized
	}
	pkg, ok := FindCreditPackage(packageID)
	if !ok {
		return "", fmt.Errorf("%w: unknown credit package %q", ErrValidation, packageID)
	}
	if c.provider == nil {
		return "", fmt.Errorf("%w: payments are not configured", ErrExternalDependency)
	}
	url, err := c.provider.CreateSession(ctx, CheckoutRequest{
		UserID:     actor.ID,
		Email:      actor.Email,
		Package:    pkg,
		SuccessURL: c.appURL + "/dashboard/credits?success=true",
		CancelURL:  c.appURL + "/dashboard/credits/buy?canceled=true",
	})
	if err != nil {
		return "", fmt.Errorf("%w: create checkout session: %v", ErrExternalDependency, err)
	}
	return url, nil
}

// StripeCheckout implements CheckoutProvider with Stripe Checkout.
type StripeCheckout struct {
	api *client.API
}

func NewStripeCheckout(secretKey string) *StripeCheckout {
	return &StripeCheckout{api: client.New(secretKey, nil)}
}

func (s *StripeCheckout) CreateSession(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyUSD)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(fmt.Sprintf("%d Credits", req.Package.Credits)),
						Description: stripe.String("Credit package for VoiceConnect"),
					},
					UnitAmount: stripe.Int64(req.Package.PriceCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata("userId", req.UserID)
	params.AddMetadata("credits", strconv.FormatInt(req.Package.Credits, 10))
	params.AddMetadata("packageId", req.Package.ID)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// CheckoutCompletion is the part of checkout.session.completed the ledger needs.
type CheckoutCompletion struct {
	UserID      string
	Credits     int64
	ExternalRef string
}

// ParseCheckoutCompleted extracts the payer, credit amount and payment reference
// from a checkout.session.completed event.
func ParseCheckoutCompleted(event stripe.Event) (*CheckoutCompletion, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: checkout session payload: %v", ErrValidation, err)
	}

	userID := sess.Metadata["userId"]
	credits, err := strconv.ParseInt(sess.Metadata["credits"], 10, 64)
	if userID == "" || err != nil || credits <= 0 {
		return nil, fmt.Errorf("%w: missing metadata", ErrValidation)
	}

	ref := sess.ID
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		ref = sess.PaymentIntent.ID
	}
	return &CheckoutCompletion{UserID: userID, Credits: credits, ExternalRef: ref}, nil
}
