package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
)

type CreditsResponse struct {
	Success      bool                       `json:"success"`
	Balance      int64                      `json:"balance"`
	Transactions []models.CreditTransaction `json:"transactions"`
}

type PackagesResponse struct {
	Success  bool                   `json:"success"`
	Packages []models.CreditPackage `json:"packages"`
}

type CheckoutRequest struct {
	PackageID string `json:"package_id"`
}

type CheckoutResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// GetCredits returns the session user's balance and recent transactions.
func GetCredits(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	balance, err := deps.Ledger.Balance(ctx, user.ID)
	if err != nil {
		writeError(w, err, "Failed to load balance")
		return
	}
	history, err := deps.Ledger.History(ctx, user, queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, err, "Failed to load transactions")
		return
	}
	if history == nil {
		history = []models.CreditTransaction{}
	}
	writeJSON(w, http.StatusOK, CreditsResponse{Success: true, Balance: balance, Transactions: history})
}

// GetCreditPackages lists the purchasable credit bundles.
func GetCreditPackages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PackagesResponse{Success: true, Packages: services.CreditPackages})
}

// CreateCheckout opens a hosted checkout for a credit package.
func CreateCheckout(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}
	var req CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	url, err := deps.Checkout.CreateCheckout(ctx, user, req.PackageID)
	if err != nil {
		writeError(w, err, "Failed to create checkout session")
		return
	}
	writeJSON(w, http.StatusOK, CheckoutResponse{Success: true, URL: url})
}
