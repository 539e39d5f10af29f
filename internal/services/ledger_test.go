package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services/servicestest"
)

func TestLedgerCreditIsIdempotentPerPaymentRef(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	store.AddUser("fan", models.RoleUser, 5)
	ledger := services.NewLedger(store)

	res, err := ledger.Credit(ctx, "fan", 25, models.TransactionPurchase, "pi_123")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if res.Duplicate || res.Balance != 30 {
		t.Fatalf("first credit = %+v, want balance 30", res)
	}

	res, err = ledger.Credit(ctx, "fan", 25, models.TransactionPurchase, "pi_123")
	if err != nil {
		t.Fatalf("redelivered Credit: %v", err)
	}
	if !res.Duplicate || res.Balance != 30 {
		t.Fatalf("redelivery = %+v, want duplicate with balance 30", res)
	}
	if got := len(store.Transactions("fan")); got != 1 {
		t.Fatalf("transactions = %d, want 1", got)
	}
}

func TestLedgerCreditValidation(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	store.AddUser("fan", models.RoleUser, 5)
	ledger := services.NewLedger(store)

	tests := []struct {
		name   string
		user   string
		amount int64
		reason models.TransactionType
		want   error
	}{
		{"zero amount", "fan", 0, models.TransactionPurchase, services.ErrValidation},
		{"negative amount", "fan", -3, models.TransactionPurchase, services.ErrValidation},
		{"usage is not a credit", "fan", 3, models.TransactionUsage, services.ErrValidation},
		{"unknown user", "ghost", 3, models.TransactionPurchase, services.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Credit(ctx, tt.user, tt.amount, tt.reason, "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if bal, _ := store.BalanceOf("fan"); bal != 5 {
		t.Fatalf("balance = %d, want 5", bal)
	}
}

func TestLedgerRefundWithoutRef(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	store.AddUser("fan", models.RoleUser, 0)
	ledger := services.NewLedger(store)

	for i := 0; i < 2; i++ {
		if _, err := ledger.Credit(ctx, "fan", 5, models.TransactionRefund, ""); err != nil {
			t.Fatalf("Credit: %v", err)
		}
	}
	if bal, _ := store.BalanceOf("fan"); bal != 10 {
		t.Fatalf("balance = %d, want 10 (refunds without a ref are not deduplicated)", bal)
	}
}

func TestLedgerDebitInsufficientLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	store.AddUser("fan", models.RoleUser, 3)
	ledger := services.NewLedger(store)

	err := ledger.Debit(ctx, "fan", 5, models.TransactionUsage)
	if !errors.Is(err, services.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if bal, _ := store.BalanceOf("fan"); bal != 3 {
		t.Fatalf("balance = %d, want 3", bal)
	}
	if got := store.Transactions("fan"); len(got) != 0 {
		t.Fatalf("transactions = %+v, want none", got)
	}
}

func TestLedgerDebitRecordsUsage(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	store.AddUser("fan", models.RoleUser, 5)
	ledger := services.NewLedger(store)

	if err := ledger.Debit(ctx, "fan", 5, models.TransactionUsage); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if bal, _ := store.BalanceOf("fan"); bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
	txs := store.Transactions("fan")
	if len(txs) != 1 || txs[0].Amount != -5 || txs[0].Type != models.TransactionUsage {
		t.Fatalf("transactions = %+v", txs)
	}

	if err := ledger.Debit(ctx, "fan", 1, models.TransactionPurchase); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("purchase debit err = %v, want ErrValidation", err)
	}
}

func TestLedgerConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	store.AddUser("fan", models.RoleUser, 10)
	ledger := services.NewLedger(store)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Debit(ctx, "fan", 1, models.TransactionUsage); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("succeeded = %d, want 10", succeeded)
	}
	if bal, _ := store.BalanceOf("fan"); bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
}

func TestLedgerBalanceMatchesGrantPlusTransactions(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	dir := services.NewDirectory(store, nil, nil)
	ledger := services.NewLedger(store)

	if _, err := dir.EnsureUser(ctx, models.Identity{ID: "fan", Email: "fan@example.com"}); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	steps := []func() error{
		func() error { return ledger.Debit(ctx, "fan", 3, models.TransactionUsage) },
		func() error { _, err := ledger.Credit(ctx, "fan", 10, models.TransactionPurchase, "pi_a"); return err },
		func() error { return ledger.Debit(ctx, "fan", 50, models.TransactionUsage) }, // rejected
		func() error { _, err := ledger.Credit(ctx, "fan", 10, models.TransactionPurchase, "pi_a"); return err },
		func() error { _, err := ledger.Credit(ctx, "fan", 2, models.TransactionRefund, ""); return err },
		func() error { return ledger.Debit(ctx, "fan", 14, models.TransactionUsage) },
	}
	for _, step := range steps {
		step()
	}

	sum := models.InitialCreditGrant
	for _, tx := range store.Transactions("fan") {
		sum += tx.Amount
	}
	bal, err := ledger.Balance(ctx, "fan")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != sum {
		t.Fatalf("balance %d != grant + transactions %d", bal, sum)
	}
	if bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
}

func TestLedgerBalanceAndHistory(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	fan := store.AddUser("fan", models.RoleUser, 20)
	ledger := services.NewLedger(store)

	if bal, err := ledger.Balance(ctx, "nobody"); err != nil || bal != 0 {
		t.Fatalf("Balance(nobody) = %d, %v; want 0, nil", bal, err)
	}
	for i := 0; i < 3; i++ {
		ledger.Debit(ctx, "fan", 1, models.TransactionUsage)
	}

	history, err := ledger.History(ctx, &fan, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d rows, want 2", len(history))
	}
	if _, err := ledger.History(ctx, nil, 10); !errors.Is(err, services.ErrUnauthorized) {
		t.Fatalf("History(nil) err = %v", err)
	}
}
