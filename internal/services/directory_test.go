package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services/servicestest"
)

func TestEnsureUserGrantsInitialCreditsOnce(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	dir := services.NewDirectory(store, nil, nil)

	id := models.Identity{ID: "user_1", Email: "a@example.com", FirstName: "Ada"}
	u, err := dir.EnsureUser(ctx, id)
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if u.Role != models.RoleUser || u.Email != "a@example.com" {
		t.Fatalf("user = %+v", u)
	}
	if bal, _ := store.BalanceOf("user_1"); bal != models.InitialCreditGrant {
		t.Fatalf("balance = %d, want %d", bal, models.InitialCreditGrant)
	}

	// Spend, then sign in again: no second grant.
	services.NewLedger(store).Debit(ctx, "user_1", 2, models.TransactionUsage)
	if _, err := dir.EnsureUser(ctx, id); err != nil {
		t.Fatalf("second EnsureUser: %v", err)
	}
	if bal, _ := store.BalanceOf("user_1"); bal != 3 {
		t.Fatalf("balance = %d, want 3", bal)
	}
}

func TestEnsureUserConcurrentFirstSight(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	dir := services.NewDirectory(store, nil, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := dir.EnsureUser(ctx, models.Identity{ID: "user_1"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("EnsureUser: %v", err)
	}

	users, _ := store.ListUsers(ctx)
	if len(users) != 1 {
		t.Fatalf("users = %d, want 1", len(users))
	}
	if bal, _ := store.BalanceOf("user_1"); bal != models.InitialCreditGrant {
		t.Fatalf("balance = %d, want %d", bal, models.InitialCreditGrant)
	}
}

func TestEnsureUserRejectsEmptyID(t *testing.T) {
	dir := services.NewDirectory(servicestest.New(), nil, nil)
	if _, err := dir.EnsureUser(context.Background(), models.Identity{ID: "  "}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSyncIdentity(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	dir := services.NewDirectory(store, nil, nil)

	// update delivered before create
	if err := dir.SyncIdentity(ctx, services.IdentityUpdated, models.Identity{ID: "u1", Email: "old@example.com"}); err != nil {
		t.Fatalf("update-before-create: %v", err)
	}
	if err := dir.SyncIdentity(ctx, services.IdentityCreated, models.Identity{ID: "u1", Email: "old@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := dir.SyncIdentity(ctx, services.IdentityUpdated, models.Identity{ID: "u1", Email: "new@example.com", FirstName: "Nia"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	u, err := store.GetUser(ctx, "u1")
	if err != nil || u.Email != "new@example.com" || u.FirstName != "Nia" {
		t.Fatalf("user after update = %+v, %v", u, err)
	}
	if bal, _ := store.BalanceOf("u1"); bal != models.InitialCreditGrant {
		t.Fatalf("balance = %d, want one grant", bal)
	}

	if err := dir.SyncIdentity(ctx, "session.created", models.Identity{ID: "u1"}); err != nil {
		t.Fatalf("unknown event: %v", err)
	}

	if err := dir.SyncIdentity(ctx, services.IdentityDeleted, models.Identity{ID: "u1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetUser(ctx, "u1"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("user still present: %v", err)
	}
	if _, ok := store.BalanceOf("u1"); ok {
		t.Fatal("balance survived user deletion")
	}
	if err := dir.SyncIdentity(ctx, services.IdentityDeleted, models.Identity{ID: "u1"}); err != nil {
		t.Fatalf("repeated delete: %v", err)
	}
	if err := dir.SyncIdentity(ctx, services.IdentityDeleted, models.Identity{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("delete without id: %v", err)
	}
}

func TestSetRolePromotionCreatesOneVerifiedProfile(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	audit := &servicestest.Audit{}
	cache := &servicestest.Cache{}
	listings := services.NewInfluencerListings(cache, time.Minute)
	dir := services.NewDirectory(store, audit, listings)
	influencers := services.NewInfluencers(store, audit, listings)

	admin := store.AddUser("admin", models.RoleAdmin, 0)
	store.AddUser("u1", models.RoleUser, 5)

	// warm the discovery cache
	if _, err := influencers.ListActive(ctx); err != nil {
		t.Fatalf("ListActive: %v", err)
	}

	for i := 0; i < 2; i++ {
		u, err := dir.SetRole(ctx, &admin, "u1", models.RoleInfluencer)
		if err != nil {
			t.Fatalf("SetRole #%d: %v", i+1, err)
		}
		if u.Role != models.RoleInfluencer {
			t.Fatalf("role = %s", u.Role)
		}
	}

	profiles := store.ProfilesOf("u1")
	if len(profiles) != 1 {
		t.Fatalf("profiles = %d, want 1", len(profiles))
	}
	p := profiles[0]
	if !p.IsVerified || !p.IsActive || p.Bio != "No bio yet" || !p.MessagePrice.Equal(models.DefaultMessagePrice) {
		t.Fatalf("profile = %+v", p)
	}
	if len(audit.Entries) != 2 || audit.Entries[0].Action != "set_role" || audit.Entries[0].ActorID != "admin" {
		t.Fatalf("audit = %+v", audit.Entries)
	}

	list, err := influencers.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 || list[0].UserID != "u1" {
		t.Fatalf("listing after promotion = %+v (stale cache?)", list)
	}

	// Demotion keeps the profile.
	if _, err := dir.SetRole(ctx, &admin, "u1", models.RoleUser); err != nil {
		t.Fatalf("demote: %v", err)
	}
	if len(store.ProfilesOf("u1")) != 1 {
		t.Fatal("demotion removed the profile")
	}
}

func TestSetRoleErrors(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	dir := services.NewDirectory(store, nil, nil)
	admin := store.AddUser("admin", models.RoleAdmin, 0)
	fan := store.AddUser("fan", models.RoleUser, 5)

	tests := []struct {
		name   string
		actor  *models.User
		target string
		role   models.Role
		want   error
	}{
		{"fan cannot assign roles", &fan, "fan", models.RoleAdmin, services.ErrUnauthorized},
		{"no session", nil, "fan", models.RoleAdmin, services.ErrUnauthorized},
		{"unknown role", &admin, "fan", models.Role("owner"), services.ErrValidation},
		{"unknown user", &admin, "ghost", models.RoleInfluencer, services.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := dir.SetRole(ctx, tt.actor, tt.target, tt.role); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if u, _ := store.GetUser(ctx, "fan"); u.Role != models.RoleUser {
		t.Fatalf("fan role changed to %s", u.Role)
	}
}

func TestBecomeInfluencer(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	dir := services.NewDirectory(store, nil, nil)
	fan := store.AddUser("fan", models.RoleUser, 5)
	admin := store.AddUser("admin", models.RoleAdmin, 0)

	p, err := dir.BecomeInfluencer(ctx, &fan, "  singer  ")
	if err != nil {
		t.Fatalf("BecomeInfluencer: %v", err)
	}
	if p.IsVerified || !p.IsActive || p.Bio != "singer" || p.ID == 0 {
		t.Fatalf("profile = %+v", p)
	}
	if fan.Role != models.RoleInfluencer {
		t.Fatalf("actor role = %s", fan.Role)
	}
	if u, _ := store.GetUser(ctx, "fan"); u.Role != models.RoleInfluencer {
		t.Fatalf("stored role = %s", u.Role)
	}

	if _, err := dir.BecomeInfluencer(ctx, &fan, "again"); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("second call err = %v, want ErrConflict", err)
	}
	if _, err := dir.BecomeInfluencer(ctx, &admin, ""); !errors.Is(err, services.ErrUnauthorized) {
		t.Fatalf("admin err = %v, want ErrUnauthorized", err)
	}
	if len(store.ProfilesOf("fan")) != 1 {
		t.Fatal("duplicate profile created")
	}
}

func TestListUsersIsAdminOnly(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	dir := services.NewDirectory(store, nil, nil)
	fan := store.AddUser("fan", models.RoleUser, 5)
	admin := store.AddUser("admin", models.RoleAdmin, 0)

	if _, err := dir.ListUsers(ctx, &fan); !errors.Is(err, services.ErrUnauthorized) {
		t.Fatalf("fan err = %v", err)
	}
	users, err := dir.ListUsers(ctx, &admin)
	if err != nil || len(users) != 2 {
		t.Fatalf("ListUsers = %d, %v", len(users), err)
	}
}
