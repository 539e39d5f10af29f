package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services/servicestest"
	"github.com/shopspring/decimal"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type messagingFixture struct {
	store     *servicestest.Store
	blobs     *servicestest.Blobs
	events    *servicestest.Events
	messaging *services.Messaging
	fan       models.User
	inf       models.User
	profile   models.InfluencerProfile
}

func newMessagingFixture(t *testing.T, fanBalance int64, price string) *messagingFixture {
	t.Helper()
	f := &messagingFixture{
		store:  servicestest.New(),
		blobs:  &servicestest.Blobs{},
		events: &servicestest.Events{},
	}
	f.fan = f.store.AddUser("fan", models.RoleUser, fanBalance)
	f.inf, f.profile = f.store.AddInfluencer("inf", decimal.RequireFromString(price))
	f.messaging = services.NewMessaging(f.store, f.blobs, f.events)
	services.SetClock(f.messaging, (&stepClock{t: time.Now().UTC()}).now)
	return f
}

func TestStartConversationThenInsufficientCredits(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 5, "5")

	conv, msg, err := f.messaging.StartConversation(ctx, &f.fan, "inf", "hi there")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if conv.UserID != "fan" || conv.InfluencerID != "inf" || msg.ConversationID != conv.ID {
		t.Fatalf("conv = %+v, msg = %+v", conv, msg)
	}
	if bal, _ := f.store.BalanceOf("fan"); bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
	txs := f.store.Transactions("fan")
	if len(txs) != 1 || txs[0].Amount != -5 || txs[0].Type != models.TransactionUsage {
		t.Fatalf("transactions = %+v", txs)
	}
	outbox := f.store.Outbox()
	if len(outbox) != 1 || outbox[0].RecipientID != "inf" || outbox[0].ToAddress != "inf@example.com" {
		t.Fatalf("outbox = %+v", outbox)
	}

	_, err = f.messaging.SendMessage(ctx, &f.fan, services.SendMessageInput{ConversationID: conv.ID, Content: "again"})
	if !errors.Is(err, services.ErrInsufficientCredits) {
		t.Fatalf("second send err = %v, want ErrInsufficientCredits", err)
	}
	if n := len(f.store.Messages(conv.ID)); n != 1 {
		t.Fatalf("messages = %d, want 1", n)
	}
	if bal, _ := f.store.BalanceOf("fan"); bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
	if len(f.store.Outbox()) != 1 {
		t.Fatal("rejected send enqueued a notification")
	}
	if got := f.events.Types(); len(got) != 1 || got[0] != services.EventTypeMessage {
		t.Fatalf("events = %v", got)
	}
}

func TestStartConversationWithoutCreditsCreatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 2, "5")

	_, _, err := f.messaging.StartConversation(ctx, &f.fan, "inf", "hello")
	if !errors.Is(err, services.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if n := len(f.store.Conversations()); n != 0 {
		t.Fatalf("conversations = %d, want 0", n)
	}
	if bal, _ := f.store.BalanceOf("fan"); bal != 2 {
		t.Fatalf("balance = %d, want 2", bal)
	}
}

func TestFractionalPriceRoundsUp(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 10, "2.50")

	if _, _, err := f.messaging.StartConversation(ctx, &f.fan, "inf", "hi"); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if bal, _ := f.store.BalanceOf("fan"); bal != 7 {
		t.Fatalf("balance = %d, want 7", bal)
	}
}

func TestFreeInfluencerSkipsDebit(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 0, "0")

	if _, _, err := f.messaging.StartConversation(ctx, &f.fan, "inf", "hi"); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if txs := f.store.Transactions("fan"); len(txs) != 0 {
		t.Fatalf("transactions = %+v, want none", txs)
	}
}

func TestStartOrGetConversationIsUnique(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 5, "5")

	first, err := f.messaging.StartOrGetConversation(ctx, &f.fan, "inf")
	if err != nil {
		t.Fatalf("StartOrGetConversation: %v", err)
	}
	second, err := f.messaging.StartOrGetConversation(ctx, &f.fan, "inf")
	if err != nil {
		t.Fatalf("StartOrGetConversation: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("ids differ: %s vs %s", first.ID, second.ID)
	}

	var wg sync.WaitGroup
	ids := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := f.messaging.StartOrGetConversation(ctx, &f.fan, "inf")
			if err == nil {
				ids <- c.ID.String()
			}
		}()
	}
	wg.Wait()
	close(ids)
	for id := range ids {
		if id != first.ID.String() {
			t.Fatalf("concurrent call returned %s, want %s", id, first.ID)
		}
	}
	if n := len(f.store.Conversations()); n != 1 {
		t.Fatalf("conversations = %d, want 1", n)
	}
	if bal, _ := f.store.BalanceOf("fan"); bal != 5 {
		t.Fatalf("opening a conversation charged credits: balance %d", bal)
	}
}

func TestStartConversationTargets(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 50, "5")
	f.store.AddUser("other", models.RoleUser, 5)
	_, hidden := f.store.AddInfluencer("hidden", decimal.NewFromInt(1))
	f.store.SetInfluencerActive(ctx, hidden.ID, false)

	tests := []struct {
		name   string
		actor  *models.User
		target string
		want   error
	}{
		{"self", &f.fan, "fan", services.ErrValidation},
		{"empty target", &f.fan, "", services.ErrValidation},
		{"target is not an influencer", &f.fan, "other", services.ErrNotFound},
		{"unknown target", &f.fan, "ghost", services.ErrNotFound},
		{"inactive influencer", &f.fan, "hidden", services.ErrNotFound},
		{"influencers cannot start conversations", &f.inf, "hidden", services.ErrUnauthorized},
		{"no session", nil, "inf", services.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.messaging.StartOrGetConversation(ctx, tt.actor, tt.target); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 50, "1")
	conv, err := f.messaging.StartOrGetConversation(ctx, &f.fan, "inf")
	if err != nil {
		t.Fatalf("StartOrGetConversation: %v", err)
	}
	stranger := f.store.AddUser("stranger", models.RoleUser, 50)

	tests := []struct {
		name  string
		actor *models.User
		in    services.SendMessageInput
		want  error
	}{
		{"empty content", &f.fan, services.SendMessageInput{ConversationID: conv.ID, Content: "   "}, services.ErrValidation},
		{"too long", &f.fan, services.SendMessageInput{ConversationID: conv.ID, Content: strings.Repeat("a", 4001)}, services.ErrValidation},
		{"too many multibyte characters", &f.fan, services.SendMessageInput{ConversationID: conv.ID, Content: strings.Repeat("é", 4001)}, services.ErrValidation},
		{"not a party", &stranger, services.SendMessageInput{ConversationID: conv.ID, Content: "hi"}, services.ErrUnauthorized},
		{"fans cannot attach voice memos", &f.fan, services.SendMessageInput{ConversationID: conv.ID, Content: "hi",
			VoiceMemo: &services.VoiceMemoUpload{Data: []byte("audio")}}, services.ErrUnauthorized},
		{"empty voice memo", &f.inf, services.SendMessageInput{ConversationID: conv.ID,
			VoiceMemo: &services.VoiceMemoUpload{}}, services.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.messaging.SendMessage(ctx, tt.actor, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if f.store.MessageCount() != 0 {
		t.Fatalf("messages = %d, want 0", f.store.MessageCount())
	}
	if bal, _ := f.store.BalanceOf("fan"); bal != 50 {
		t.Fatalf("balance = %d, want 50", bal)
	}
}

func TestMessageLengthCountsCharacters(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 50, "1")
	conv, err := f.messaging.StartOrGetConversation(ctx, &f.fan, "inf")
	if err != nil {
		t.Fatalf("StartOrGetConversation: %v", err)
	}

	// 4000 two-byte characters are 8000 bytes but still within the limit.
	for _, content := range []string{strings.Repeat("é", 2500), strings.Repeat("é", 4000), strings.Repeat("🎤", 4000)} {
		msg, err := f.messaging.SendMessage(ctx, &f.fan, services.SendMessageInput{ConversationID: conv.ID, Content: content})
		if err != nil {
			t.Fatalf("%d bytes: %v", len(content), err)
		}
		if msg.Content != content {
			t.Fatal("content altered")
		}
	}
}

func TestInfluencerReplyWithVoiceMemo(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 5, "5")
	conv, _, err := f.messaging.StartConversation(ctx, &f.fan, "inf", "sing for me")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	msg, err := f.messaging.SendMessage(ctx, &f.inf, services.SendMessageInput{
		ConversationID: conv.ID,
		VoiceMemo:      &services.VoiceMemoUpload{Data: []byte("mp3-bytes"), Duration: 12},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.VoiceMemo == nil || msg.VoiceMemo.Duration != 12 || msg.VoiceMemo.InfluencerID != "inf" {
		t.Fatalf("voice memo = %+v", msg.VoiceMemo)
	}
	key := services.VoiceMemoKey(conv.ID, msg.ID)
	if _, ok := f.blobs.Uploads[key]; !ok {
		t.Fatalf("no upload under %s", key)
	}
	if msg.VoiceMemo.FileURL != "https://blobs.test/"+key {
		t.Fatalf("file url = %s", msg.VoiceMemo.FileURL)
	}
	if bal, _ := f.store.BalanceOf("inf"); bal != 0 {
		t.Fatalf("influencer was charged: balance %d", bal)
	}

	stored := f.store.Messages(conv.ID)
	if len(stored) != 2 || stored[1].VoiceMemo == nil {
		t.Fatalf("stored = %+v", stored)
	}
	outbox := f.store.Outbox()
	last := outbox[len(outbox)-1]
	if last.RecipientID != "fan" || !strings.Contains(last.Body, "(includes voice memo)") {
		t.Fatalf("notification = %+v", last)
	}
}

func TestVoiceMemoUploadFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 5, "5")
	conv, _, err := f.messaging.StartConversation(ctx, &f.fan, "inf", "hello")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	before := len(f.store.Outbox())
	f.blobs.Err = errors.New("cloud unavailable")

	_, err = f.messaging.SendMessage(ctx, &f.inf, services.SendMessageInput{
		ConversationID: conv.ID,
		Content:        "here you go",
		VoiceMemo:      &services.VoiceMemoUpload{Data: []byte("mp3")},
	})
	if !errors.Is(err, services.ErrExternalDependency) {
		t.Fatalf("err = %v, want ErrExternalDependency", err)
	}
	if n := len(f.store.Messages(conv.ID)); n != 1 {
		t.Fatalf("messages = %d, want 1", n)
	}
	if f.store.VoiceMemoCount() != 0 {
		t.Fatal("voice memo row written")
	}
	if len(f.store.Outbox()) != before {
		t.Fatal("notification enqueued for a failed send")
	}
}

func TestVoiceMemoWithoutBlobStore(t *testing.T) {
	ctx := context.Background()
	store := servicestest.New()
	fan := store.AddUser("fan", models.RoleUser, 5)
	inf, _ := store.AddInfluencer("inf", decimal.NewFromInt(1))
	m := services.NewMessaging(store, nil, nil)

	conv, err := m.StartOrGetConversation(ctx, &fan, "inf")
	if err != nil {
		t.Fatalf("StartOrGetConversation: %v", err)
	}
	_, err = m.SendMessage(ctx, &inf, services.SendMessageInput{ConversationID: conv.ID, VoiceMemo: &services.VoiceMemoUpload{Data: []byte("x")}})
	if !errors.Is(err, services.ErrExternalDependency) {
		t.Fatalf("err = %v, want ErrExternalDependency", err)
	}
}

func TestSendRollsBackDebitWhenMessageInsertFails(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 5, "5")
	conv, err := f.messaging.StartOrGetConversation(ctx, &f.fan, "inf")
	if err != nil {
		t.Fatalf("StartOrGetConversation: %v", err)
	}

	boom := errors.New("disk full")
	f.store.FailOn("InsertMessage", boom)
	if _, err := f.messaging.SendMessage(ctx, &f.fan, services.SendMessageInput{ConversationID: conv.ID, Content: "hi"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if bal, _ := f.store.BalanceOf("fan"); bal != 5 {
		t.Fatalf("balance = %d, want 5", bal)
	}
	if txs := f.store.Transactions("fan"); len(txs) != 0 {
		t.Fatalf("transactions = %+v", txs)
	}
}

func TestNotificationFailureKeepsPaidMessage(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 10, "5")
	conv, err := f.messaging.StartOrGetConversation(ctx, &f.fan, "inf")
	if err != nil {
		t.Fatalf("StartOrGetConversation: %v", err)
	}
	queued := len(f.store.Outbox())

	for i, method := range []string{"EnqueueNotification", "GetUser"} {
		f.store.FailOn(method, errors.New("connection reset"))
		msg, err := f.messaging.SendMessage(ctx, &f.fan, services.SendMessageInput{ConversationID: conv.ID, Content: "hi"})
		if err != nil {
			t.Fatalf("%s failure: SendMessage: %v", method, err)
		}
		if msg == nil {
			t.Fatalf("%s failure: no message returned", method)
		}
		if n := len(f.store.Messages(conv.ID)); n != i+1 {
			t.Fatalf("%s failure: messages = %d, want %d", method, n, i+1)
		}
		if len(f.store.Outbox()) != queued {
			t.Fatalf("%s failure: outbox = %d, want %d", method, len(f.store.Outbox()), queued)
		}
	}
	if bal, _ := f.store.BalanceOf("fan"); bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
	if txs := f.store.Transactions("fan"); len(txs) != 2 {
		t.Fatalf("transactions = %d, want 2", len(txs))
	}

	// The next send notifies normally.
	if _, err := f.messaging.SendMessage(ctx, &f.inf, services.SendMessageInput{ConversationID: conv.ID, Content: "thanks"}); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if len(f.store.Outbox()) != queued+1 {
		t.Fatalf("outbox = %d, want %d", len(f.store.Outbox()), queued+1)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 10, "5")
	conv, _, err := f.messaging.StartConversation(ctx, &f.fan, "inf", "one")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if _, err := f.messaging.SendMessage(ctx, &f.fan, services.SendMessageInput{ConversationID: conv.ID, Content: "two"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if n, err := f.messaging.MarkRead(ctx, &f.fan, conv.ID); err != nil || n != 0 {
		t.Fatalf("fan MarkRead = %d, %v; own messages must stay unread", n, err)
	}
	if n, err := f.messaging.MarkRead(ctx, &f.inf, conv.ID); err != nil || n != 2 {
		t.Fatalf("MarkRead = %d, %v; want 2", n, err)
	}
	if n, err := f.messaging.MarkRead(ctx, &f.inf, conv.ID); err != nil || n != 0 {
		t.Fatalf("repeated MarkRead = %d, %v; want 0", n, err)
	}
	for _, m := range f.store.Messages(conv.ID) {
		if !m.IsRead {
			t.Fatalf("message %s still unread", m.ID)
		}
	}

	reads := 0
	for _, typ := range f.events.Types() {
		if typ == services.EventTypeRead {
			reads++
		}
	}
	if reads != 1 {
		t.Fatalf("read events = %d, want 1", reads)
	}
}

func TestGetThreadPagesOldestFirst(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 5, "5")
	conv, _, err := f.messaging.StartConversation(ctx, &f.fan, "inf", "m0")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	for _, c := range []string{"m1", "m2", "m3", "m4"} {
		if _, err := f.messaging.SendMessage(ctx, &f.inf, services.SendMessageInput{ConversationID: conv.ID, Content: c}); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}

	page, err := f.messaging.GetThread(ctx, &f.fan, conv.ID, nil, 2)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got := contents(page.Messages); got != "m3,m4" || !page.HasMore {
		t.Fatalf("page 1 = %s (has_more %t)", got, page.HasMore)
	}

	if page.NextCursor == nil || page.NextCursor.ID != page.Messages[0].ID {
		t.Fatalf("next cursor = %+v", page.NextCursor)
	}
	page, err = f.messaging.GetThread(ctx, &f.fan, conv.ID, page.NextCursor, 2)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got := contents(page.Messages); got != "m1,m2" || !page.HasMore {
		t.Fatalf("page 2 = %s (has_more %t)", got, page.HasMore)
	}

	page, err = f.messaging.GetThread(ctx, &f.fan, conv.ID, page.NextCursor, 2)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got := contents(page.Messages); got != "m0" || page.HasMore || page.NextCursor != nil {
		t.Fatalf("page 3 = %s (has_more %t, cursor %+v)", got, page.HasMore, page.NextCursor)
	}

	stranger := f.store.AddUser("stranger", models.RoleUser, 0)
	if _, err := f.messaging.GetThread(ctx, &stranger, conv.ID, nil, 10); !errors.Is(err, services.ErrUnauthorized) {
		t.Fatalf("stranger err = %v", err)
	}
}

func TestGetThreadPagesMessagesSharingATimestamp(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 0, "0")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	services.SetClock(f.messaging, func() time.Time { return at })

	conv, err := f.messaging.StartOrGetConversation(ctx, &f.fan, "inf")
	if err != nil {
		t.Fatalf("StartOrGetConversation: %v", err)
	}
	sent := map[string]bool{}
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		if _, err := f.messaging.SendMessage(ctx, &f.fan, services.SendMessageInput{ConversationID: conv.ID, Content: c}); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		sent[c] = false
	}

	var cursor *models.MessageCursor
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatal("paging did not terminate")
		}
		page, err := f.messaging.GetThread(ctx, &f.fan, conv.ID, cursor, 2)
		if err != nil {
			t.Fatalf("GetThread: %v", err)
		}
		for _, m := range page.Messages {
			if sent[m.Content] {
				t.Fatalf("message %s returned twice", m.Content)
			}
			sent[m.Content] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	for c, seen := range sent {
		if !seen {
			t.Errorf("message %s never returned", c)
		}
	}
}

func contents(msgs []models.Message) string {
	var parts []string
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, ",")
}

func TestListForUserAndDashboard(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture(t, 20, "5")
	conv, _, err := f.messaging.StartConversation(ctx, &f.fan, "inf", "first")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if _, err := f.messaging.SendMessage(ctx, &f.fan, services.SendMessageInput{ConversationID: conv.ID, Content: "second"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := f.messaging.SendMessage(ctx, &f.inf, services.SendMessageInput{ConversationID: conv.ID, Content: "reply"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	fanInbox, err := f.messaging.ListForUser(ctx, &f.fan)
	if err != nil || len(fanInbox) != 1 {
		t.Fatalf("fan inbox = %+v, %v", fanInbox, err)
	}
	if fanInbox[0].CounterpartID != "inf" || fanInbox[0].LastMessage != "reply" || fanInbox[0].UnreadCount != 1 {
		t.Fatalf("fan summary = %+v", fanInbox[0])
	}
	infInbox, err := f.messaging.ListForUser(ctx, &f.inf)
	if err != nil || len(infInbox) != 1 || infInbox[0].CounterpartID != "fan" || infInbox[0].UnreadCount != 2 {
		t.Fatalf("influencer inbox = %+v, %v", infInbox, err)
	}

	d, err := f.messaging.Dashboard(ctx, &f.fan)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Balance != 10 || d.UnreadCount != 1 || d.ConversationCount != 1 || d.TotalEarnings != nil {
		t.Fatalf("fan dashboard = %+v", d)
	}

	d, err = f.messaging.Dashboard(ctx, &f.inf)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.MessagesFromFans != 2 || d.TotalFans != 1 || d.UnreadCount != 2 {
		t.Fatalf("influencer dashboard = %+v", d)
	}
	if d.TotalEarnings == nil || !d.TotalEarnings.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("earnings = %v, want 10", d.TotalEarnings)
	}
}
