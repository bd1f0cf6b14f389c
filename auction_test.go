package main

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type memLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	rewards  map[string][]PendingReward
	debited  int64
	credited int64
}

func newMemLedger() *memLedger {
	return &memLedger{
		balances: make(map[string]int64),
		rewards:  make(map[string][]PendingReward),
	}
}

func (l *memLedger) TryDebit(playerID string, amount int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[playerID]
	if !ok || balance < amount {
		return false, nil
	}
	l.balances[playerID] = balance - amount
	l.debited += amount
	return true, nil
}

func (l *memLedger) Credit(playerID string, amount int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[playerID]; !ok {
		return false, nil
	}
	l.balances[playerID] += amount
	l.credited += amount
	return true, nil
}

func (l *memLedger) AppendReward(playerID string, reward PendingReward) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rewards[playerID] = append(l.rewards[playerID], reward)
	return nil
}

func (l *memLedger) balance(playerID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[playerID]
}

type notifEvent struct {
	playerID  string
	eventType string
}

type memNotifier struct {
	mu     sync.Mutex
	events []notifEvent
}

func (n *memNotifier) Notify(playerID string, eventType string, message string, payload map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifEvent{playerID: playerID, eventType: eventType})
}

func (n *memNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, ev := range n.events {
		if ev.eventType == eventType {
			total++
		}
	}
	return total
}

type grantFailLedger struct {
	*memLedger
	appendErr error
}

func (l *grantFailLedger) AppendReward(playerID string, reward PendingReward) error {
	if l.appendErr != nil {
		return l.appendErr
	}
	return l.memLedger.AppendReward(playerID, reward)
}

type staticRewards struct {
	car CarMeta
}

func (s staticRewards) Pick(overrideID string) (CarMeta, bool) {
	return s.car, true
}

type auditEvent struct {
	playerID  string
	eventType string
}

func testSettings() AuctionSettings {
	return AuctionSettings{
		StartingBid:     5000,
		MinIncrement:    100,
		DurationSeconds: 300,
		IntervalSeconds: 900,
	}
}

func testCar() CarMeta {
	return CarMeta{ID: "solaris", Name: "Hyundai Solaris", PurchasePrice: 35000}
}

func newTestHouse(ledger BidLedger, notifier Notifier, settings func() AuctionSettings) (*AuctionHouse, *time.Time, *[]auditEvent) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	audit := &[]auditEvent{}
	h := NewAuctionHouse(ledger, notifier, staticRewards{car: testCar()}, settings, func(playerID string, eventType string, details map[string]interface{}) {
		*audit = append(*audit, auditEvent{playerID: playerID, eventType: eventType})
	})
	h.now = func() time.Time { return *clock }
	return h, clock, audit
}

func auditCount(audit *[]auditEvent, eventType string) int {
	total := 0
	for _, ev := range *audit {
		if ev.eventType == eventType {
			total++
		}
	}
	return total
}

func TestBidRefundSettleScenario(t *testing.T) {
	ledger := newMemLedger()
	ledger.balances["alice"] = 20000
	ledger.balances["bob"] = 20000
	notifier := &memNotifier{}
	h, clock, _ := newTestHouse(ledger, notifier, testSettings)

	h.Tick(*clock)
	snap := h.Snapshot()
	if !snap.Active {
		t.Fatal("round should be active after first tick")
	}
	if snap.CurrentBid != 5000 {
		t.Fatalf("CurrentBid=%d want=5000", snap.CurrentBid)
	}

	snap, err := h.PlaceBid("alice", "Alice", 5100)
	if err != nil {
		t.Fatalf("alice bid: %v", err)
	}
	if snap.LeaderID != "alice" || snap.CurrentBid != 5100 {
		t.Fatalf("leader=%s bid=%d want alice/5100", snap.LeaderID, snap.CurrentBid)
	}
	if got := ledger.balance("alice"); got != 14900 {
		t.Fatalf("alice balance=%d want=14900", got)
	}

	snap, err = h.PlaceBid("bob", "Bob", 5200)
	if err != nil {
		t.Fatalf("bob bid: %v", err)
	}
	if snap.LeaderID != "bob" || snap.CurrentBid != 5200 {
		t.Fatalf("leader=%s bid=%d want bob/5200", snap.LeaderID, snap.CurrentBid)
	}
	if got := ledger.balance("alice"); got != 20000 {
		t.Fatalf("alice balance after refund=%d want=20000", got)
	}
	if got := ledger.balance("bob"); got != 14800 {
		t.Fatalf("bob balance=%d want=14800", got)
	}
	if notifier.count(NotifOutbid) != 1 {
		t.Fatalf("outbid notifications=%d want=1", notifier.count(NotifOutbid))
	}

	*clock = clock.Add(301 * time.Second)
	h.Tick(*clock)

	snap = h.Snapshot()
	if snap.Active {
		t.Fatal("round should be settled")
	}
	rewards := ledger.rewards["bob"]
	if len(rewards) != 1 {
		t.Fatalf("bob rewards=%d want=1", len(rewards))
	}
	if rewards[0].Kind != RewardKindCar || rewards[0].CarID != "solaris" {
		t.Fatalf("unexpected reward %+v", rewards[0])
	}
	if rewards[0].SellPrice != 21000 {
		t.Fatalf("SellPrice=%d want=21000", rewards[0].SellPrice)
	}
	if rewards[0].BidAmount != 5200 {
		t.Fatalf("BidAmount=%d want=5200", rewards[0].BidAmount)
	}
	if notifier.count(NotifWin) != 1 {
		t.Fatalf("win notifications=%d want=1", notifier.count(NotifWin))
	}
	if len(snap.History) != 1 || snap.History[0].PlayerID != "bob" || snap.History[0].Amount != 5200 {
		t.Fatalf("unexpected history %+v", snap.History)
	}
}

func TestBidBelowIncrementRejected(t *testing.T) {
	ledger := newMemLedger()
	ledger.balances["alice"] = 20000
	h, clock, _ := newTestHouse(ledger, &memNotifier{}, testSettings)
	h.Tick(*clock)

	if _, err := h.PlaceBid("alice", "Alice", 5050); err != errBidTooLow {
		t.Fatalf("err=%v want=%v", err, errBidTooLow)
	}
	snap := h.Snapshot()
	if snap.CurrentBid != 5000 || snap.LeaderID != "" {
		t.Fatalf("state changed on rejected bid: %+v", snap)
	}
	if got := ledger.balance("alice"); got != 20000 {
		t.Fatalf("alice balance=%d want=20000", got)
	}

	// Exactly current bid is also below current + increment.
	if _, err := h.PlaceBid("alice", "Alice", 5000); err != errBidTooLow {
		t.Fatalf("err=%v want=%v", err, errBidTooLow)
	}
}

func TestBidInsufficientBalance(t *testing.T) {
	settings := AuctionSettings{StartingBid: 50, MinIncrement: 10, DurationSeconds: 300, IntervalSeconds: 900}
	ledger := newMemLedger()
	ledger.balances["carol"] = 50
	h, clock, _ := newTestHouse(ledger, &memNotifier{}, func() AuctionSettings { return settings })
	h.Tick(*clock)

	if _, err := h.PlaceBid("carol", "Carol", 100); err != errNotEnoughBalance {
		t.Fatalf("err=%v want=%v", err, errNotEnoughBalance)
	}
	snap := h.Snapshot()
	if snap.CurrentBid != 50 || snap.LeaderID != "" {
		t.Fatalf("state changed on rejected bid: %+v", snap)
	}
	if got := ledger.balance("carol"); got != 50 {
		t.Fatalf("carol balance=%d want=50", got)
	}
}

func TestBidOutsideRoundRejected(t *testing.T) {
	ledger := newMemLedger()
	ledger.balances["alice"] = 20000
	h, clock, _ := newTestHouse(ledger, &memNotifier{}, testSettings)

	// No round started yet.
	if _, err := h.PlaceBid("alice", "Alice", 5100); err != errAuctionNotActive {
		t.Fatalf("err=%v want=%v", err, errAuctionNotActive)
	}

	h.Tick(*clock)
	// Round expired but the settlement tick has not fired yet.
	*clock = clock.Add(300 * time.Second)
	if _, err := h.PlaceBid("alice", "Alice", 5100); err != errAuctionNotActive {
		t.Fatalf("err=%v want=%v", err, errAuctionNotActive)
	}
	if got := ledger.balance("alice"); got != 20000 {
		t.Fatalf("alice balance=%d want=20000", got)
	}
}

func TestConservationAcrossBids(t *testing.T) {
	ledger := newMemLedger()
	ledger.balances["a"] = 100000
	ledger.balances["b"] = 100000
	ledger.balances["c"] = 100000
	h, clock, _ := newTestHouse(ledger, &memNotifier{}, testSettings)
	h.Tick(*clock)

	bidders := []string{"a", "b", "c", "a", "b", "c", "b"}
	amount := int64(5000)
	for _, bidder := range bidders {
		amount += 100
		snap, err := h.PlaceBid(bidder, bidder, amount)
		if err != nil {
			t.Fatalf("bid %s %d: %v", bidder, amount, err)
		}
		ledger.mu.Lock()
		held := ledger.debited - ledger.credited
		ledger.mu.Unlock()
		if held != snap.CurrentBid {
			t.Fatalf("held=%d want=%d after bid by %s", held, snap.CurrentBid, bidder)
		}
	}
}

func TestSelfRebidRefundsOwnPreviousBid(t *testing.T) {
	ledger := newMemLedger()
	ledger.balances["alice"] = 20000
	notifier := &memNotifier{}
	h, clock, _ := newTestHouse(ledger, notifier, testSettings)
	h.Tick(*clock)

	if _, err := h.PlaceBid("alice", "Alice", 5100); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if _, err := h.PlaceBid("alice", "Alice", 5300); err != nil {
		t.Fatalf("rebid: %v", err)
	}
	// Only the latest bid is held.
	if got := ledger.balance("alice"); got != 20000-5300 {
		t.Fatalf("alice balance=%d want=%d", got, 20000-5300)
	}
	if notifier.count(NotifOutbid) != 0 {
		t.Fatal("leader must not be notified of outbidding themselves")
	}
}

func TestSettleExactlyOnce(t *testing.T) {
	ledger := newMemLedger()
	ledger.balances["alice"] = 20000
	h, clock, audit := newTestHouse(ledger, &memNotifier{}, testSettings)
	h.Tick(*clock)
	if _, err := h.PlaceBid("alice", "Alice", 5100); err != nil {
		t.Fatalf("bid: %v", err)
	}

	*clock = clock.Add(301 * time.Second)
	for i := 0; i < 5; i++ {
		h.Tick(*clock)
		*clock = clock.Add(time.Second)
	}

	if got := len(ledger.rewards["alice"]); got != 1 {
		t.Fatalf("rewards granted=%d want=1", got)
	}
	if got := len(h.Snapshot().History); got != 1 {
		t.Fatalf("history entries=%d want=1", got)
	}
	if got := auditCount(audit, "auction_settled"); got != 1 {
		t.Fatalf("settle audit events=%d want=1", got)
	}
}

func TestSettleGrantFailureRefundsWinner(t *testing.T) {
	inner := newMemLedger()
	inner.balances["alice"] = 20000
	ledger := &grantFailLedger{memLedger: inner, appendErr: errors.New("pending_rewards write failed")}
	notifier := &memNotifier{}
	h, clock, audit := newTestHouse(ledger, notifier, testSettings)
	h.Tick(*clock)

	if _, err := h.PlaceBid("alice", "Alice", 5100); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if got := inner.balance("alice"); got != 14900 {
		t.Fatalf("alice balance=%d want=14900", got)
	}

	*clock = clock.Add(301 * time.Second)
	h.Tick(*clock)

	// The bid comes back when the grant cannot be written.
	if got := inner.balance("alice"); got != 20000 {
		t.Fatalf("alice balance=%d want=20000", got)
	}
	if got := len(inner.rewards["alice"]); got != 0 {
		t.Fatalf("rewards=%d want=0", got)
	}
	snap := h.Snapshot()
	if snap.Active {
		t.Fatal("round should be settled")
	}
	if len(snap.History) != 0 {
		t.Fatalf("history=%+v, a failed grant must not record a win", snap.History)
	}
	if notifier.count(NotifWin) != 0 {
		t.Fatal("no win notification without a granted reward")
	}
	if got := auditCount(audit, "settle_grant_failed"); got != 1 {
		t.Fatalf("settle_grant_failed audit events=%d want=1", got)
	}
	if got := auditCount(audit, "auction_settled"); got != 0 {
		t.Fatalf("auction_settled audit events=%d want=0", got)
	}
	if snap.NextRoundInSeconds <= 0 {
		t.Fatal("next round must still be scheduled")
	}
}

func TestNoBidsSettlesWithoutPayout(t *testing.T) {
	ledger := newMemLedger()
	notifier := &memNotifier{}
	h, clock, _ := newTestHouse(ledger, notifier, testSettings)
	h.Tick(*clock)

	*clock = clock.Add(301 * time.Second)
	h.Tick(*clock)

	snap := h.Snapshot()
	if snap.Active {
		t.Fatal("round should be settled")
	}
	if len(snap.History) != 0 {
		t.Fatalf("history=%+v want empty", snap.History)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("notifications=%+v want none", notifier.events)
	}
}

func TestRoundCadenceAnchoredToStart(t *testing.T) {
	ledger := newMemLedger()
	h, clock, _ := newTestHouse(ledger, &memNotifier{}, testSettings)
	start := *clock
	h.Tick(*clock)

	// Settlement fires 200s late; the next round still starts at
	// start + interval, not settlement time + interval.
	*clock = clock.Add(500 * time.Second)
	h.Tick(*clock)

	snap := h.Snapshot()
	if snap.Active {
		t.Fatal("round should be settled")
	}
	if snap.NextRoundInSeconds != 400 {
		t.Fatalf("NextRoundInSeconds=%d want=400", snap.NextRoundInSeconds)
	}

	*clock = start.Add(899 * time.Second)
	h.Tick(*clock)
	if h.Snapshot().Active {
		t.Fatal("round started before its scheduled slot")
	}

	*clock = start.Add(900 * time.Second)
	h.Tick(*clock)
	if !h.Snapshot().Active {
		t.Fatal("round should start at start + interval")
	}
}

func TestHistoryBounded(t *testing.T) {
	ledger := newMemLedger()
	ledger.balances["alice"] = 10_000_000
	h, clock, _ := newTestHouse(ledger, &memNotifier{}, testSettings)

	for round := 0; round < 7; round++ {
		h.Tick(*clock)
		if _, err := h.PlaceBid("alice", "Alice", 5100+int64(round)); err != nil {
			t.Fatalf("round %d bid: %v", round, err)
		}
		*clock = clock.Add(time.Duration(testSettings().IntervalSeconds) * time.Second)
		h.Tick(*clock) // settle
		h.Tick(*clock) // next round is due by now
	}

	snap := h.Snapshot()
	if len(snap.History) != auctionHistoryLimit {
		t.Fatalf("history len=%d want=%d", len(snap.History), auctionHistoryLimit)
	}
	// Most recent first.
	if snap.History[0].Amount != 5100+6 {
		t.Fatalf("history[0].Amount=%d want=%d", snap.History[0].Amount, 5100+6)
	}
}

func TestOrphanedRefundSkipped(t *testing.T) {
	ledger := newMemLedger()
	ledger.balances["alice"] = 20000
	ledger.balances["bob"] = 20000
	h, clock, audit := newTestHouse(ledger, &memNotifier{}, testSettings)
	h.Tick(*clock)

	if _, err := h.PlaceBid("alice", "Alice", 5100); err != nil {
		t.Fatalf("alice bid: %v", err)
	}

	// Alice's account is deleted while she leads.
	ledger.mu.Lock()
	delete(ledger.balances, "alice")
	ledger.mu.Unlock()

	snap, err := h.PlaceBid("bob", "Bob", 5200)
	if err != nil {
		t.Fatalf("bob bid: %v", err)
	}
	if snap.LeaderID != "bob" {
		t.Fatalf("leader=%s want=bob", snap.LeaderID)
	}
	if got := auditCount(audit, "refund_orphaned"); got != 1 {
		t.Fatalf("refund_orphaned audit events=%d want=1", got)
	}
}

func TestSettingsChangeDoesNotAlterRunningRound(t *testing.T) {
	settings := testSettings()
	ledger := newMemLedger()
	ledger.balances["alice"] = 20000
	h, clock, _ := newTestHouse(ledger, &memNotifier{}, func() AuctionSettings { return settings })
	h.Tick(*clock)

	endBefore := h.Snapshot().EndTime

	// Operator shortens rounds mid-flight.
	settings.DurationSeconds = 10
	settings.MinIncrement = 5000

	if got := h.Snapshot().EndTime; !got.Equal(endBefore) {
		t.Fatalf("EndTime moved from %s to %s", endBefore, got)
	}
	// The captured increment still applies: 5100 clears 5000+100.
	if _, err := h.PlaceBid("alice", "Alice", 5100); err != nil {
		t.Fatalf("bid under original increment: %v", err)
	}

	// After settlement the next round picks up the new duration.
	*clock = clock.Add(301 * time.Second)
	h.Tick(*clock)
	*clock = clock.Add(600 * time.Second)
	h.Tick(*clock)
	snap := h.Snapshot()
	if !snap.Active {
		t.Fatal("next round should have started")
	}
	if got := snap.EndTime.Sub(snap.StartTime); got != 10*time.Second {
		t.Fatalf("new round duration=%s want=10s", got)
	}
}

func TestRewardOverride(t *testing.T) {
	catalog, err := parseCatalog([]byte(`
cars:
  - id: solaris
    name: "Hyundai Solaris"
    purchasePrice: 35000
  - id: bmw-5
    name: "BMW 5 Series"
    purchasePrice: 120000
`))
	if err != nil {
		t.Fatalf("parseCatalog: %v", err)
	}

	settings := testSettings()
	settings.RewardOverride = "bmw-5"
	h := NewAuctionHouse(newMemLedger(), &memNotifier{}, catalog, func() AuctionSettings { return settings }, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	h.Tick(now)
	snap := h.Snapshot()
	if snap.Reward == nil || snap.Reward.ID != "bmw-5" {
		t.Fatalf("reward=%+v want bmw-5", snap.Reward)
	}
}
