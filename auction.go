package main

import (
	"errors"
	"log"
	"sync"
	"time"
)

const auctionHistoryLimit = 5

var (
	errAuctionNotActive = errors.New("AUCTION_NOT_ACTIVE")
	errBidTooLow        = errors.New("BID_TOO_LOW")
	errNotEnoughBalance = errors.New("NOT_ENOUGH_BALANCE")
)

// BidLedger is the slice of the durable ledger the auction needs.
// TryDebit and Credit are conditional single-statement updates; a false
// return means the guard failed (insufficient balance on debit, missing
// player row on credit), not a storage fault.
type BidLedger interface {
	TryDebit(playerID string, amount int64) (bool, error)
	Credit(playerID string, amount int64) (bool, error)
	AppendReward(playerID string, reward PendingReward) error
}

// Notifier delivery is best-effort; implementations must never block or
// fail the caller.
type Notifier interface {
	Notify(playerID string, eventType string, message string, payload map[string]interface{})
}

type RewardSource interface {
	Pick(overrideID string) (CarMeta, bool)
}

type AuctionResult struct {
	PlayerID    string    `json:"playerId"`
	DisplayName string    `json:"displayName"`
	Amount      int64     `json:"amount"`
	Reward      CarMeta   `json:"reward"`
	SettledAt   time.Time `json:"settledAt"`
}

type AuctionSnapshot struct {
	Active             bool            `json:"active"`
	StartTime          time.Time       `json:"startTime,omitempty"`
	EndTime            time.Time       `json:"endTime,omitempty"`
	SecondsRemaining   int64           `json:"secondsRemaining"`
	CurrentBid         int64           `json:"currentBid"`
	MinIncrement       int64           `json:"minIncrement"`
	LeaderID           string          `json:"leaderId,omitempty"`
	LeaderName         string          `json:"leaderName,omitempty"`
	Reward             *CarMeta        `json:"reward,omitempty"`
	NextRoundInSeconds int64           `json:"nextRoundInSeconds,omitempty"`
	History            []AuctionResult `json:"history"`
}

// AuctionHouse owns the single global round. All state lives behind one
// mutex; request handlers and the settlement ticker both go through it,
// so two concurrent bids can never read the same currentBid.
type AuctionHouse struct {
	mu sync.Mutex

	ledger   BidLedger
	notify   Notifier
	rewards  RewardSource
	settings func() AuctionSettings
	logEvent func(playerID string, eventType string, details map[string]interface{})
	now      func() time.Time

	active    bool
	startTime time.Time
	endTime   time.Time
	// increment and interval are captured at round start so an operator
	// settings change cannot retroactively alter a round in flight.
	minIncrement  int64
	roundInterval time.Duration
	currentBid    int64
	leaderID      string
	leaderName    string
	reward        CarMeta
	nextStartAt   time.Time
	history       []AuctionResult
}

func NewAuctionHouse(
	ledger BidLedger,
	notify Notifier,
	rewards RewardSource,
	settings func() AuctionSettings,
	logEvent func(playerID string, eventType string, details map[string]interface{}),
) *AuctionHouse {
	if logEvent == nil {
		logEvent = func(string, string, map[string]interface{}) {}
	}
	return &AuctionHouse{
		ledger:   ledger,
		notify:   notify,
		rewards:  rewards,
		settings: settings,
		logEvent: logEvent,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run drives round starts and settlement on a fixed 1s poll,
// independent of any request path. Only the leader instance calls it.
func (h *AuctionHouse) Run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		h.Tick(h.now())
	}
}

func (h *AuctionHouse) Tick(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active {
		if !now.Before(h.endTime) {
			h.settleLocked(now)
		}
		return
	}
	if h.nextStartAt.IsZero() || !now.Before(h.nextStartAt) {
		h.startRoundLocked(now)
	}
}

func (h *AuctionHouse) startRoundLocked(now time.Time) {
	s := h.settings()
	reward, ok := h.rewards.Pick(s.RewardOverride)
	if !ok {
		log.Println("Auction: no reward available, retrying in a minute")
		h.nextStartAt = now.Add(time.Minute)
		return
	}

	h.active = true
	h.startTime = now
	h.endTime = now.Add(s.Duration())
	h.minIncrement = s.MinIncrement
	h.roundInterval = s.Interval()
	h.currentBid = s.StartingBid
	h.leaderID = ""
	h.leaderName = ""
	h.reward = reward

	log.Printf("Auction: round started reward=%s startingBid=%d ends=%s",
		reward.ID, h.currentBid, h.endTime.Format(time.RFC3339))
}

// PlaceBid accepts a bid iff the round is open, the amount clears the
// increment, and the conditional debit succeeds. Debit-then-refund keeps
// currency conserved: exactly the leader's bid is held at any moment.
func (h *AuctionHouse) PlaceBid(playerID string, displayName string, amount int64) (AuctionSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if !h.active || !now.Before(h.endTime) {
		h.logEvent(playerID, "auction_bid_rejected", map[string]interface{}{
			"amount": amount, "reason": errAuctionNotActive.Error(),
		})
		return h.snapshotLocked(now), errAuctionNotActive
	}
	if amount < h.currentBid+h.minIncrement {
		h.logEvent(playerID, "auction_bid_rejected", map[string]interface{}{
			"amount": amount, "reason": errBidTooLow.Error(), "minimumBid": h.currentBid + h.minIncrement,
		})
		return h.snapshotLocked(now), errBidTooLow
	}

	debited, err := h.ledger.TryDebit(playerID, amount)
	if err != nil {
		return h.snapshotLocked(now), err
	}
	if !debited {
		h.logEvent(playerID, "auction_bid_rejected", map[string]interface{}{
			"amount": amount, "reason": errNotEnoughBalance.Error(),
		})
		return h.snapshotLocked(now), errNotEnoughBalance
	}

	prevID, prevBid := h.leaderID, h.currentBid
	if prevID != "" {
		refunded, err := h.ledger.Credit(prevID, prevBid)
		if err != nil {
			// The new debit must not stand if the refund write failed.
			if _, rbErr := h.ledger.Credit(playerID, amount); rbErr != nil {
				log.Println("Auction: bid rollback failed for", playerID, rbErr)
			}
			return h.snapshotLocked(now), err
		}
		if !refunded {
			// Previous leader's row is gone (deleted account). The round
			// continues; the skipped refund is recorded for audit.
			log.Println("Auction: refund skipped, no ledger row for", prevID)
			h.logEvent(prevID, "refund_orphaned", map[string]interface{}{
				"amount": prevBid, "carId": h.reward.ID,
			})
		}
	}

	h.currentBid = amount
	h.leaderID = playerID
	h.leaderName = displayName

	if prevID != "" && prevID != playerID {
		h.notify.Notify(prevID, NotifOutbid, "You were outbid on the "+h.reward.Name+" auction.", map[string]interface{}{
			"carId":    h.reward.ID,
			"newBid":   amount,
			"refunded": prevBid,
		})
	}
	h.logEvent(playerID, "auction_bid", map[string]interface{}{
		"amount":         amount,
		"carId":          h.reward.ID,
		"previousLeader": prevID,
	})

	return h.snapshotLocked(now), nil
}

// settleLocked is idempotent: the active flag drops first, so however
// many ticks observe an expired round, only the first one settles it.
func (h *AuctionHouse) settleLocked(now time.Time) {
	if !h.active {
		return
	}
	h.active = false
	// Cadence is anchored to the round's own start, not settlement
	// wall-clock, so a late tick does not drift the schedule.
	h.nextStartAt = h.startTime.Add(h.roundInterval)

	if h.leaderID == "" {
		log.Println("Auction: round ended with no bids")
		return
	}

	reward := carReward(h.reward, now, h.currentBid)
	if err := h.ledger.AppendReward(h.leaderID, reward); err != nil {
		// The winner must not stay debited with nothing granted. Give
		// the bid back and drop the round from history; it had no winner.
		log.Println("Auction: reward grant failed for", h.leaderID, err)
		h.logEvent(h.leaderID, "settle_grant_failed", map[string]interface{}{
			"carId": h.reward.ID, "amount": h.currentBid,
		})
		refunded, rErr := h.ledger.Credit(h.leaderID, h.currentBid)
		if rErr != nil || !refunded {
			log.Println("Auction: settle refund failed for", h.leaderID, rErr)
			h.logEvent(h.leaderID, "refund_orphaned", map[string]interface{}{
				"amount": h.currentBid, "carId": h.reward.ID,
			})
		}
		return
	}
	h.notify.Notify(h.leaderID, NotifWin, "You won the "+h.reward.Name+"! Claim it from your rewards.", map[string]interface{}{
		"carId":  h.reward.ID,
		"amount": h.currentBid,
	})

	h.history = append([]AuctionResult{{
		PlayerID:    h.leaderID,
		DisplayName: h.leaderName,
		Amount:      h.currentBid,
		Reward:      h.reward,
		SettledAt:   now,
	}}, h.history...)
	if len(h.history) > auctionHistoryLimit {
		h.history = h.history[:auctionHistoryLimit]
	}

	h.logEvent(h.leaderID, "auction_settled", map[string]interface{}{
		"carId": h.reward.ID, "amount": h.currentBid,
	})
	log.Printf("Auction: settled winner=%s amount=%d reward=%s", h.leaderID, h.currentBid, h.reward.ID)
}

func (h *AuctionHouse) Snapshot() AuctionSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked(h.now())
}

func (h *AuctionHouse) snapshotLocked(now time.Time) AuctionSnapshot {
	snap := AuctionSnapshot{
		Active:       h.active,
		CurrentBid:   h.currentBid,
		MinIncrement: h.minIncrement,
		LeaderID:     h.leaderID,
		LeaderName:   h.leaderName,
		History:      append([]AuctionResult(nil), h.history...),
	}
	if h.active {
		snap.StartTime = h.startTime
		snap.EndTime = h.endTime
		if remaining := h.endTime.Sub(now); remaining > 0 {
			snap.SecondsRemaining = int64(remaining.Seconds())
		}
		reward := h.reward
		snap.Reward = &reward
	} else if !h.nextStartAt.IsZero() {
		if wait := h.nextStartAt.Sub(now); wait > 0 {
			snap.NextRoundInSeconds = int64(wait.Seconds())
		}
	}
	return snap
}
