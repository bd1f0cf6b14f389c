package main

import "testing"

func TestApplyAuctionSetting(t *testing.T) {
	s := AuctionSettings{
		StartingBid:     5000,
		MinIncrement:    100,
		DurationSeconds: 300,
		IntervalSeconds: 900,
	}

	applyAuctionSetting(&s, "auction_starting_bid", "7500")
	applyAuctionSetting(&s, "auction_min_increment", "250")
	applyAuctionSetting(&s, "auction_duration_seconds", "120")
	applyAuctionSetting(&s, "auction_interval_seconds", "600")
	applyAuctionSetting(&s, "auction_reward_override", "solaris")

	if s.StartingBid != 7500 || s.MinIncrement != 250 {
		t.Fatalf("bid settings not applied: %+v", s)
	}
	if s.DurationSeconds != 120 || s.IntervalSeconds != 600 {
		t.Fatalf("timing settings not applied: %+v", s)
	}
	if s.RewardOverride != "solaris" {
		t.Fatalf("RewardOverride=%q want=solaris", s.RewardOverride)
	}
}

func TestApplyAuctionSettingIgnoresBadValues(t *testing.T) {
	s := AuctionSettings{
		StartingBid:     5000,
		MinIncrement:    100,
		DurationSeconds: 300,
		IntervalSeconds: 900,
	}
	before := s

	applyAuctionSetting(&s, "auction_starting_bid", "not-a-number")
	applyAuctionSetting(&s, "auction_starting_bid", "-1")
	applyAuctionSetting(&s, "auction_min_increment", "0")
	applyAuctionSetting(&s, "auction_duration_seconds", "-5")
	applyAuctionSetting(&s, "auction_interval_seconds", "")
	applyAuctionSetting(&s, "some_unrelated_key", "42")

	if s != before {
		t.Fatalf("bad values mutated settings: %+v", s)
	}

	// Starting bid of zero is allowed (free-entry rounds).
	applyAuctionSetting(&s, "auction_starting_bid", "0")
	if s.StartingBid != 0 {
		t.Fatalf("StartingBid=%d want=0", s.StartingBid)
	}
}

func TestApplyAuctionSettingClearsOverride(t *testing.T) {
	s := AuctionSettings{RewardOverride: "solaris"}
	applyAuctionSetting(&s, "auction_reward_override", "")
	if s.RewardOverride != "" {
		t.Fatalf("RewardOverride=%q want empty", s.RewardOverride)
	}
}

func TestApplyAuctionSettingNormalizesKeys(t *testing.T) {
	s := AuctionSettings{MinIncrement: 100}
	applyAuctionSetting(&s, "  AUCTION_MIN_INCREMENT  ", " 500 ")
	if s.MinIncrement != 500 {
		t.Fatalf("MinIncrement=%d want=500", s.MinIncrement)
	}
}
