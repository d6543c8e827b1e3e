package workerstats

import (
	"testing"
	"time"
)

func TestHasNonceAndCreditShare(t *testing.T) {
	s := New("kaspa:addr", "worker1", 64, false)

	if s.HasNonce("abc") {
		t.Fatal("unexpected nonce hit on empty ring")
	}

	s.CreditShare(64, "abc")

	if !s.HasNonce("abc") {
		t.Fatal("expected nonce to be recorded")
	}
	if s.SharesFound.Load() != 1 {
		t.Fatalf("SharesFound = %d, want 1", s.SharesFound.Load())
	}
}

func TestHashrateGHs(t *testing.T) {
	s := New("kaspa:addr", "worker1", 1000, false)
	now := time.Now()

	if got := s.HashrateGHs(now, time.Minute); got != 0 {
		t.Fatalf("expected 0 hashrate with no shares, got %v", got)
	}

	s.mu.Lock()
	s.RecentShares = []RecentShare{
		{Timestamp: now.Add(-30 * time.Second), Difficulty: 1000, Nonce: "1"},
		{Timestamp: now.Add(-10 * time.Second), Difficulty: 1000, Nonce: "2"},
	}
	s.mu.Unlock()

	got := s.HashrateGHs(now, time.Minute)
	if got <= 0 {
		t.Fatalf("expected positive hashrate, got %v", got)
	}
}

func TestDifficultyToHashes(t *testing.T) {
	if got := DifficultyToHashes(1); got != 4294967296.0/1e9 {
		t.Fatalf("DifficultyToHashes(1) = %v", got)
	}
}

func TestCheckActive(t *testing.T) {
	s := New("kaspa:addr", "worker1", 64, false)
	now := time.Now()

	if s.CheckActive(now) != 0 {
		t.Fatal("expected inactive worker with no shares")
	}

	s.CreditShare(64, "abc")
	if s.CheckActive(time.Now()) == 0 {
		t.Fatal("expected active worker right after a share")
	}
	if s.CheckActive(now.Add(11 * time.Minute)) != 0 {
		t.Fatal("expected worker to go inactive after the active window elapses")
	}
}

func TestSetMinDiffAndConsumeDiffChange(t *testing.T) {
	s := New("kaspa:addr", "worker1", 64, false)

	if _, changed := s.ConsumeDiffChange(); changed {
		t.Fatal("fresh worker should have no pending diff change")
	}

	prev, changed := s.SetMinDiff(64)
	if changed {
		t.Fatal("setting the same difficulty should report unchanged")
	}
	_ = prev

	prev, changed = s.SetMinDiff(128)
	if !changed || prev != 64 {
		t.Fatalf("SetMinDiff(128) = (%v, %v), want (64, true)", prev, changed)
	}

	newDiff, changed := s.ConsumeDiffChange()
	if !changed || newDiff != 128 {
		t.Fatalf("ConsumeDiffChange() = (%v, %v), want (128, true)", newDiff, changed)
	}
	if _, changed := s.ConsumeDiffChange(); changed {
		t.Fatal("second consume should report no further change")
	}
}

func TestRejectionRate(t *testing.T) {
	s := New("kaspa:addr", "worker1", 64, false)
	if s.RejectionRate() != 0 {
		t.Fatal("expected zero rejection rate with no shares")
	}

	s.SharesFound.Store(10)
	s.InvalidShares.Store(2)
	if got := s.RejectionRate(); got != 0.2 {
		t.Fatalf("RejectionRate() = %v, want 0.2", got)
	}
}

func TestArmAndResetVarDiffWindow(t *testing.T) {
	s := New("kaspa:addr", "worker1", 64, true)

	s.ArmVarDiff()
	_, _, start, _ := s.SnapshotVarDiff()
	if start.IsZero() {
		t.Fatal("expected vardiff start time to be armed")
	}

	s.AdvanceVarDiffWindow()
	_, window, _, _ := s.SnapshotVarDiff()
	if window != 1 {
		t.Fatalf("VarDiffWindow = %d, want 1", window)
	}

	s.ResetVarDiffWindow()
	_, window, start, _ = s.SnapshotVarDiff()
	if window != 0 || !start.IsZero() {
		t.Fatal("expected ResetVarDiffWindow to clear window and start time")
	}
}
