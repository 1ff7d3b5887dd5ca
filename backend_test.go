package goGuard

import (
	"testing"
	"time"
)

func TestBanStatusEvaluation(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if NotBanned().IsBannedAt(now) {
		t.Fatal("NotBanned must not be banned")
	}

	permanent := BannedPermanently("spam", "mod-1")
	if !permanent.IsBannedAt(now) || !permanent.IsBannedAt(now.AddDate(100, 0, 0)) {
		t.Fatal("permanent ban must hold at any time")
	}
	if !permanent.Permanent() {
		t.Fatal("expected Permanent() for a ban without expiry")
	}

	future := BannedUntil("abuse", now.Add(time.Hour), "mod-2")
	if !future.IsBannedAt(now) {
		t.Fatal("ban expiring in the future must hold")
	}
	if future.Permanent() {
		t.Fatal("expiring ban must not report permanent")
	}

	past := BannedUntil("abuse", now.Add(-time.Second), "mod-2")
	if past.IsBannedAt(now) {
		t.Fatal("ban with past expiry must not hold")
	}
	if past.IsBanned() {
		t.Fatal("ban with past expiry must not hold against the wall clock")
	}
}
