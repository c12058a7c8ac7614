package main

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimeFlagRFC3339(t *testing.T) {
	got, err := parseTimeFlag("from", "2026-03-01T12:30:00Z", time.Time{})
	if err != nil {
		t.Fatalf("parseTimeFlag: %v", err)
	}
	want := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseTimeFlagBareDate(t *testing.T) {
	got, err := parseTimeFlag("to", "2026-03-01", time.Time{})
	if err != nil {
		t.Fatalf("parseTimeFlag: %v", err)
	}
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseTimeFlagEmptyFallsBack(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := parseTimeFlag("to", "", fallback)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(fallback) {
		t.Errorf("got %v, want fallback %v", got, fallback)
	}
}

func TestParseTimeFlagInvalidIsUsageError(t *testing.T) {
	_, err := parseTimeFlag("from", "yesterday", time.Time{})
	if err == nil {
		t.Fatal("invalid time should be rejected")
	}
	var ue *usageError
	if !errors.As(err, &ue) {
		t.Errorf("invalid time should be a usage error, got %T", err)
	}
}
