package store

import (
	"context"
	"testing"
	"time"

	"github.com/railmon/powerstats"
)

func openTestHistory(t *testing.T, retention time.Duration) *History {
	t.Helper()
	h, err := Open(t.TempDir(), retention)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := h.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return h
}

func snapshotAt(ts time.Time, energyUWs int64) *powerstats.Snapshot {
	return &powerstats.Snapshot{
		TakenAt: ts.UTC(),
		Backend: powerstats.BackendVendorHAL,
		Meters: []powerstats.MeterSnapshot{{
			Meter: powerstats.EnergyMeter{ID: 0, Name: "S2S_VDD_CPU", Subsystem: "cpu"},
			Reading: powerstats.EnergyMeterReading{
				Timestamp: time.Duration(ts.UnixNano()),
				EnergyUWs: energyUWs,
			},
		}},
	}
}

func TestAppendAndRecent(t *testing.T) {
	h := openTestHistory(t, 0)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		snap := snapshotAt(base.Add(time.Duration(i)*time.Minute), int64(i)*1000)
		if err := h.Append(ctx, snap); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, err := h.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent returned %d snapshots, want 3", len(got))
	}
	// Newest first.
	for i, wantEnergy := range []int64{4000, 3000, 2000} {
		if e := got[i].Meters[0].Reading.EnergyUWs; e != wantEnergy {
			t.Errorf("Recent[%d] energy = %d, want %d", i, e, wantEnergy)
		}
	}
}

func TestRecentMoreThanStored(t *testing.T) {
	h := openTestHistory(t, 0)
	ctx := context.Background()

	if err := h.Append(ctx, snapshotAt(time.Now(), 42)); err != nil {
		t.Fatal(err)
	}
	got, err := h.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Recent returned %d, want 1", len(got))
	}
}

func TestRecentZeroOrNegative(t *testing.T) {
	h := openTestHistory(t, 0)
	got, err := h.Recent(context.Background(), 0)
	if err != nil || got != nil {
		t.Errorf("Recent(0) = %v, %v", got, err)
	}
}

func TestRangeBounds(t *testing.T) {
	h := openTestHistory(t, 0)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(1 * time.Minute),
		base.Add(2 * time.Minute),
		base.Add(3 * time.Minute),
	}
	for i, ts := range times {
		if err := h.Append(ctx, snapshotAt(ts, int64(i))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := h.Range(ctx, times[1], times[2])
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Range returned %d snapshots, want 2 (inclusive bounds)", len(got))
	}
	if got[0].TakenAt.After(got[1].TakenAt) {
		t.Error("Range should return oldest first")
	}
	if got[0].Meters[0].Reading.EnergyUWs != 1 || got[1].Meters[0].Reading.EnergyUWs != 2 {
		t.Errorf("Range picked wrong snapshots: %d, %d",
			got[0].Meters[0].Reading.EnergyUWs, got[1].Meters[0].Reading.EnergyUWs)
	}
}

func TestRangeInvertedBoundsRejected(t *testing.T) {
	h := openTestHistory(t, 0)
	now := time.Now()
	if _, err := h.Range(context.Background(), now, now.Add(-time.Hour)); err == nil {
		t.Fatal("inverted range should fail")
	}
}

func TestRangeEmptyWindow(t *testing.T) {
	h := openTestHistory(t, 0)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := h.Append(ctx, snapshotAt(base, 1)); err != nil {
		t.Fatal(err)
	}

	got, err := h.Range(ctx, base.Add(time.Hour), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Range outside data returned %d snapshots", len(got))
	}
}

func TestRetentionExpiresSnapshots(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for badger TTL expiry")
	}
	h := openTestHistory(t, time.Second)
	ctx := context.Background()

	if err := h.Append(ctx, snapshotAt(time.Now(), 1)); err != nil {
		t.Fatal(err)
	}
	if got, _ := h.Recent(ctx, 1); len(got) != 1 {
		t.Fatal("fresh snapshot should be visible")
	}

	// Badger TTL has one-second granularity.
	time.Sleep(2200 * time.Millisecond)

	got, err := h.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("snapshot should have expired, got %d", len(got))
	}
}

func TestSnapshotSurvivesRoundTrip(t *testing.T) {
	h := openTestHistory(t, 0)
	ctx := context.Background()

	d := 10 * time.Second
	snap := &powerstats.Snapshot{
		TakenAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Backend: powerstats.BackendVendorHAL,
		Meters: []powerstats.MeterSnapshot{{
			Meter: powerstats.EnergyMeter{ID: 2, Name: "VDD_DISPLAY", Subsystem: "display"},
			Reading: powerstats.EnergyMeterReading{
				Timestamp: 10 * time.Second,
				Duration:  &d,
				EnergyUWs: 2_400_000,
			},
		}},
		Consumers: []powerstats.ConsumerSnapshot{{
			Consumer: powerstats.EnergyConsumer{
				ID: 10, Name: "CPUCL0", Type: powerstats.ConsumerCPUCluster,
			},
			Reading: powerstats.EnergyConsumerReading{
				Timestamp: 10 * time.Second,
				EnergyUWs: 1_200_000,
				Attribution: []powerstats.EnergyConsumerAttribution{
					{UID: 1000, EnergyUWs: 600_000},
				},
			},
		}},
	}
	if err := h.Append(ctx, snap); err != nil {
		t.Fatal(err)
	}

	got, err := h.Recent(ctx, 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("Recent: %v (%d)", err, len(got))
	}
	r := got[0]
	if r.Backend != powerstats.BackendVendorHAL {
		t.Errorf("Backend = %q", r.Backend)
	}
	if r.Meters[0].Reading.Duration == nil || *r.Meters[0].Reading.Duration != d {
		t.Error("meter duration lost in round trip")
	}
	if len(r.Consumers[0].Reading.Attribution) != 1 {
		t.Error("attribution lost in round trip")
	}
	if r.Consumers[0].Consumer.Type != powerstats.ConsumerCPUCluster {
		t.Errorf("consumer type = %v", r.Consumers[0].Consumer.Type)
	}
}
