package main

import (
	"context"
	"math/rand"
	"testing"

	"github.com/railmon/powerstats/internal/hal"
)

func TestParseConsumers(t *testing.T) {
	defs, err := parseConsumers("CPU/0,CPU/1,DISPLAY,WIFI,GPU")
	if err != nil {
		t.Fatalf("parseConsumers: %v", err)
	}
	want := []consumerDef{
		{name: "CPUCL0", typ: hal.EnergyConsumerCPUCluster, ordinal: 0},
		{name: "CPUCL1", typ: hal.EnergyConsumerCPUCluster, ordinal: 1},
		{name: "DISPLAY", typ: hal.EnergyConsumerDisplay},
		{name: "WIFI", typ: hal.EnergyConsumerWiFi},
		{name: "GPU", typ: hal.EnergyConsumerOther},
	}
	if len(defs) != len(want) {
		t.Fatalf("got %d consumers, want %d", len(defs), len(want))
	}
	for i, w := range want {
		if defs[i] != w {
			t.Errorf("consumer %d = %+v, want %+v", i, defs[i], w)
		}
	}
}

func TestParseConsumersBadOrdinal(t *testing.T) {
	if _, err := parseConsumers("CPU/x"); err == nil {
		t.Fatal("expected error for non-numeric ordinal")
	}
	if _, err := parseConsumers("CPU/-1"); err == nil {
		t.Fatal("expected error for negative ordinal")
	}
}

func TestParseConsumersEmpty(t *testing.T) {
	if _, err := parseConsumers(""); err == nil {
		t.Fatal("expected error for empty list")
	}
	if _, err := parseConsumers(" , "); err == nil {
		t.Fatal("expected error for blank tokens")
	}
}

func TestBuildRailsCyclesTemplates(t *testing.T) {
	rails := buildRails(len(railDefs) + 2)
	if got := rails[0].name; got != "S2S_VDD_CPUCL0" {
		t.Errorf("rail 0 name = %q", got)
	}
	if got := rails[len(railDefs)].name; got != "S2S_VDD_CPUCL0_2" {
		t.Errorf("wrapped rail name = %q", got)
	}
	seen := make(map[string]bool)
	for _, r := range rails {
		if seen[r.name] {
			t.Fatalf("duplicate rail name %q", r.name)
		}
		seen[r.name] = true
	}
}

func TestJitterPowerStaysInBand(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		p := jitterPower(100_000, rng)
		if p < 85_000 || p > 115_000 {
			t.Fatalf("jittered power %d outside ±15%% band", p)
		}
	}
}

func TestBuildTopologyDeterministic(t *testing.T) {
	defs, err := parseConsumers("CPU/0,DISPLAY")
	if err != nil {
		t.Fatalf("parseConsumers: %v", err)
	}

	_, chansA, consA := buildTopology(rand.New(rand.NewSource(42)), 4, defs)
	_, chansB, consB := buildTopology(rand.New(rand.NewSource(42)), 4, defs)

	if len(chansA) != 4 || len(consA) != 2 {
		t.Fatalf("got %d rails, %d consumers", len(chansA), len(consA))
	}
	for i := range chansA {
		if chansA[i] != chansB[i] {
			t.Errorf("rail %d differs across same-seed builds: %+v vs %+v", i, chansA[i], chansB[i])
		}
	}
	for i := range consA {
		if consA[i] != consB[i] {
			t.Errorf("consumer %d differs across same-seed builds: %+v vs %+v", i, consA[i], consB[i])
		}
	}
}

func TestBuildTopologyAttribution(t *testing.T) {
	defs, err := parseConsumers("CPU/2,GPU")
	if err != nil {
		t.Fatalf("parseConsumers: %v", err)
	}
	mock, _, _ := buildTopology(rand.New(rand.NewSource(1)), 1, defs)

	results, err := mock.GetEnergyConsumed(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetEnergyConsumed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if len(results[0].Attribution) != 2 {
		t.Fatalf("CPU cluster attribution = %d UIDs, want 2", len(results[0].Attribution))
	}
	if got := results[0].Attribution[1].UID; got != 10042 {
		t.Errorf("app UID = %d, want 10042", got)
	}
	if len(results[1].Attribution) != 0 {
		t.Errorf("OTHER consumer should have no attribution, got %d UIDs", len(results[1].Attribution))
	}
}
