package hal

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/railmon/powerstats/internal/parcel"
)

func TestResultVectorRoundTrips(t *testing.T) {
	channels := []Channel{
		{ID: 0, Name: "S2S_VDD_CPU", Subsystem: "cpu"},
		{ID: 1, Name: "S3S_VDD_GPU", Subsystem: "gpu"},
	}
	measurements := []EnergyMeasurement{
		{ID: 0, TimestampMs: 1200, DurationMs: 1200, EnergyUWs: 981_233},
		{ID: 1, TimestampMs: 1200, DurationMs: 1200, EnergyUWs: 44},
	}
	consumers := []EnergyConsumer{
		{ID: 3, Ordinal: 0, Type: EnergyConsumerCPUCluster, Name: "CPUCL0"},
		{ID: 4, Ordinal: 1, Type: EnergyConsumerCPUCluster, Name: "CPUCL1"},
		{ID: 5, Ordinal: 0, Type: EnergyConsumerOther, Name: "GPU"},
	}
	consumed := []EnergyConsumerResult{
		{ID: 3, TimestampMs: 900, EnergyUWs: 5000, Attribution: []EnergyConsumerAttribution{
			{UID: 1000, EnergyUWs: 3000},
			{UID: 10042, EnergyUWs: 2000},
		}},
		{ID: 5, TimestampMs: 900, EnergyUWs: 77},
	}
	entities := []PowerEntity{
		{ID: 0, Name: "DISPLAY", States: []State{{ID: 0, Name: "On"}, {ID: 1, Name: "Off"}}},
		{ID: 1, Name: "CPU", States: nil},
	}
	residency := []StateResidencyResult{
		{ID: 0, StateResidencyData: []StateResidency{
			{ID: 0, TotalTimeInStateMs: 640, TotalStateEntryCount: 3, LastEntryTimestampMs: 900},
			{ID: 1, TotalTimeInStateMs: 260, TotalStateEntryCount: 3, LastEntryTimestampMs: 640},
		}},
	}

	t.Run("channels", func(t *testing.T) {
		w := parcel.NewWriter()
		writeChannels(w, channels)
		got, err := readChannels(parcel.NewReader(w.Bytes()))
		if err != nil {
			t.Fatalf("readChannels: %v", err)
		}
		if diff := cmp.Diff(channels, got); diff != "" {
			t.Errorf("channels mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("measurements", func(t *testing.T) {
		w := parcel.NewWriter()
		writeEnergyMeasurements(w, measurements)
		got, err := readEnergyMeasurements(parcel.NewReader(w.Bytes()))
		if err != nil {
			t.Fatalf("readEnergyMeasurements: %v", err)
		}
		if diff := cmp.Diff(measurements, got); diff != "" {
			t.Errorf("measurements mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("consumers", func(t *testing.T) {
		w := parcel.NewWriter()
		writeEnergyConsumers(w, consumers)
		got, err := readEnergyConsumers(parcel.NewReader(w.Bytes()))
		if err != nil {
			t.Fatalf("readEnergyConsumers: %v", err)
		}
		if diff := cmp.Diff(consumers, got); diff != "" {
			t.Errorf("consumers mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("consumed", func(t *testing.T) {
		w := parcel.NewWriter()
		writeEnergyConsumerResults(w, consumed)
		got, err := readEnergyConsumerResults(parcel.NewReader(w.Bytes()))
		if err != nil {
			t.Fatalf("readEnergyConsumerResults: %v", err)
		}
		if diff := cmp.Diff(consumed, got); diff != "" {
			t.Errorf("consumed mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("entities", func(t *testing.T) {
		w := parcel.NewWriter()
		writePowerEntities(w, entities)
		got, err := readPowerEntities(parcel.NewReader(w.Bytes()))
		if err != nil {
			t.Fatalf("readPowerEntities: %v", err)
		}
		if diff := cmp.Diff(entities, got); diff != "" {
			t.Errorf("entities mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("residency", func(t *testing.T) {
		w := parcel.NewWriter()
		writeStateResidencyResults(w, residency)
		got, err := readStateResidencyResults(parcel.NewReader(w.Bytes()))
		if err != nil {
			t.Fatalf("readStateResidencyResults: %v", err)
		}
		if diff := cmp.Diff(residency, got); diff != "" {
			t.Errorf("residency mismatch (-want +got):\n%s", diff)
		}
	})
}

// A peer built against a newer interface revision may append fields to a
// parcelable. The size prefix lets us skip what we do not know.
func TestReaderSkipsNewerChannelFields(t *testing.T) {
	w := parcel.NewWriter()
	w.WriteInt32(1)
	w.WriteSized(func(w *parcel.Writer) {
		w.WriteInt32(7)
		w.WriteString16("VDD_AOC")
		w.WriteString16("aoc")
		w.WriteInt32(12345) // hypothetical future field
	})

	got, err := readChannels(parcel.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("readChannels: %v", err)
	}
	want := []Channel{{ID: 7, Name: "VDD_AOC", Subsystem: "aoc"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("channel mismatch (-want +got):\n%s", diff)
	}
}

// A peer built against an older revision omits trailing fields; they
// must come back zero-valued rather than failing the read.
func TestReaderDefaultsOlderMeasurementFields(t *testing.T) {
	w := parcel.NewWriter()
	w.WriteInt32(1)
	w.WriteSized(func(w *parcel.Writer) {
		w.WriteInt32(2)
		w.WriteInt64(5000) // timestamp only, no duration or energy
	})

	got, err := readEnergyMeasurements(parcel.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("readEnergyMeasurements: %v", err)
	}
	want := []EnergyMeasurement{{ID: 2, TimestampMs: 5000}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("measurement mismatch (-want +got):\n%s", diff)
	}
}

func TestTruncatedVectorFails(t *testing.T) {
	w := parcel.NewWriter()
	writeChannels(w, []Channel{{ID: 1, Name: "RAIL", Subsystem: "soc"}})
	raw := w.Bytes()

	if _, err := readChannels(parcel.NewReader(raw[:len(raw)-6])); err == nil {
		t.Fatal("expected error for truncated vector")
	}
}

func TestHugeCountDoesNotPreallocate(t *testing.T) {
	w := parcel.NewWriter()
	w.WriteInt32(1 << 30)

	// Must fail fast on the first element, not try to reserve memory
	// for the declared count.
	if _, err := readChannels(parcel.NewReader(w.Bytes())); err == nil {
		t.Fatal("expected error for lying count")
	}
}

func TestEnergyConsumerTypeString(t *testing.T) {
	cases := []struct {
		typ  EnergyConsumerType
		want string
	}{
		{EnergyConsumerOther, "OTHER"},
		{EnergyConsumerBluetooth, "BLUETOOTH"},
		{EnergyConsumerCPUCluster, "CPU_CLUSTER"},
		{EnergyConsumerDisplay, "DISPLAY"},
		{EnergyConsumerGNSS, "GNSS"},
		{EnergyConsumerMobileRadio, "MOBILE_RADIO"},
		{EnergyConsumerWiFi, "WIFI"},
		{EnergyConsumerCamera, "CAMERA"},
		{EnergyConsumerType(99), "TYPE(99)"},
	}
	for _, tc := range cases {
		if got := tc.typ.String(); got != tc.want {
			t.Errorf("String(%d) = %q, want %q", int32(tc.typ), got, tc.want)
		}
	}
}
