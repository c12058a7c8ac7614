package main

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/railmon/powerstats/internal/hal"
	"github.com/railmon/powerstats/internal/ipc"
)

// railDef is a template for a synthetic power rail, modeled on the
// rail naming of Pixel-class power monitors.
type railDef struct {
	name      string
	subsystem string
	baseUW    int64
}

var railDefs = []railDef{
	{"S2S_VDD_CPUCL0", "cpu", 350_000},
	{"S3S_VDD_CPUCL1", "cpu", 250_000},
	{"S2S_VDD_G3D", "gpu", 180_000},
	{"S5S_VDD_DISP", "display", 420_000},
	{"S1S_VDD_WLAN_BT", "wifi", 60_000},
	{"S8S_VDD_DDR", "memory", 150_000},
	{"S4S_VDD_MODEM", "radio", 90_000},
	{"S6S_VDD_CAM", "camera", 15_000},
	{"S7S_VDD_AOC", "aoc", 25_000},
	{"S9S_VDD_TPU", "tpu", 45_000},
}

// consumerDef describes one requested energy consumer.
type consumerDef struct {
	name    string
	typ     hal.EnergyConsumerType
	ordinal int32
}

// simRail is the runtime handle the jitter loop works with: a channel
// or consumer id plus the base power its draw wobbles around.
type simRail struct {
	id     int32
	name   string
	baseUW int64
}

// parseConsumers turns a comma-separated list of TYPE[/ordinal] tokens
// into consumer definitions. Types not in the energy consumer enum
// (say GPU) become OTHER consumers named after the token.
func parseConsumers(list string) ([]consumerDef, error) {
	var defs []consumerDef
	for _, tok := range strings.Split(list, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		base, ordStr, hasOrd := strings.Cut(tok, "/")
		var ordinal int32
		if hasOrd {
			n, err := strconv.ParseInt(ordStr, 10, 32)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("bad ordinal in %q", tok)
			}
			ordinal = int32(n)
		}

		typ, known := consumerTypeFromToken(base)
		name := typ.String()
		switch {
		case !known:
			name = strings.ToUpper(base)
		case typ == hal.EnergyConsumerCPUCluster:
			name = fmt.Sprintf("CPUCL%d", ordinal)
		}
		defs = append(defs, consumerDef{name: name, typ: typ, ordinal: ordinal})
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("empty consumer list")
	}
	return defs, nil
}

func consumerTypeFromToken(s string) (hal.EnergyConsumerType, bool) {
	switch strings.ToUpper(s) {
	case "CPU", "CPU_CLUSTER":
		return hal.EnergyConsumerCPUCluster, true
	case "BLUETOOTH":
		return hal.EnergyConsumerBluetooth, true
	case "DISPLAY":
		return hal.EnergyConsumerDisplay, true
	case "GNSS":
		return hal.EnergyConsumerGNSS, true
	case "MOBILE_RADIO":
		return hal.EnergyConsumerMobileRadio, true
	case "WIFI":
		return hal.EnergyConsumerWiFi, true
	case "CAMERA":
		return hal.EnergyConsumerCamera, true
	}
	return hal.EnergyConsumerOther, false
}

// buildRails picks the first n rail templates, cycling with a numeric
// suffix when more rails are requested than templates exist.
func buildRails(n int) []railDef {
	out := make([]railDef, n)
	for i := 0; i < n; i++ {
		def := railDefs[i%len(railDefs)]
		if rep := i / len(railDefs); rep > 0 {
			def.name = fmt.Sprintf("%s_%d", def.name, rep+1)
		}
		out[i] = def
	}
	return out
}

// basePowerUW is the nominal draw for a consumer type before jitter.
func basePowerUW(typ hal.EnergyConsumerType) int64 {
	switch typ {
	case hal.EnergyConsumerCPUCluster:
		return 300_000
	case hal.EnergyConsumerDisplay:
		return 400_000
	case hal.EnergyConsumerWiFi:
		return 50_000
	case hal.EnergyConsumerBluetooth:
		return 20_000
	case hal.EnergyConsumerMobileRadio:
		return 80_000
	case hal.EnergyConsumerGNSS:
		return 30_000
	case hal.EnergyConsumerCamera:
		return 10_000
	}
	return 120_000
}

// attributionUIDs fakes the per-UID energy split reported for a
// consumer. UID 1000 is "system"; app UIDs start at 10040.
func attributionUIDs(typ hal.EnergyConsumerType, ordinal int32) []int32 {
	switch typ {
	case hal.EnergyConsumerCPUCluster:
		return []int32{1000, 10040 + ordinal}
	case hal.EnergyConsumerDisplay, hal.EnergyConsumerWiFi:
		return []int32{1000}
	}
	return nil
}

// buildTopology assembles the mock HAL: rails, consumers with UID
// attribution, and a fixed set of power entities. Startup draws are
// the template bases wobbled once by the seeded rng, so different
// seeds give different (but reproducible) devices.
func buildTopology(rng *rand.Rand, railCount int, consumers []consumerDef) (*hal.MockService, []simRail, []simRail) {
	mock := hal.NewMockService()

	rails := buildRails(railCount)
	chans := make([]simRail, 0, len(rails))
	for i, r := range rails {
		base := jitterPower(r.baseUW, rng)
		id := int32(i)
		mock.AddChannel(id, r.name, r.subsystem, base)
		chans = append(chans, simRail{id: id, name: r.name, baseUW: base})
	}

	cons := make([]simRail, 0, len(consumers))
	for i, c := range consumers {
		base := jitterPower(basePowerUW(c.typ), rng)
		id := int32(i)
		mock.AddConsumer(id, c.typ, c.ordinal, c.name, base, attributionUIDs(c.typ, c.ordinal)...)
		cons = append(cons, simRail{id: id, name: c.name, baseUW: base})
	}

	mock.AddEntity(0, "GPU", "ACTIVE", "SUSPEND")
	mock.AddEntity(1, "DISPLAY", "On", "Off", "Doze")
	mock.AddEntity(2, "SOC", "AWAKE", "SLEEP", "DEEP_SLEEP")
	mock.AddEntity(3, "CPU-CL0", "WFI", "CORE_DOWN")

	return mock, chans, cons
}

// faultOps are the read paths eligible for injected failures. Info
// calls stay reliable so clients can always enumerate the topology.
var faultOps = []string{"ReadEnergyMeter", "GetEnergyConsumed", "GetStateResidency"}

// jitterLoop nudges every draw around its base each tick and, at the
// configured rate, arms a transient failure on one read op for a
// single tick. Counters stay monotonic across rate changes, matching
// real hardware.
func jitterLoop(ctx context.Context, mock *hal.MockService, chans, cons []simRail, tick time.Duration, failRate float64, rng *rand.Rand, logger zerolog.Logger) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var failing string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, r := range chans {
			mock.SetChannelPower(r.id, jitterPower(r.baseUW, rng))
		}
		for _, c := range cons {
			mock.SetConsumerPower(c.id, jitterPower(c.baseUW, rng))
		}

		if failing != "" {
			mock.SetError(failing, nil)
			failing = ""
		}
		if failRate > 0 && rng.Float64() < failRate {
			failing = faultOps[rng.Intn(len(faultOps))]
			mock.SetError(failing, ipc.Errorf(ipc.CodeIllegalState, "simulated transient failure"))
			logger.Debug().Str("event", "sim.fault_injected").Str("op", failing).Msg("read failure armed for one tick")
		}
	}
}

// jitterPower wobbles a draw ±15% around base.
func jitterPower(base int64, rng *rand.Rand) int64 {
	factor := 0.85 + 0.3*rng.Float64()
	return int64(float64(base) * factor)
}
