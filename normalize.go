package powerstats

import (
	"strconv"
	"strings"

	"github.com/railmon/powerstats/internal/sysmon"
)

// The system service flattens the HAL's typed tables into monitor
// names. These parsers recover the structure:
//
//	measurement  "[S2S_VDD_CPU]:cpu"  ->  name + subsystem
//	consumer     "CPU/1", "DISPLAY", "GPU"  ->  type + ordinal
//
// Malformed names are reported with ok=false; callers skip the entry
// and warn instead of failing the whole listing.

func parseMeterMonitor(m sysmon.PowerMonitor) (EnergyMeter, bool) {
	bracketed, subsystem, found := strings.Cut(m.Name, ":")
	if !found {
		return EnergyMeter{}, false
	}
	name, ok := strings.CutPrefix(bracketed, "[")
	if !ok {
		return EnergyMeter{}, false
	}
	name, ok = strings.CutSuffix(name, "]")
	if !ok {
		return EnergyMeter{}, false
	}
	return EnergyMeter{ID: m.Index, Name: name, Subsystem: subsystem}, true
}

func parseConsumerMonitor(m sysmon.PowerMonitor) (EnergyConsumer, bool) {
	typeName, ordStr, found := strings.Cut(m.Name, "/")
	var ordinal int32
	if found {
		v, err := strconv.ParseInt(ordStr, 10, 32)
		if err != nil {
			return EnergyConsumer{}, false
		}
		ordinal = int32(v)
	}
	if typeName == "" {
		return EnergyConsumer{}, false
	}
	// Unknown type names (e.g. "GPU") stay Other and keep the raw name.
	typ, _ := ParseEnergyConsumerType(typeName)
	return EnergyConsumer{ID: m.Index, Name: typeName, Ordinal: ordinal, Type: typ}, true
}
