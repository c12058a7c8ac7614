package hal

import "github.com/railmon/powerstats/internal/parcel"

// Result vectors are plain count-prefixed runs of sized parcelables. The
// count is validated against the remaining payload by the element reads
// themselves; a short buffer surfaces as a truncation error, never a panic.

func writeChannels(w *parcel.Writer, chans []Channel) {
	w.WriteInt32(int32(len(chans)))
	for _, c := range chans {
		c.writeTo(w)
	}
}

func readChannels(r *parcel.Reader) ([]Channel, error) {
	n, err := r.Int32()
	if err != nil {
		return nil, err
	}
	out := make([]Channel, 0, vectorCap(n))
	for i := int32(0); i < n; i++ {
		c, err := readChannel(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func writeEnergyMeasurements(w *parcel.Writer, meas []EnergyMeasurement) {
	w.WriteInt32(int32(len(meas)))
	for _, m := range meas {
		m.writeTo(w)
	}
}

func readEnergyMeasurements(r *parcel.Reader) ([]EnergyMeasurement, error) {
	n, err := r.Int32()
	if err != nil {
		return nil, err
	}
	out := make([]EnergyMeasurement, 0, vectorCap(n))
	for i := int32(0); i < n; i++ {
		m, err := readEnergyMeasurement(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func writeEnergyConsumers(w *parcel.Writer, cons []EnergyConsumer) {
	w.WriteInt32(int32(len(cons)))
	for _, c := range cons {
		c.writeTo(w)
	}
}

func readEnergyConsumers(r *parcel.Reader) ([]EnergyConsumer, error) {
	n, err := r.Int32()
	if err != nil {
		return nil, err
	}
	out := make([]EnergyConsumer, 0, vectorCap(n))
	for i := int32(0); i < n; i++ {
		c, err := readEnergyConsumer(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func writeEnergyConsumerResults(w *parcel.Writer, results []EnergyConsumerResult) {
	w.WriteInt32(int32(len(results)))
	for _, res := range results {
		res.writeTo(w)
	}
}

func readEnergyConsumerResults(r *parcel.Reader) ([]EnergyConsumerResult, error) {
	n, err := r.Int32()
	if err != nil {
		return nil, err
	}
	out := make([]EnergyConsumerResult, 0, vectorCap(n))
	for i := int32(0); i < n; i++ {
		res, err := readEnergyConsumerResult(r)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func writePowerEntities(w *parcel.Writer, ents []PowerEntity) {
	w.WriteInt32(int32(len(ents)))
	for _, e := range ents {
		e.writeTo(w)
	}
}

func readPowerEntities(r *parcel.Reader) ([]PowerEntity, error) {
	n, err := r.Int32()
	if err != nil {
		return nil, err
	}
	out := make([]PowerEntity, 0, vectorCap(n))
	for i := int32(0); i < n; i++ {
		e, err := readPowerEntity(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func writeStateResidencyResults(w *parcel.Writer, results []StateResidencyResult) {
	w.WriteInt32(int32(len(results)))
	for _, res := range results {
		res.writeTo(w)
	}
}

func readStateResidencyResults(r *parcel.Reader) ([]StateResidencyResult, error) {
	n, err := r.Int32()
	if err != nil {
		return nil, err
	}
	out := make([]StateResidencyResult, 0, vectorCap(n))
	for i := int32(0); i < n; i++ {
		res, err := readStateResidencyResult(r)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// vectorCap bounds the initial allocation for a declared element count.
// Corrupt counts fail on the first element read; they must not reserve
// gigabytes up front.
func vectorCap(n int32) int32 {
	const max = 4096
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}
