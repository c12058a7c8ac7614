package hal

import (
	"context"
	"sync"
	"time"

	"github.com/railmon/powerstats/internal/ipc"
)

// MockService is an in-process HAL implementation for tests and the
// simulator. Channels, consumers and entities are registered up front;
// energy accumulates linearly with the configured clock, so a fake
// clock makes every reading deterministic. Power draws can be changed
// while running; the cumulative counters stay monotonic across rate
// changes.
type MockService struct {
	mu    sync.Mutex
	now   func() time.Time
	start time.Time

	channels    []Channel
	chanPowerUW map[int32]int64
	chanBanked  map[int32]int64
	chanSince   map[int32]time.Time

	consumers   []EnergyConsumer
	consPowerUW map[int32]int64
	consBanked  map[int32]int64
	consSince   map[int32]time.Time
	consUIDs    map[int32][]int32

	entities []PowerEntity

	errs  map[string]error
	calls map[string]int
}

var _ Service = (*MockService)(nil)

// NewMockService returns an empty mock using the wall clock.
func NewMockService() *MockService {
	m := &MockService{
		now:         time.Now,
		chanPowerUW: make(map[int32]int64),
		chanBanked:  make(map[int32]int64),
		chanSince:   make(map[int32]time.Time),
		consPowerUW: make(map[int32]int64),
		consBanked:  make(map[int32]int64),
		consSince:   make(map[int32]time.Time),
		consUIDs:    make(map[int32][]int32),
		errs:        make(map[string]error),
		calls:       make(map[string]int),
	}
	m.start = m.now()
	return m
}

// SetClock replaces the time source and restarts energy accumulation.
func (m *MockService) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	m.start = now()
	for id := range m.chanSince {
		m.chanSince[id] = m.start
		m.chanBanked[id] = 0
	}
	for id := range m.consSince {
		m.consSince[id] = m.start
		m.consBanked[id] = 0
	}
}

// AddChannel registers a meter channel drawing powerUW microwatts.
func (m *MockService) AddChannel(id int32, name, subsystem string, powerUW int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, Channel{ID: id, Name: name, Subsystem: subsystem})
	m.chanPowerUW[id] = powerUW
	m.chanSince[id] = m.now()
}

// AddConsumer registers an energy consumer. Any uids given share the
// consumer's energy in the attribution of its readings.
func (m *MockService) AddConsumer(id int32, typ EnergyConsumerType, ordinal int32, name string, powerUW int64, uids ...int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumers = append(m.consumers, EnergyConsumer{ID: id, Ordinal: ordinal, Type: typ, Name: name})
	m.consPowerUW[id] = powerUW
	m.consSince[id] = m.now()
	m.consUIDs[id] = uids
}

// SetChannelPower changes a channel's draw. Energy accumulated at the
// old rate is banked first, so the cumulative counter stays monotonic.
func (m *MockService) SetChannelPower(id int32, powerUW int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.chanBanked[id] += m.chanPowerUW[id] * now.Sub(m.chanSince[id]).Milliseconds() / 1000
	m.chanPowerUW[id] = powerUW
	m.chanSince[id] = now
}

// SetConsumerPower changes a consumer's draw, banking accumulated
// energy like SetChannelPower.
func (m *MockService) SetConsumerPower(id int32, powerUW int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.consBanked[id] += m.consPowerUW[id] * now.Sub(m.consSince[id]).Milliseconds() / 1000
	m.consPowerUW[id] = powerUW
	m.consSince[id] = now
}

// AddEntity registers a power entity; states get ids 0..len-1.
func (m *MockService) AddEntity(id int32, name string, states ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := PowerEntity{ID: id, Name: name}
	for i, s := range states {
		e.States = append(e.States, State{ID: int32(i), Name: s})
	}
	m.entities = append(m.entities, e)
}

// SetError makes the named operation fail with err until cleared with a
// nil err. Operation names match the Service method names.
func (m *MockService) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// Calls reports how often the named operation was invoked.
func (m *MockService) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockService) enter(op string) error {
	m.calls[op]++
	return m.errs[op]
}

func (m *MockService) elapsedMs() int64 {
	return m.now().Sub(m.start).Milliseconds()
}

func (m *MockService) channelEnergyUWs(id int32) int64 {
	return m.chanBanked[id] + m.chanPowerUW[id]*m.now().Sub(m.chanSince[id]).Milliseconds()/1000
}

func (m *MockService) consumerEnergyUWs(id int32) int64 {
	return m.consBanked[id] + m.consPowerUW[id]*m.now().Sub(m.consSince[id]).Milliseconds()/1000
}

func (m *MockService) GetPowerEntityInfo(ctx context.Context) ([]PowerEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetPowerEntityInfo"); err != nil {
		return nil, err
	}
	out := make([]PowerEntity, len(m.entities))
	copy(out, m.entities)
	return out, nil
}

func (m *MockService) GetStateResidency(ctx context.Context, entityIDs []int32) ([]StateResidencyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetStateResidency"); err != nil {
		return nil, err
	}
	elapsed := m.elapsedMs()
	var selected []PowerEntity
	if len(entityIDs) == 0 {
		selected = m.entities
	} else {
		for _, id := range entityIDs {
			e, ok := m.entityByID(id)
			if !ok {
				return nil, ipc.Errorf(ipc.CodeIllegalArgument, "unknown power entity id %d", id)
			}
			selected = append(selected, e)
		}
	}
	out := make([]StateResidencyResult, 0, len(selected))
	for _, e := range selected {
		res := StateResidencyResult{ID: e.ID}
		n := int64(len(e.States))
		for i, s := range e.States {
			share := int64(0)
			if n > 0 {
				share = elapsed / n
				if i == 0 {
					share += elapsed % n
				}
			}
			res.StateResidencyData = append(res.StateResidencyData, StateResidency{
				ID:                   s.ID,
				TotalTimeInStateMs:   share,
				TotalStateEntryCount: elapsed / 1000,
				LastEntryTimestampMs: elapsed,
			})
		}
		out = append(out, res)
	}
	return out, nil
}

func (m *MockService) GetEnergyConsumerInfo(ctx context.Context) ([]EnergyConsumer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetEnergyConsumerInfo"); err != nil {
		return nil, err
	}
	out := make([]EnergyConsumer, len(m.consumers))
	copy(out, m.consumers)
	return out, nil
}

func (m *MockService) GetEnergyConsumed(ctx context.Context, consumerIDs []int32) ([]EnergyConsumerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetEnergyConsumed"); err != nil {
		return nil, err
	}
	elapsed := m.elapsedMs()
	var selected []EnergyConsumer
	if len(consumerIDs) == 0 {
		selected = m.consumers
	} else {
		for _, id := range consumerIDs {
			c, ok := m.consumerByID(id)
			if !ok {
				return nil, ipc.Errorf(ipc.CodeIllegalArgument, "unknown energy consumer id %d", id)
			}
			selected = append(selected, c)
		}
	}
	out := make([]EnergyConsumerResult, 0, len(selected))
	for _, c := range selected {
		total := m.consumerEnergyUWs(c.ID)
		res := EnergyConsumerResult{ID: c.ID, TimestampMs: elapsed, EnergyUWs: total}
		uids := m.consUIDs[c.ID]
		if n := int64(len(uids)); n > 0 {
			share := total / n
			for i, uid := range uids {
				e := share
				if i == 0 {
					e += total % n
				}
				res.Attribution = append(res.Attribution, EnergyConsumerAttribution{UID: uid, EnergyUWs: e})
			}
		}
		out = append(out, res)
	}
	return out, nil
}

func (m *MockService) GetEnergyMeterInfo(ctx context.Context) ([]Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetEnergyMeterInfo"); err != nil {
		return nil, err
	}
	out := make([]Channel, len(m.channels))
	copy(out, m.channels)
	return out, nil
}

func (m *MockService) ReadEnergyMeter(ctx context.Context, channelIDs []int32) ([]EnergyMeasurement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReadEnergyMeter"); err != nil {
		return nil, err
	}
	elapsed := m.elapsedMs()
	var selected []Channel
	if len(channelIDs) == 0 {
		selected = m.channels
	} else {
		for _, id := range channelIDs {
			c, ok := m.channelByID(id)
			if !ok {
				return nil, ipc.Errorf(ipc.CodeIllegalArgument, "unknown channel id %d", id)
			}
			selected = append(selected, c)
		}
	}
	out := make([]EnergyMeasurement, 0, len(selected))
	for _, c := range selected {
		out = append(out, EnergyMeasurement{
			ID:          c.ID,
			TimestampMs: elapsed,
			DurationMs:  elapsed,
			EnergyUWs:   m.channelEnergyUWs(c.ID),
		})
	}
	return out, nil
}

func (m *MockService) channelByID(id int32) (Channel, bool) {
	for _, c := range m.channels {
		if c.ID == id {
			return c, true
		}
	}
	return Channel{}, false
}

func (m *MockService) consumerByID(id int32) (EnergyConsumer, bool) {
	for _, c := range m.consumers {
		if c.ID == id {
			return c, true
		}
	}
	return EnergyConsumer{}, false
}

func (m *MockService) entityByID(id int32) (PowerEntity, bool) {
	for _, e := range m.entities {
		if e.ID == id {
			return e, true
		}
	}
	return PowerEntity{}, false
}
