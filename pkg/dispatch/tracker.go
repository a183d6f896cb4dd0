package dispatch

import (
	"sort"
	"sync"
	"time"

	"github.com/herlein/gowmbus/pkg/wmbus"
)

// HeardMeter is a meter seen on air
type HeardMeter struct {
	MeterID    uint32
	Address    wmbus.Address
	Driver     string
	Mode       string
	RSSI       int
	MaxRSSI    int
	FirstSeen  time.Time
	LastSeen   time.Time
	Count      int
	Registered bool
}

// Tracker records every meter the dispatcher hears
type Tracker struct {
	meters map[uint32]*HeardMeter
	mu     sync.RWMutex

	onNew func(HeardMeter)
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{meters: make(map[uint32]*HeardMeter)}
}

// SetCallback sets the function called when a meter is heard for the first time
func (t *Tracker) SetCallback(onNew func(HeardMeter)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onNew = onNew
}

// Update records a telegram from a meter. It reports whether the meter was
// heard for the first time.
func (t *Tracker) Update(id uint32, addr wmbus.Address, driver string, registered bool, frame wmbus.RawFrame) bool {
	t.mu.Lock()

	seen := frame.ReceivedAt
	if seen.IsZero() {
		seen = time.Now()
	}

	info, exists := t.meters[id]
	if exists {
		info.Driver = driver
		info.Mode = frame.Tag()
		info.RSSI = frame.RSSI
		info.LastSeen = seen
		info.Count++
		if frame.RSSI > info.MaxRSSI {
			info.MaxRSSI = frame.RSSI
		}
		t.mu.Unlock()
		return false
	}

	info = &HeardMeter{
		MeterID:    id,
		Address:    addr,
		Driver:     driver,
		Mode:       frame.Tag(),
		RSSI:       frame.RSSI,
		MaxRSSI:    frame.RSSI,
		FirstSeen:  seen,
		LastSeen:   seen,
		Count:      1,
		Registered: registered,
	}
	t.meters[id] = info
	onNew := t.onNew
	infoCopy := *info
	t.mu.Unlock()

	if onNew != nil {
		onNew(infoCopy)
	}
	return true
}

// Get returns a copy of a tracked meter
func (t *Tracker) Get(id uint32) (HeardMeter, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.meters[id]
	if !ok {
		return HeardMeter{}, false
	}
	return *info, true
}

// All returns every tracked meter ordered by ID
func (t *Tracker) All() []HeardMeter {
	t.mu.RLock()
	defer t.mu.RUnlock()

	meters := make([]HeardMeter, 0, len(t.meters))
	for _, info := range t.meters {
		meters = append(meters, *info)
	}
	sort.Slice(meters, func(i, j int) bool { return meters[i].MeterID < meters[j].MeterID })
	return meters
}

// Count returns the number of tracked meters
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.meters)
}

// Clear removes all tracked meters
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.meters = make(map[uint32]*HeardMeter)
}

// PruneOld removes meters not heard since the given time
func (t *Tracker) PruneOld(since time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for id, info := range t.meters {
		if info.LastSeen.Before(since) {
			delete(t.meters, id)
			count++
		}
	}
	return count
}
