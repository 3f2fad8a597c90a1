// Package room is the hand-off boundary: nodes registered into a room
// are delivered to an external consumer identified by a room uid. The
// engine only knows the Sink interface; delivery transport lives
// outside this layer.
package room

import "sync"

// Sink accepts a batch of node payloads for a room.
type Sink interface {
	Deliver(configID, class, roomUID string, objects []map[string]any) error
}

// Delivery records one accepted batch.
type Delivery struct {
	ConfigID string
	Class    string
	RoomUID  string
	Objects  []map[string]any
}

// MemorySink collects deliveries in memory. Used by tests and the CLI
// dry-run path.
type MemorySink struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Deliver(configID, class, roomUID string, objects []map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, Delivery{
		ConfigID: configID,
		Class:    class,
		RoomUID:  roomUID,
		Objects:  objects,
	})
	return nil
}

// Deliveries returns a copy of everything accepted so far.
func (s *MemorySink) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Delivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}
