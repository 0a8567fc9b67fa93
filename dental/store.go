// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dental

import (
	"errors"
	"sort"
	"sync"
)

// EventType is a measurement lifecycle notification
type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
	EventCleared EventType = "cleared"
)

var (
	ErrMeasurementNotFound = errors.New("measurement not found")
	ErrMeasurementExists   = errors.New("measurement already exists")
)

// Event carries the measurement as it is after the change.
// Cleared events carry a zero Measurement.
type Event struct {
	Type        EventType
	Measurement Measurement
}

// Listener receives events synchronously, on the goroutine that caused them
type Listener func(Event)

// MeasurementStore is the slice of the viewer's measurement service the
// enricher depends on. Update must re-notify listeners with EventUpdated.
type MeasurementStore interface {
	Measurements() []Measurement
	Get(uid string) (Measurement, bool)
	Update(m Measurement) error
	Subscribe(l Listener) (unsubscribe func())
}

// MemoryStore is an in-process MeasurementStore. Listeners are called after
// the lock is released, so a listener may call back into the store.
type MemoryStore struct {
	mu        sync.Mutex
	order     []string
	items     map[string]Measurement
	listeners map[int]Listener
	nextID    int
	updates   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[string]Measurement),
		listeners: make(map[int]Listener),
	}
}

// Add inserts a new measurement and emits EventAdded
func (s *MemoryStore) Add(m Measurement) error {
	s.mu.Lock()
	if _, ok := s.items[m.UID]; ok {
		s.mu.Unlock()
		return ErrMeasurementExists
	}
	m = m.Clone()
	s.items[m.UID] = m
	s.order = append(s.order, m.UID)
	s.mu.Unlock()

	s.notify(Event{Type: EventAdded, Measurement: m.Clone()})
	return nil
}

// Update replaces an existing measurement and emits EventUpdated
func (s *MemoryStore) Update(m Measurement) error {
	s.mu.Lock()
	if _, ok := s.items[m.UID]; !ok {
		s.mu.Unlock()
		return ErrMeasurementNotFound
	}
	m = m.Clone()
	s.items[m.UID] = m
	s.updates++
	s.mu.Unlock()

	s.notify(Event{Type: EventUpdated, Measurement: m.Clone()})
	return nil
}

// Remove deletes a measurement and emits EventRemoved
func (s *MemoryStore) Remove(uid string) error {
	s.mu.Lock()
	m, ok := s.items[uid]
	if !ok {
		s.mu.Unlock()
		return ErrMeasurementNotFound
	}
	delete(s.items, uid)
	for i, id := range s.order {
		if id == uid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify(Event{Type: EventRemoved, Measurement: m})
	return nil
}

// Clear drops every measurement and emits EventCleared
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.items = make(map[string]Measurement)
	s.order = nil
	s.mu.Unlock()

	s.notify(Event{Type: EventCleared})
}

func (s *MemoryStore) Get(uid string) (Measurement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[uid]
	if !ok {
		return Measurement{}, false
	}
	return m.Clone(), true
}

// Measurements returns copies in insertion order
func (s *MemoryStore) Measurements() []Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Measurement, 0, len(s.order))
	for _, uid := range s.order {
		out = append(out, s.items[uid].Clone())
	}
	return out
}

// UpdateCount is the number of successful Update calls so far
func (s *MemoryStore) UpdateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *MemoryStore) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *MemoryStore) notify(ev Event) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, s.listeners[id])
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(ev)
	}
}
