package cart

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Line is one cart entry. Two added items merge into the same line only when
// dish, unit price and addon set all agree.
type Line struct {
	Key       string
	DishID    int64
	Name      string
	UnitPrice int64
	AddonIDs  []int64
	Quantity  int
}

func (l Line) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// LineKey fingerprints a line's identity from dish, price and the sorted
// addon set.
func LineKey(dishID, unitPrice int64, addonIDs []int64) string {
	sorted := make([]int64, len(addonIDs))
	copy(sorted, addonIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, 0, len(sorted)+2)
	parts = append(parts, fmt.Sprintf("d%d", dishID), fmt.Sprintf("p%d", unitPrice))
	for _, id := range sorted {
		parts = append(parts, fmt.Sprintf("a%d", id))
	}
	return strings.Join(parts, ":")
}

type Listener func(lines []Line)

// Store holds the cart for one device session. All mutation goes through
// reducer functions over an immutable snapshot, and every change notifies
// subscribers with a fresh copy.
type Store struct {
	mu        sync.Mutex
	lines     []Line
	listeners []Listener
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.lines)
}

func (s *Store) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, l := range s.lines {
		total += l.Subtotal()
	}
	return total
}

func (s *Store) Add(dishID int64, name string, unitPrice int64, addonIDs []int64) {
	line := Line{
		Key:       LineKey(dishID, unitPrice, addonIDs),
		DishID:    dishID,
		Name:      name,
		UnitPrice: unitPrice,
		AddonIDs:  addonIDs,
		Quantity:  1,
	}
	s.apply(func(lines []Line) []Line { return reduceAdd(lines, line) })
}

func (s *Store) Increment(key string, delta int) {
	s.apply(func(lines []Line) []Line { return reduceIncrement(lines, key, delta) })
}

func (s *Store) Remove(key string) {
	s.apply(func(lines []Line) []Line { return reduceRemove(lines, key) })
}

func (s *Store) Clear() {
	s.apply(func([]Line) []Line { return nil })
}

func (s *Store) apply(reducer func([]Line) []Line) {
	s.mu.Lock()
	s.lines = reducer(snapshot(s.lines))
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	notified := snapshot(s.lines)
	s.mu.Unlock()

	for _, l := range listeners {
		l(notified)
	}
}

func snapshot(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

func reduceAdd(lines []Line, line Line) []Line {
	for i := range lines {
		if lines[i].Key == line.Key {
			lines[i].Quantity += line.Quantity
			return lines
		}
	}
	return append(lines, line)
}

func reduceIncrement(lines []Line, key string, delta int) []Line {
	for i := range lines {
		if lines[i].Key == key {
			lines[i].Quantity += delta
			if lines[i].Quantity <= 0 {
				return reduceRemove(lines, key)
			}
			return lines
		}
	}
	return lines
}

func reduceRemove(lines []Line, key string) []Line {
	out := lines[:0]
	for _, l := range lines {
		if l.Key != key {
			out = append(out, l)
		}
	}
	return out
}
