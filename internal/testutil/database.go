package testutil

import (
	"sync"
	"testing"

	"shelf-go/internal/database"
	"shelf-go/internal/events"
)

// NewTestDatabase creates a new in-memory SQLite database with the
// migrations applied. It is closed when the test completes.
// publisher may be nil.
func NewTestDatabase(t *testing.T, publisher database.Publisher) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", publisher)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// EventRecorder is a database.Publisher that keeps every published event.
type EventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

func (r *EventRecorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns the events published so far, oldest first.
func (r *EventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Find returns the events published on topic with the given type.
func (r *EventRecorder) Find(topic, typ string) []events.Event {
	var out []events.Event
	for _, ev := range r.Events() {
		if ev.Topic == topic && ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets all recorded events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var _ database.Publisher = (*EventRecorder)(nil)
