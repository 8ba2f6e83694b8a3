package sx

// EventType names a change to the set of observed schedules.
type EventType string

const (
	EventAdded   EventType = "added"
	EventRemoved EventType = "removed"
	EventUpdated EventType = "updated"
)

// Event is queued by the model whenever a schedule is added, removed or has
// one of its instances changed.
type Event struct {
	Type       EventType
	ScheduleID string
}

func (m *Model) emit(t EventType, scheduleID string) {
	e := Event{Type: t, ScheduleID: scheduleID}
	m.events = append(m.events, e)
	for _, fn := range m.listeners {
		fn(e)
	}
}

// DrainEvents returns the queued events in order and clears the queue.
func (m *Model) DrainEvents() []Event {
	out := m.events
	m.events = nil
	return out
}
