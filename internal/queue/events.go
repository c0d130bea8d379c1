package queue

// EventKind discriminates the typed notifications the coordinator emits
// on its Events() channel, replacing the teacher's single status-update
// callback (spec §9 "Callback-based status reporting").
type EventKind int

const (
	EventNzbAdded EventKind = iota
	EventFileCompleted
	EventFileDeleted
	EventCollectionEnteredPostProcess
	EventCollectionRemoved
)

// Event is one notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind         EventKind
	CollectionID string
	FileIndex    int
}

func (c *Coordinator) emit(e Event) {
	select {
	case c.events <- e:
	default:
		// A slow/absent subscriber must never stall the scheduling loop;
		// the queue guard is held by callers of emit, so this has to be
		// non-blocking.
		c.logger.Warn("queue: event channel full, dropping %v for %s", e.Kind, e.CollectionID)
	}
}

// Events returns the channel the coordinator publishes to. Callers should
// drain it promptly; emit() drops events rather than block the scheduler.
func (c *Coordinator) Events() <-chan Event { return c.events }
