package audit

import (
	"context"
	"log/slog"
	"sync"
)

const (
	ActionSlotsProposed      = "slots_proposed"
	ActionProposalRejected   = "proposal_rejected"
	ActionSlotApproved       = "slot_approved"
	ActionSlotRejected       = "slot_rejected"
	ActionSlotRestored       = "slot_restored"
	ActionRescheduleApplied  = "reschedule_applied"
	ActionReschedulePending  = "reschedule_pending"
	ActionRescheduleApproved = "reschedule_approved"
	ActionRescheduleRejected = "reschedule_rejected"
	ActionDayKeyRepaired     = "day_key_repaired"
)

const (
	ResourceSlot   = "time_slot"
	ResourceEntity = "entity"
)

type Event struct {
	EntityID   string
	ActorID    string
	Action     string
	Resource   string
	ResourceID string
	Metadata   any
}

// Sink receives audit events after an operation has committed.
type Sink interface {
	Dispatch(ev Event)
}

type Writer interface {
	Log(ctx context.Context, ev Event) error
}

type Dispatcher struct {
	writer Writer
	queue  chan Event
	log    *slog.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

func NewDispatcher(writer Writer, size int, log *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = 100
	}
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		writer: writer,
		queue:  make(chan Event, size),
		log:    log,
	}

	d.wg.Add(1)
	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for ev := range d.queue {
		if err := d.writer.Log(context.Background(), ev); err != nil {
			d.log.Error("audit write failed",
				"action", ev.Action,
				"entity_id", ev.EntityID,
				"error", err,
			)
		}
	}
}

// Dispatch never blocks the caller; a full queue drops the event.
func (d *Dispatcher) Dispatch(ev Event) {
	select {
	case d.queue <- ev:
	default:
		d.log.Warn("audit queue full, dropping event",
			"action", ev.Action,
			"entity_id", ev.EntityID,
		)
	}
}

// Close stops accepting events and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

// Discard drops every event.
type Discard struct{}

func (Discard) Dispatch(Event) {}
