package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher is the in-process publisher used when kafka is not
// configured. A single worker drains the queue, which keeps events
// globally (and therefore per-lead) ordered.
type Dispatcher struct {
	handler Handler
	log     *zap.Logger
	queue   chan LeadStatusEvent

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewDispatcher(handler Handler, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		log:     log.Named("events.dispatcher"),
		queue:   make(chan LeadStatusEvent, 256),
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.run()
	})
}

func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

func (d *Dispatcher) PublishLeadStatus(ctx context.Context, event LeadStatusEvent) error {
	select {
	case d.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.dispatch(event)
		case <-d.done:
			// Drain whatever was accepted before shutdown.
			for {
				select {
				case event := <-d.queue:
					d.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) dispatch(event LeadStatusEvent) {
	if err := d.handler.HandleLeadStatus(context.Background(), event); err != nil {
		d.log.Error("handle lead status event",
			zap.String("lead_id", event.LeadID.String()),
			zap.String("new_status", event.NewStatus),
			zap.Error(err),
		)
	}
}
