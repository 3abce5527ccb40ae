// Package monitor periodically reports scheduler status to the log and to
// the metrics gauges.
package monitor

import (
	"github.com/guido-cesarano/rrscheduler/pkg/scheduler"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSpec reports every five seconds.
const DefaultSpec = "@every 5s"

// Observer receives every status snapshot. *metrics.Metrics implements it.
type Observer interface {
	Observe(scheduler.Status)
}

// Monitor runs Report on a cron schedule.
type Monitor struct {
	sched     *scheduler.Scheduler
	observers []Observer
	cron      *cron.Cron
	log       zerolog.Logger
}

// New creates a monitor for sched. Nil observers are ignored.
func New(sched *scheduler.Scheduler, log zerolog.Logger, observers ...Observer) *Monitor {
	m := &Monitor{
		sched: sched,
		cron:  cron.New(cron.WithSeconds()),
		log:   log,
	}

	for _, o := range observers {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}

	return m
}

// Start registers Report under spec (e.g. "@every 5s", "*/10 * * * * *")
// and starts the cron scheduler in the background.
func (m *Monitor) Start(spec string) error {
	if spec == "" {
		spec = DefaultSpec
	}

	if _, err := m.cron.AddFunc(spec, func() { m.Report() }); err != nil {
		return err
	}

	m.cron.Start()
	return nil
}

// Stop stops the cron scheduler and waits for a running report to finish.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
}

// Report takes one status snapshot, logs it and hands it to the observers.
func (m *Monitor) Report() scheduler.Status {
	status := m.sched.Status()

	m.log.Info().
		Ints("queue_depths", status.QueueDepths).
		Int("pending", status.Pending).
		Int("busy", status.Busy).
		Int("free", status.Free).
		Msg("Scheduler status")

	for _, o := range m.observers {
		o.Observe(status)
	}

	return status
}
