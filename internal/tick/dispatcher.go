// Package tick implements the fixed-rate game loop dispatcher from
// spec.md §4.6: a ticker-driven loop that invokes an on_tick callback,
// publishes a telemetry snapshot on a coarser period, and logs overruns
// once per second rather than once per overrun. The ticker-driven loop
// itself is the teacher's source/server/server.go updateLoop pattern
// generalized from a fixed 50ms period to a configurable tick rate.
package tick

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"rudpcore/internal/telemetry"
)

// Dispatcher drives a fixed-rate callback loop.
type Dispatcher struct {
	period           time.Duration
	onTick           func(now time.Time, dt time.Duration)
	snapshotPeriod   time.Duration
	onSnapshot       func(telemetry.Snapshot)
	tel              *telemetry.Counters
	log              *logrus.Logger
}

// New builds a Dispatcher ticking at rateHz, invoking onTick every period
// and onSnapshot (if non-nil) every snapshotPeriod.
func New(rateHz int, onTick func(now time.Time, dt time.Duration), snapshotPeriod time.Duration, onSnapshot func(telemetry.Snapshot), tel *telemetry.Counters, log *logrus.Logger) *Dispatcher {
	if rateHz <= 0 {
		rateHz = 20
	}
	return &Dispatcher{
		period:         time.Second / time.Duration(rateHz),
		onTick:         onTick,
		snapshotPeriod: snapshotPeriod,
		onSnapshot:     onSnapshot,
		tel:            tel,
		log:            log,
	}
}

// Run blocks until ctx is cancelled, driving onTick at the configured rate
// and onSnapshot at the (coarser) snapshot period. Overruns — ticks whose
// onTick took longer than period — are coalesced into a once-per-second
// log line instead of logging every single one.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	var snapshotTicker *time.Ticker
	var snapshotC <-chan time.Time
	if d.onSnapshot != nil && d.snapshotPeriod > 0 {
		snapshotTicker = time.NewTicker(d.snapshotPeriod)
		defer snapshotTicker.Stop()
		snapshotC = snapshotTicker.C
	}

	overruns := 0
	lastOverrunLog := time.Now()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			tickStart := time.Now()
			d.onTick(now, dt)
			elapsed := time.Since(tickStart)

			if elapsed > d.period {
				overruns++
				if d.tel != nil {
					d.tel.AddTickOverruns(1)
				}
			}
			if time.Since(lastOverrunLog) >= time.Second {
				if overruns > 0 && d.log != nil {
					d.log.WithField("overruns", overruns).Warn("tick: on_tick exceeded period")
				}
				overruns = 0
				lastOverrunLog = time.Now()
			}
		case <-snapshotC:
			d.onSnapshot(d.tel.Snapshot())
		}
	}
}
