package tick

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"rudpcore/internal/telemetry"
)

func TestDispatcherInvokesOnTickRepeatedly(t *testing.T) {
	var count int64
	tel := telemetry.New()
	log := logrus.New()

	d := New(200, func(time.Time, time.Duration) {
		atomic.AddInt64(&count, 1)
	}, 0, nil, tel, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	if atomic.LoadInt64(&count) < 3 {
		t.Fatalf("onTick invoked %d times in 30ms at 200Hz, want >= 3", count)
	}
}

func TestDispatcherPublishesSnapshot(t *testing.T) {
	tel := telemetry.New()
	log := logrus.New()

	var snapshots int64
	d := New(100, func(time.Time, time.Duration) {}, 10*time.Millisecond, func(telemetry.Snapshot) {
		atomic.AddInt64(&snapshots, 1)
	}, tel, log)

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	if atomic.LoadInt64(&snapshots) < 1 {
		t.Fatalf("expected at least one snapshot publish")
	}
}
