package persistence

// Sink is the PersistenceSink boundary from spec.md §6: a narrow interface
// the session manager writes lifecycle events through, so it never
// depends on SQLite directly. cmd/server uses a *Store when a database
// path is configured; otherwise, and in tests, it uses NoopSink.
type Sink interface {
	Append(r Record) error
}

// NoopSink discards every record. It is the default when no database path
// is configured, matching spec.md's explicit non-goal of mandating a
// specific persistence backend.
type NoopSink struct{}

func (NoopSink) Append(Record) error { return nil }

var _ Sink = (*Store)(nil)
var _ Sink = NoopSink{}
