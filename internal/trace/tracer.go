package trace

import (
	"io"
	"time"
)

// Tracer is the sink for link trace events.
type Tracer interface {
	// Emit records a trace event. Must be goroutine-safe; the resolver
	// emits from parallel ingestion workers.
	Emit(ev Event)

	// Level returns the current tracing level.
	Level() Level

	// Enabled returns true if tracing is active (Level > LevelOff).
	Enabled() bool
}

// Point emits an instant event if the tracer accepts its scope. Convenience
// for call sites that would otherwise repeat the Enabled/ShouldEmit dance.
func Point(t Tracer, scope Scope, name, detail string) {
	if t == nil || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(Event{Time: time.Now(), Kind: KindPoint, Scope: scope, Name: name, Detail: detail})
}

// Begin emits a begin event; pair with End.
func Begin(t Tracer, scope Scope, name string) {
	if t == nil || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(Event{Time: time.Now(), Kind: KindBegin, Scope: scope, Name: name})
}

// End emits the end event matching Begin.
func End(t Tracer, scope Scope, name string) {
	if t == nil || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(Event{Time: time.Now(), Kind: KindEnd, Scope: scope, Name: name})
}

// New builds a tracer writing to w, or Nop when level is off.
func New(w io.Writer, level Level) Tracer {
	if level == LevelOff || w == nil {
		return Nop
	}
	return NewStreamTracer(w, level)
}
