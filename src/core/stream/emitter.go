// Package stream writes pipeline events to a client as server-sent events.
package stream

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/gin-contrib/sse"

	"algomind/src/core/reasoning"
)

// Done is the data of the sentinel message that closes every stream
const Done = "[DONE]"

// Stats describes what an Emit call wrote
type Stats struct {
	Messages  int
	Sentinel  bool
	Cancelled bool
}

type Emitter struct {
	w     io.Writer
	flush func()
}

// NewEmitter writes to w, flushing after every message when w is an http.Flusher
func NewEmitter(w io.Writer) *Emitter {
	e := &Emitter{w: w, flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		e.flush = f.Flush
	}
	return e
}

// Emit writes each event in order followed by the sentinel. Cancellation of ctx is
// checked before every write; once observed nothing more is written and iteration
// of events is abandoned. A cancelled stream is not an error.
func (e *Emitter) Emit(ctx context.Context, events iter.Seq[reasoning.Event]) (Stats, error) {
	var stats Stats
	for ev := range events {
		if ctx.Err() != nil {
			stats.Cancelled = true
			return stats, nil
		}
		if err := e.write(sse.Event{Event: string(ev.Type), Data: ev}); err != nil {
			return stats, fmt.Errorf("failed to write %s event: %w", ev.Type, err)
		}
		stats.Messages++
	}

	if ctx.Err() != nil {
		stats.Cancelled = true
		return stats, nil
	}
	if err := e.write(sse.Event{Data: Done}); err != nil {
		return stats, fmt.Errorf("failed to write sentinel: %w", err)
	}
	stats.Sentinel = true
	return stats, nil
}

func (e *Emitter) write(ev sse.Event) error {
	if err := sse.Encode(e.w, ev); err != nil {
		return err
	}
	e.flush()
	return nil
}
