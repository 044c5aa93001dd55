package web

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/moomindm/internal/session"
	"github.com/MrWong99/moomindm/pkg/speech/wsbridge"
)

// DisplaySink receives display updates, typically a [wsbridge.Bridge].
type DisplaySink interface {
	SendDisplay(ctx context.Context, display any) error
}

// Pusher forwards display updates to a sink from its own goroutine so that
// a slow client never stalls the session loop. Only the latest display is
// kept; intermediate updates may be skipped.
type Pusher struct {
	sink   DisplaySink
	latest chan session.Display
}

// NewPusher returns a Pusher writing to sink. Call Run to start delivery.
func NewPusher(sink DisplaySink) *Pusher {
	return &Pusher{sink: sink, latest: make(chan session.Display, 1)}
}

// Push replaces the pending display with d. It never blocks and is meant to
// be passed to [session.Session.Subscribe].
func (p *Pusher) Push(d session.Display) {
	for {
		select {
		case p.latest <- d:
			return
		default:
		}
		select {
		case <-p.latest:
		default:
		}
	}
}

// Run delivers displays until ctx is cancelled. It always returns nil.
func (p *Pusher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-p.latest:
			err := p.sink.SendDisplay(ctx, d)
			switch {
			case err == nil, errors.Is(err, wsbridge.ErrNotConnected):
			case ctx.Err() != nil:
				return nil
			default:
				slog.Debug("web: push display failed", "state", d.State, "err", err)
			}
		}
	}
}
