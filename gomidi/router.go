// Package gomidi routes note messages from MIDI inputs to the voice pool of
// the engine.
package gomidi

import (
	"sync"

	"gitlab.com/gomidi/midi/v2"
)

type (
	// NoteSink receives the notes; *engine.Engine implements it.
	NoteSink interface {
		NoteOn(trackID string, pitch, velocity int)
		NoteOff(trackID string, pitch int)
	}

	// Router buffers note messages arriving on the driver thread and
	// delivers them to a NoteSink when Flush is called on the control
	// thread. Messages arriving while the buffer is full are dropped.
	Router struct {
		events chan noteEvent

		mu       sync.Mutex
		channels [16]string
		fallback string
	}

	noteEvent struct {
		on       bool
		channel  uint8
		key      uint8
		velocity uint8
	}
)

func NewRouter() *Router {
	return &Router{events: make(chan noteEvent, 1024)}
}

// Route sends the notes of a MIDI channel (0-15) to a track. An empty
// trackID removes the route.
func (r *Router) Route(channel uint8, trackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[channel&15] = trackID
}

// RouteAll sends the notes of unrouted channels to the track, typically the
// armed or selected one.
func (r *Router) RouteAll(trackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = trackID
}

func (r *Router) track(channel uint8) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.channels[channel&15]; t != "" {
		return t
	}
	return r.fallback
}

// HandleMessage has the signature of a midi.ListenTo callback.
func (r *Router) HandleMessage(msg midi.Message, timestampms int32) {
	var e noteEvent
	switch {
	case msg.GetNoteOn(&e.channel, &e.key, &e.velocity):
		// running status keyboards send note off as a note on with zero velocity
		e.on = e.velocity > 0
	case msg.GetNoteOff(&e.channel, &e.key, &e.velocity):
	default:
		return
	}
	select {
	case r.events <- e:
	default:
	}
}

// Flush delivers the buffered notes and returns how many were delivered.
func (r *Router) Flush(sink NoteSink) int {
	n := 0
	for {
		select {
		case e := <-r.events:
			n++
			track := r.track(e.channel)
			if track == "" {
				continue
			}
			if e.on {
				sink.NoteOn(track, int(e.key), int(e.velocity))
			} else {
				sink.NoteOff(track, int(e.key))
			}
		default:
			return n
		}
	}
}
