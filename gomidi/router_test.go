package gomidi_test

import (
	"testing"

	"github.com/vsariola/kaiku/gomidi"
	"gitlab.com/gomidi/midi/v2"
)

type note struct {
	track     string
	on        bool
	pitch, vl int
}

type recordingSink struct{ notes []note }

func (s *recordingSink) NoteOn(track string, pitch, velocity int) {
	s.notes = append(s.notes, note{track, true, pitch, velocity})
}

func (s *recordingSink) NoteOff(track string, pitch int) {
	s.notes = append(s.notes, note{track, false, pitch, 0})
}

func TestRouterDeliversNotes(t *testing.T) {
	r := gomidi.NewRouter()
	r.Route(1, "bass")
	r.RouteAll("keys")
	r.HandleMessage(midi.NoteOn(0, 60, 100), 0)
	r.HandleMessage(midi.NoteOn(1, 36, 127), 1)
	r.HandleMessage(midi.ControlChange(0, 7, 100), 2)
	r.HandleMessage(midi.NoteOff(0, 60), 3)
	sink := &recordingSink{}
	if n := r.Flush(sink); n != 3 {
		t.Fatalf("Flush delivered %v notes, want 3", n)
	}
	want := []note{{"keys", true, 60, 100}, {"bass", true, 36, 127}, {"keys", false, 60, 0}}
	if len(sink.notes) != len(want) {
		t.Fatalf("sink got %v", sink.notes)
	}
	for i := range want {
		if sink.notes[i] != want[i] {
			t.Fatalf("note %v = %+v, want %+v", i, sink.notes[i], want[i])
		}
	}
	if n := r.Flush(sink); n != 0 {
		t.Fatalf("second Flush delivered %v notes", n)
	}
}

func TestRouterDropsUnroutedNotes(t *testing.T) {
	r := gomidi.NewRouter()
	r.HandleMessage(midi.NoteOn(3, 60, 100), 0)
	sink := &recordingSink{}
	r.Flush(sink)
	if len(sink.notes) != 0 {
		t.Fatalf("unrouted note delivered: %v", sink.notes)
	}
	r.Route(3, "lead")
	r.HandleMessage(midi.NoteOn(3, 62, 90), 0)
	r.Route(3, "")
	r.HandleMessage(midi.NoteOn(3, 64, 90), 0)
	r.Flush(sink)
	if len(sink.notes) != 0 {
		t.Fatalf("note delivered after the route was removed: %v", sink.notes)
	}
}
