//go:build cgo

package gomidi

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type RTMIDIContext struct {
	driver *rtmididrv.Driver
	in     drivers.In
	stop   func()
}

// NewContext opens the RtMidi driver. If that fails, the context has no
// devices and Open returns an error.
func NewContext() *RTMIDIContext {
	m := RTMIDIContext{}
	m.driver, _ = rtmididrv.New()
	return &m
}

// Open listens to the first input whose name starts with namePrefix (an
// empty prefix takes the first input), closing the previously open one.
func (m *RTMIDIContext) Open(namePrefix string, r *Router) error {
	if m.driver == nil {
		return errors.New("no MIDI driver available")
	}
	ins, err := m.driver.Ins()
	if err != nil {
		return fmt.Errorf("listing MIDI inputs failed: %w", err)
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), namePrefix) {
			continue
		}
		m.closeInput()
		if err := in.Open(); err != nil {
			return fmt.Errorf("opening MIDI input %v failed: %w", in, err)
		}
		stop, err := midi.ListenTo(in, r.HandleMessage)
		if err != nil {
			in.Close()
			return fmt.Errorf("listening to MIDI input %v failed: %w", in, err)
		}
		m.in, m.stop = in, stop
		return nil
	}
	return fmt.Errorf("could not find any MIDI input starting with %q", namePrefix)
}

func (m *RTMIDIContext) closeInput() {
	if m.stop != nil {
		m.stop()
	}
	if m.in != nil && m.in.IsOpen() {
		m.in.Close()
	}
	m.in, m.stop = nil, nil
}

func (m *RTMIDIContext) Close() {
	if m.driver == nil {
		return
	}
	m.closeInput()
	m.driver.Close()
}
