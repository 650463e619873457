//go:build !cgo

package main

import (
	"errors"

	"github.com/vsariola/kaiku/gomidi"
)

func openMIDI(namePrefix string, router *gomidi.Router) (func(), error) {
	// with no cgo, there is no RtMidi driver
	return nil, errors.New("MIDI input is not available in builds without cgo")
}
