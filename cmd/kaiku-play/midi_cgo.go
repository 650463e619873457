//go:build cgo

package main

import "github.com/vsariola/kaiku/gomidi"

func openMIDI(namePrefix string, router *gomidi.Router) (func(), error) {
	m := gomidi.NewContext()
	if err := m.Open(namePrefix, router); err != nil {
		m.Close()
		return nil, err
	}
	return m.Close, nil
}
