package main

import "testing"

func TestDefaultNames(t *testing.T) {
	n, err := newNamer(`{{.Project}}{{with .Stem}}-{{. | lower | replace " " "_"}}{{end}}.wav`)
	if err != nil {
		t.Fatalf("newNamer failed: %v", err)
	}
	cases := []struct{ project, stem, want string }{
		{"song", "", "song.wav"},
		{"song", "Lead Vox", "song-lead_vox.wav"},
	}
	for _, c := range cases {
		got, err := n.name(c.project, c.stem)
		if err != nil {
			t.Fatalf("name failed: %v", err)
		}
		if got != c.want {
			t.Fatalf("name(%q, %q) = %q, want %q", c.project, c.stem, got, c.want)
		}
	}
}

func TestInvalidTemplate(t *testing.T) {
	if _, err := newNamer("{{.Project"); err == nil {
		t.Fatalf("newNamer accepted an unterminated action")
	}
}
