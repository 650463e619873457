package main

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
)

type namer struct {
	tmpl *template.Template
}

func newNamer(text string) (*namer, error) {
	tmpl, err := template.New("name").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, err
	}
	return &namer{tmpl: tmpl}, nil
}

// name executes the template for the mix (stem == "") or one stem.
func (n *namer) name(project, stem string) (string, error) {
	var b strings.Builder
	data := struct{ Project, Stem string }{project, stem}
	if err := n.tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
