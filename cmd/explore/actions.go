package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/exploration-engine/engine"
	"github.com/R3E-Network/exploration-engine/transport"
)

// actionSpec is one flat method/path/body entry in the optional YAML action
// catalog. This is not the Journey DSL: there is no conditional branching,
// no checkpoint/path vocabulary, just a literal list of HTTP calls the
// Agent is free to interleave in any order the Strategy picks.
type actionSpec struct {
	Name           string            `yaml:"name"`
	Method         string            `yaml:"method"`
	Path           string            `yaml:"path"`
	Body           interface{}       `yaml:"body,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	ExpectedStatus []int             `yaml:"expected_status,omitempty"`
	Description    string            `yaml:"description,omitempty"`
}

type actionCatalog struct {
	Actions []actionSpec `yaml:"actions"`
}

// loadActionCatalog reads a flat YAML action list and compiles each entry
// into an engine.Action whose Execute simply replays the literal method,
// path, headers and body against the transport.
func loadActionCatalog(path string) ([]engine.Action, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read action catalog %s: %w", path, err)
	}

	var catalog actionCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("parse action catalog %s: %w", path, err)
	}

	actions := make([]engine.Action, 0, len(catalog.Actions))
	for _, spec := range catalog.Actions {
		spec := spec
		if spec.Name == "" {
			return nil, fmt.Errorf("action catalog %s: entry missing name", path)
		}
		actions = append(actions, engine.Action{
			Name:           spec.Name,
			Description:    spec.Description,
			ExpectedStatus: spec.ExpectedStatus,
			Execute: func(t engine.Transport, ctx *engine.Context) *engine.ActionResult {
				client, ok := t.(*transport.Client)
				if !ok {
					return t.Request(spec.Method, spec.Path, spec.Headers, spec.Body)
				}
				return client.Request(spec.Method, spec.Path, spec.Headers, spec.Body)
			},
		})
	}
	return actions, nil
}
