// Package strategy defines the declarative capability records that select
// prompt conditioning and audio-context overlap for a recognition session.
// A Strategy carries no per-connection state; it is looked up once by name
// when a connection is routed.
package strategy

import "fmt"

// Strategy is a named pair of conditioning capabilities. The session
// switches behavior on these two booleans rather than on a type hierarchy.
type Strategy struct {
	Name        string
	UsesPrompt  bool
	UsesContext bool
}

// Prompt conditions each final on the previous accepted transcript but
// never prepends audio context.
var Prompt = Strategy{Name: "prompt", UsesPrompt: true, UsesContext: false}

// Context prepends trailing raw audio context but never conditions on
// prior text.
var Context = Strategy{Name: "context", UsesPrompt: false, UsesContext: true}

// Hybrid combines both prompt conditioning and audio-context overlap.
var Hybrid = Strategy{Name: "hybrid", UsesPrompt: true, UsesContext: true}

var byName = map[string]Strategy{
	Prompt.Name:  Prompt,
	Context.Name: Context,
	Hybrid.Name:  Hybrid,
}

// Lookup resolves a strategy by its routing-path name. An unknown name is
// the caller's cue to reject the connection.
func Lookup(name string) (Strategy, error) {
	s, ok := byName[name]
	if !ok {
		return Strategy{}, fmt.Errorf("unknown strategy %q", name)
	}
	return s, nil
}
