// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package extension

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownCommand = errors.New("unknown command")

// CommandFunc runs a command with its JSON-decoded arguments
type CommandFunc func(args map[string]any) (any, error)

// CommandRegistry maps command names to implementations
type CommandRegistry struct {
	defs map[string]CommandFunc
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{defs: make(map[string]CommandFunc)}
}

func (r *CommandRegistry) Register(name string, fn CommandFunc) {
	r.defs[name] = fn
}

func (r *CommandRegistry) Run(name string, args map[string]any) (any, error) {
	fn, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return fn(args)
}

// Names returns registered command names, sorted
func (r *CommandRegistry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
