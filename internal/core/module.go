// Package core provides the module system that wires sandy's long-lived
// components (inference provider, chat gateway, archive store, HTTP API).
package core

// ModuleID is a dotted, namespaced module identifier such as
// "provider.ollama" or "channel.discord".
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	s := string(id)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i]
		}
	}
	return s
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	New func() Module
}

// Module is the minimal interface every module implements. Optional
// lifecycle hooks are declared in lifecycle.go.
type Module interface {
	ModuleInfo() ModuleInfo
}
