package core

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// catalog holds every module compiled into the binary, keyed by ID.
type catalog struct {
	mu    sync.RWMutex
	infos map[ModuleID]ModuleInfo
}

var registered = &catalog{infos: make(map[ModuleID]ModuleInfo)}

// RegisterModule adds instance's module to the catalog. It is meant for
// init() and panics on an empty ID, a nil constructor or a duplicate.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registered.mu.Lock()
	defer registered.mu.Unlock()
	if _, dup := registered.infos[info.ID]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	registered.infos[info.ID] = info
}

// GetModule looks up a compiled module.
func GetModule(id string) (ModuleInfo, bool) {
	registered.mu.RLock()
	defer registered.mu.RUnlock()
	info, ok := registered.infos[ModuleID(id)]
	return info, ok
}

// GetModules lists compiled modules ordered by ID.
func GetModules() []ModuleInfo {
	return registered.list(func(ModuleID) bool { return true })
}

// GetModulesByNamespace lists the modules under namespace, e.g. "provider"
// or "recall", ordered by ID.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return registered.list(func(id ModuleID) bool {
		return strings.HasPrefix(string(id), namespace+".")
	})
}

func (c *catalog) list(keep func(ModuleID) bool) []ModuleInfo {
	c.mu.RLock()
	out := make([]ModuleInfo, 0, len(c.infos))
	for id, info := range c.infos {
		if keep(id) {
			out = append(out, info)
		}
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b ModuleInfo) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

// resetRegistry empties the catalog. Tests only.
func resetRegistry() {
	registered.mu.Lock()
	defer registered.mu.Unlock()
	registered.infos = make(map[ModuleID]ModuleInfo)
}
