package bundi

import (
	"sync"
)

// Module is the scanned graph node for one module definition: its provider
// and controller wrappers, the modules it imports and the tokens it exports.
type Module struct {
	name   string
	def    *ModuleDef
	key    any
	global bool

	mu          sync.RWMutex
	providers   map[Token]*InstanceWrapper
	order       []*InstanceWrapper
	controllers []*InstanceWrapper
	ctrlDefs    map[*InstanceWrapper]*ControllerDef
	imports     []*Module
	exports     map[Token]struct{}
	reexports   []*Module
	distance    int
}

func newModule(meta *moduleMetadata) *Module {
	return &Module{
		name:      meta.def.name,
		def:       meta.def,
		key:       meta.key,
		global:    meta.global,
		providers: make(map[Token]*InstanceWrapper),
		ctrlDefs:  make(map[*InstanceWrapper]*ControllerDef),
		exports:   make(map[Token]struct{}),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return m.name
}

// Def returns the module definition.
func (m *Module) Def() *ModuleDef {
	return m.def
}

// IsGlobal reports whether the module's exports are visible everywhere.
func (m *Module) IsGlobal() bool {
	return m.global
}

// Distance returns the longest import path from the root module.
func (m *Module) Distance() int {
	return m.distance
}

// Imports returns the imported modules.
func (m *Module) Imports() []*Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Module(nil), m.imports...)
}

// Providers returns the provider wrappers in declaration order.
func (m *Module) Providers() []*InstanceWrapper {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*InstanceWrapper(nil), m.order...)
}

// Controllers returns the controller wrappers in declaration order.
func (m *Module) Controllers() []*InstanceWrapper {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*InstanceWrapper(nil), m.controllers...)
}

// Provider returns the module's own wrapper for token.
func (m *Module) Provider(token Token) (*InstanceWrapper, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.providers[token]
	return w, ok
}

// Exports reports whether token is in the export set.
func (m *Module) Exports(token Token) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.exports[token]
	return ok
}

// addProvider registers w. A later provider with the same token replaces
// the earlier one.
func (m *Module) addProvider(w *InstanceWrapper) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.providers[w.Token]; ok {
		for i, p := range m.order {
			if p == prev {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.providers[w.Token] = w
	m.order = append(m.order, w)
}

func (m *Module) addController(w *InstanceWrapper, def *ControllerDef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controllers = append(m.controllers, w)
	m.ctrlDefs[w] = def
}

func (m *Module) controllerDef(w *InstanceWrapper) *ControllerDef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctrlDefs[w]
}

func (m *Module) addImport(imported *Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.imports {
		if existing == imported {
			return
		}
	}
	m.imports = append(m.imports, imported)
}

func (m *Module) addExport(token Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[token] = struct{}{}
}

func (m *Module) addReexport(imported *Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reexports = append(m.reexports, imported)
}

// lookup finds the wrapper for token visible from m: its own providers, then
// the exports of imported modules, then the exports of global modules.
func (m *Module) lookup(token Token, globals []*Module) (*InstanceWrapper, bool) {
	if w, ok := m.Provider(token); ok {
		return w, true
	}

	visited := map[*Module]bool{m: true}
	for _, imported := range m.Imports() {
		if w, ok := imported.exported(token, visited); ok {
			return w, true
		}
	}

	for _, g := range globals {
		if g == m {
			continue
		}
		if w, ok := g.exported(token, visited); ok {
			return w, true
		}
	}

	return nil, false
}

// exported finds token in m's export set, following re-exported modules.
func (m *Module) exported(token Token, visited map[*Module]bool) (*InstanceWrapper, bool) {
	if visited[m] {
		return nil, false
	}
	visited[m] = true

	m.mu.RLock()
	_, exported := m.exports[token]
	own := m.providers[token]
	reexports := append([]*Module(nil), m.reexports...)
	m.mu.RUnlock()

	if exported && own != nil {
		return own, true
	}

	// An exported token that m does not provide itself is a re-export of a
	// token m imported.
	if exported {
		for _, imported := range m.Imports() {
			if w, ok := imported.exported(token, visited); ok {
				return w, true
			}
		}
	}

	for _, r := range reexports {
		if w, ok := r.exported(token, visited); ok {
			return w, true
		}
	}

	return nil, false
}
