package bundi

import (
	"errors"
	"io"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/imdat99/bun-di-sub000/internal/graph"
)

// Container holds every scanned module, keyed by module definition, and the
// subset marked global.
type Container struct {
	mu      sync.RWMutex
	modules map[any]*Module
	order   []*Module
	globals []*Module
	root    *Module
	core    *Module
	imports *graph.Graph[*Module]
	logger  *zap.Logger
}

// NewContainer creates an empty container. A nil logger discards output.
func NewContainer(logger *zap.Logger) *Container {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Container{
		modules: make(map[any]*Module),
		imports: graph.New[*Module](),
		logger:  logger,
	}
}

// Root returns the root module.
func (c *Container) Root() *Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.root
}

// Modules returns every module in scan order.
func (c *Container) Modules() []*Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Module(nil), c.order...)
}

// Module returns the module scanned for a *ModuleDef or *DynamicModule.
func (c *Container) Module(key any) (*Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.modules[key]
	return m, ok
}

// Globals returns the global modules.
func (c *Container) Globals() []*Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Module(nil), c.globals...)
}

func (c *Container) addModule(m *Module) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.modules[m.key] = m
	c.order = append(c.order, m)
	if m.global {
		c.globals = append(c.globals, m)
	}
	c.imports.AddNode(m)
}

func (c *Container) addImport(from, to *Module) {
	from.addImport(to)
	c.imports.AddEdge(from, to)
}

// find looks token up from the root module, then in every module's own
// providers.
func (c *Container) find(token Token) (*InstanceWrapper, bool) {
	if root := c.Root(); root != nil {
		if w, ok := root.lookup(token, c.Globals()); ok {
			return w, true
		}
	}
	for _, m := range c.Modules() {
		if w, ok := m.Provider(token); ok {
			return w, true
		}
	}
	return nil, false
}

// wrappers returns every provider and controller wrapper.
func (c *Container) wrappers() []*InstanceWrapper {
	var all []*InstanceWrapper
	for _, m := range c.Modules() {
		all = append(all, m.Providers()...)
		all = append(all, m.Controllers()...)
	}
	return all
}

// computeDistances records, for every module, the longest import path from
// the root. The internal core module sorts after every other module.
func (c *Container) computeDistances() {
	root := c.Root()
	if root == nil {
		return
	}

	dist := c.imports.Distances(root)
	maxDist := 0
	for _, d := range dist {
		maxDist = max(maxDist, d)
	}

	for _, m := range c.Modules() {
		d, ok := dist[m]
		if !ok || m == c.core {
			d = maxDist + 1
		}
		m.distance = d
	}
}

// byDistance returns the modules ordered deepest first, scan order breaking
// ties.
func (c *Container) byDistance() []*Module {
	modules := c.Modules()
	sort.SliceStable(modules, func(i, j int) bool {
		return modules[i].distance > modules[j].distance
	})
	return modules
}

// GraphFormat selects the output of WriteGraph.
type GraphFormat int

const (
	// GraphDOT is Graphviz DOT.
	GraphDOT GraphFormat = iota
	// GraphText is one line per module listing its imports.
	GraphText
)

// WriteGraph writes the module import graph, in Graphviz DOT format unless
// another format is given.
func (c *Container) WriteGraph(w io.Writer, format ...GraphFormat) error {
	if len(format) > 0 && format[0] == GraphText {
		return c.imports.WriteText(w, moduleName)
	}
	return c.imports.WriteDOT(w, "modules", moduleName)
}

func moduleName(m *Module) string {
	return m.name
}

// instantiationOrder returns the modules with imported modules before their
// importers. Modules on import cycles follow in scan order.
func (c *Container) instantiationOrder() []*Module {
	sorted, err := c.imports.TopologicalSort()
	var cycle *graph.CycleError[*Module]
	if errors.As(err, &cycle) {
		names := make([]string, len(cycle.Nodes))
		for i, m := range cycle.Nodes {
			names[i] = m.name
		}
		c.logger.Debug("module imports form a cycle, ordering them by scan order",
			zap.Strings("modules", names))
	}

	seen := make(map[*Module]bool, len(sorted))
	for _, m := range sorted {
		seen[m] = true
	}
	for _, m := range c.imports.Nodes() {
		if !seen[m] {
			sorted = append(sorted, m)
		}
	}
	return sorted
}
