package bundi

import (
	"go.uber.org/zap"

	"github.com/imdat99/bun-di-sub000/internal/graph"
)

// bubbleScopes promotes every Singleton wrapper whose dependency closure
// reaches a Request-scoped wrapper, or the request context, to Request
// scope. It runs once after scanning, before any instance is created.
func bubbleScopes(c *Container, logger *zap.Logger) {
	globals := c.Globals()
	edges := make(map[*InstanceWrapper][]*InstanceWrapper)

	next := func(w *InstanceWrapper) []*InstanceWrapper {
		if deps, ok := edges[w]; ok {
			return deps
		}

		var deps []*InstanceWrapper
		visit := func(d Dependency) {
			if d.kind != depToken {
				return
			}
			token := d.Token
			if ref, ok := token.(ForwardReference); ok {
				token = ref.Unwrap()
			}
			if validateToken(token) != nil {
				return
			}
			if dep, ok := w.host.lookup(token, globals); ok {
				deps = append(deps, dep)
			}
		}
		for _, d := range w.deps {
			visit(d)
		}
		for _, p := range w.props {
			visit(p.Dependency)
		}

		edges[w] = deps
		return deps
	}

	reacher := graph.NewReacher(next, func(w *InstanceWrapper) bool {
		return w.scope == Request || w.dependsOnRequest()
	})

	var promoted []*InstanceWrapper
	for _, w := range c.wrappers() {
		if w.scope != Singleton {
			continue
		}
		if reacher.Reaches(w) {
			promoted = append(promoted, w)
		}
	}

	for _, w := range promoted {
		w.scope = Request
		logger.Debug("promoted provider to request scope",
			zap.String("provider", w.Name),
			zap.String("module", w.host.name))
	}
}
