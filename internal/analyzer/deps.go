package analyzer

import (
	"itp/internal/domain"
)

type definition struct {
	file string
	name string
}

// BuildDependencyMap resolves, for every test function, the transitive set of
// workspace functions it calls. Calls are matched by simple name, so every
// definition sharing a name is treated as reachable. The result maps each
// reachable simple name to the tests that reach it.
func BuildDependencyMap(fp domain.WorkspaceFingerprint) domain.DependencyMap {
	defs := map[string][]definition{}
	for path, file := range fp {
		for name := range file.Functions {
			simple := domain.SimpleName(name)
			defs[simple] = append(defs[simple], definition{file: path, name: name})
		}
	}

	deps := domain.DependencyMap{}
	for _, test := range fp.Tests() {
		visited := map[string]bool{}
		queue := append([]string(nil), fp[test.File].Calls[test.Name]...)

		for len(queue) > 0 {
			callee := queue[0]
			queue = queue[1:]
			if visited[callee] {
				continue
			}
			visited[callee] = true

			targets, ok := defs[callee]
			if !ok {
				continue
			}
			deps[callee] = append(deps[callee], test)
			for _, def := range targets {
				queue = append(queue, fp[def.file].Calls[def.name]...)
			}
		}
	}

	for name := range deps {
		domain.SortTestIDs(deps[name])
	}
	return deps
}
