// Package resolver expands a package into the ordered set of dependencies
// that must be installed before it.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bitey-pm/bitey/pkg/source"
)

var ErrCircularDependency = errors.New("circular dependency")

// Fetcher resolves a package name against a remote.
type Fetcher interface {
	Resolve(ctx context.Context, remoteURL, name string) (*source.Resolved, error)
}

// frame is a package on the active dependency path and the index of the
// next dependency to visit.
type frame struct {
	res  *source.Resolved
	next int
}

// Closure returns the transitive dependencies of root in post-order: each
// entry follows all of its own dependencies. The root itself is not part of
// the plan. Dependencies are resolved against the remote of the manifest
// that declares them, and each name is fetched at most once.
func Closure(ctx context.Context, f Fetcher, root *source.Resolved) (*Plan, error) {
	plan := NewPlan()
	done := map[string]bool{}
	onPath := map[string]bool{root.Name: true}
	path := []string{root.Name}
	stack := []*frame{{res: root}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		top := stack[len(stack)-1]
		deps := top.res.Manifest.Dependencies

		if top.next == len(deps) {
			stack = stack[:len(stack)-1]
			path = path[:len(path)-1]
			delete(onPath, top.res.Name)
			done[top.res.Name] = true
			if top.res != root {
				plan.Add(top.res, false)
			}
			continue
		}

		dep := deps[top.next]
		top.next++

		if onPath[dep] {
			cycle := append(slices.Clone(path[slices.Index(path, dep):]), dep)
			return nil, fmt.Errorf("%w involving %s: %s", ErrCircularDependency, dep, strings.Join(cycle, " -> "))
		}
		if done[dep] {
			continue
		}

		res, err := f.Resolve(ctx, top.res.RemoteURL, dep)
		if err != nil {
			return nil, dependencyError(top.res.Name, dep, err)
		}

		stack = append(stack, &frame{res: res})
		path = append(path, dep)
		onPath[dep] = true
	}

	return plan, nil
}

func dependencyError(parent, dep string, err error) error {
	var fe *source.FetchError
	if errors.As(err, &fe) && fe.Stage == source.StagePointer && errors.Is(err, source.ErrDocumentNotFound) {
		return fmt.Errorf("dependency %q of %q: %w: not listed on the same remote (cross-remote dependencies are not supported): %v",
			dep, parent, source.ErrMalformedDocument, err)
	}
	return fmt.Errorf("resolving dependency %q of %q: %w", dep, parent, err)
}
