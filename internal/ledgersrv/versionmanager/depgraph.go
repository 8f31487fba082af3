package versionmanager

import (
	"context"
	"sort"

	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// DependentsOf returns the identities that declare an edge pointing at ref.
func DependentsOf(ctx context.Context, branchName string, ref types.ObjectRef) ([]types.ObjectRef, apperrors.Error) {
	if !ref.IsValid() {
		return nil, ErrInvalidArgument.Msg("invalid object reference: " + ref.String())
	}
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return nil, aerr
	}
	edges, derr := db.DB(ctx).ListEdgesByTarget(ctx, branch.BranchID, ref)
	if derr != nil {
		return nil, ErrIntegrity.Err(derr)
	}
	refs := make([]types.ObjectRef, 0, len(edges))
	for _, e := range edges {
		refs = append(refs, e.Source)
	}
	return refs, nil
}

// DependenciesOf returns the identities ref declares edges to.
func DependenciesOf(ctx context.Context, branchName string, ref types.ObjectRef) ([]types.ObjectRef, apperrors.Error) {
	if !ref.IsValid() {
		return nil, ErrInvalidArgument.Msg("invalid object reference: " + ref.String())
	}
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return nil, aerr
	}
	edges, derr := db.DB(ctx).ListEdgesBySource(ctx, branch.BranchID, ref)
	if derr != nil {
		return nil, ErrIntegrity.Err(derr)
	}
	refs := make([]types.ObjectRef, 0, len(edges))
	for _, e := range edges {
		refs = append(refs, e.Target)
	}
	return refs, nil
}

// depGraph is an in-memory view of a branch's edge list restricted to a set
// of identities. deps[x] holds what x depends on; dependents[x] the inverse.
type depGraph struct {
	nodes      map[string]types.ObjectRef
	deps       map[string][]string
	dependents map[string][]string
}

// buildDepGraph keeps only the edges where both endpoints are in the
// affected set.
func buildDepGraph(edges []*models.DependencyEdge, affected []types.ObjectRef) *depGraph {
	g := &depGraph{
		nodes:      make(map[string]types.ObjectRef, len(affected)),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
	for _, ref := range affected {
		g.nodes[ref.String()] = ref
	}
	for _, e := range edges {
		src, tgt := e.Source.String(), e.Target.String()
		if _, ok := g.nodes[src]; !ok {
			continue
		}
		if _, ok := g.nodes[tgt]; !ok {
			continue
		}
		g.deps[src] = append(g.deps[src], tgt)
		g.dependents[tgt] = append(g.dependents[tgt], src)
	}
	return g
}

// topoOrder returns the node keys sorted so every node appears after the
// nodes it depends on. Ties break alphabetically for determinism. A cycle
// yields ErrDependencyCycle naming one node on the cycle; the engine never
// guesses an order.
func (g *depGraph) topoOrder() ([]string, apperrors.Error) {
	indegree := make(map[string]int, len(g.nodes))
	for key := range g.nodes {
		indegree[key] = len(g.deps[key])
	}

	var ready []string
	for key, d := range indegree {
		if d == 0 {
			ready = append(ready, key)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		key := ready[0]
		ready = ready[1:]
		order = append(order, key)

		var released []string
		for _, dep := range g.dependents[key] {
			indegree[dep]--
			if indegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		sort.Strings(released)
		ready = append(ready, released...)
	}

	if len(order) != len(g.nodes) {
		for key, d := range indegree {
			if d > 0 {
				return nil, ErrDependencyCycle.Msg("cycle involves " + key)
			}
		}
		return nil, ErrDependencyCycle
	}
	return order, nil
}
