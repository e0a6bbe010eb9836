package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// MemStore is an in-memory Store used by tests and local tooling. It mirrors
// the PGStore contract, including edge idempotence and cascade deletes.
type MemStore struct {
	mu     sync.RWMutex
	nodes  map[string]Node
	byName map[Kind]map[string]string
	edges  map[EdgeKind]map[string]map[string]struct{}
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes:  make(map[string]Node),
		byName: make(map[Kind]map[string]string),
		edges:  make(map[EdgeKind]map[string]map[string]struct{}),
	}
}

// CreateNode inserts a node, generating an ID when absent.
func (s *MemStore) CreateNode(_ context.Context, n Node) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	names := s.byName[n.Kind]
	if names == nil {
		names = make(map[string]string)
		s.byName[n.Kind] = names
	}
	if _, exists := names[n.Name]; exists {
		return Node{}, shared.ErrEntryAlreadyExists
	}
	if _, exists := s.nodes[n.ID]; exists {
		return Node{}, shared.ErrEntryAlreadyExists
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	n.Attrs = cloneAttrs(n.Attrs)
	s.nodes[n.ID] = n
	names[n.Name] = n.ID
	return n, nil
}

// GetNode fetches a node by ID.
func (s *MemStore) GetNode(_ context.Context, id string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, shared.ErrEntryNotFound
	}
	return n, nil
}

// GetNodeByName fetches a node by its per-kind unique name.
func (s *MemStore) GetNodeByName(_ context.Context, kind Kind, name string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[kind][name]
	if !ok {
		return Node{}, shared.ErrEntryNotFound
	}
	return s.nodes[id], nil
}

// UpdateNode rewrites the name and attributes of an existing node.
func (s *MemStore) UpdateNode(_ context.Context, n Node) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.nodes[n.ID]
	if !ok {
		return Node{}, shared.ErrEntryUpdate
	}
	if n.Name != current.Name {
		if _, taken := s.byName[current.Kind][n.Name]; taken {
			return Node{}, shared.ErrEntryAlreadyExists
		}
		delete(s.byName[current.Kind], current.Name)
		s.byName[current.Kind][n.Name] = n.ID
	}
	current.Name = n.Name
	current.Attrs = cloneAttrs(n.Attrs)
	current.UpdatedAt = time.Now().UTC()
	s.nodes[n.ID] = current
	return current, nil
}

// ListNodes returns every node of a kind ordered by name.
func (s *MemStore) ListNodes(_ context.Context, kind Kind) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]Node, 0)
	for _, n := range s.nodes {
		if n.Kind == kind {
			nodes = append(nodes, n)
		}
	}
	sortNodes(nodes)
	return nodes, nil
}

// DeleteNode removes the node and all touching edges.
func (s *MemStore) DeleteNode(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return shared.ErrEntryNotFound
	}
	for _, bySrc := range s.edges {
		delete(bySrc, id)
		for _, dsts := range bySrc {
			delete(dsts, id)
		}
	}
	delete(s.byName[n.Kind], n.Name)
	delete(s.nodes, id)
	return nil
}

// Relate asserts an edge; asserting an existing edge is a no-op.
func (s *MemStore) Relate(_ context.Context, kind EdgeKind, src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[src]; !ok {
		return shared.ErrEntryNotFound
	}
	if _, ok := s.nodes[dst]; !ok {
		return shared.ErrEntryNotFound
	}
	bySrc := s.edges[kind]
	if bySrc == nil {
		bySrc = make(map[string]map[string]struct{})
		s.edges[kind] = bySrc
	}
	dsts := bySrc[src]
	if dsts == nil {
		dsts = make(map[string]struct{})
		bySrc[src] = dsts
	}
	dsts[dst] = struct{}{}
	return nil
}

// Unrelate removes an edge; removing a missing edge is a no-op.
func (s *MemStore) Unrelate(_ context.Context, kind EdgeKind, src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edges[kind][src], dst)
	return nil
}

// DropEdges removes every out-edge of the given kind from src.
func (s *MemStore) DropEdges(_ context.Context, kind EdgeKind, src string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edges[kind], src)
	return nil
}

// ReplaceEdges swaps the full out-edge set of src.
func (s *MemStore) ReplaceEdges(_ context.Context, kind EdgeKind, src string, dsts []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[src]; !ok {
		return shared.ErrEntryNotFound
	}
	for _, dst := range dsts {
		if _, ok := s.nodes[dst]; !ok {
			return shared.ErrEntryNotFound
		}
	}
	bySrc := s.edges[kind]
	if bySrc == nil {
		bySrc = make(map[string]map[string]struct{})
		s.edges[kind] = bySrc
	}
	next := make(map[string]struct{}, len(dsts))
	for _, dst := range dsts {
		next[dst] = struct{}{}
	}
	bySrc[src] = next
	return nil
}

// Traverse follows the edge kinds in order and returns the distinct nodes
// reached, ordered by name.
func (s *MemStore) Traverse(_ context.Context, from string, path ...EdgeKind) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frontier := map[string]struct{}{from: {}}
	for _, kind := range path {
		next := make(map[string]struct{})
		for src := range frontier {
			for dst := range s.edges[kind][src] {
				next[dst] = struct{}{}
			}
		}
		frontier = next
	}
	nodes := make([]Node, 0, len(frontier))
	for id := range frontier {
		if n, ok := s.nodes[id]; ok {
			nodes = append(nodes, n)
		}
	}
	sortNodes(nodes)
	return nodes, nil
}

// Predecessors returns the distinct nodes pointing at dst via the given kind,
// ordered by name.
func (s *MemStore) Predecessors(_ context.Context, kind EdgeKind, dst string) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]Node, 0)
	for src, dsts := range s.edges[kind] {
		if _, ok := dsts[dst]; ok {
			if n, exists := s.nodes[src]; exists {
				nodes = append(nodes, n)
			}
		}
	}
	sortNodes(nodes)
	return nodes, nil
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
}

func cloneAttrs(attrs map[string]string) map[string]string {
	cloned := make(map[string]string, len(attrs))
	for k, v := range attrs {
		cloned[k] = v
	}
	return cloned
}

var _ Store = (*MemStore)(nil)
