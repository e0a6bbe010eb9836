// Package identity persists console users and their credentials.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/gatehouse-cms/gatehouse/internal/graph"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

const (
	attrPassword = "password"
	attrBlocked  = "blocked"
)

// Service owns user records stored as graph nodes of kind "user". The login
// doubles as the node's unique name.
type Service struct {
	store  graph.Store
	hasher *Hasher
}

// NewService constructs a Service.
func NewService(store graph.Store, hasher *Hasher) *Service {
	return &Service{store: store, hasher: hasher}
}

// Create registers a user with a hashed password.
func (s *Service) Create(ctx context.Context, login, password string) (User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return User{}, errors.New("identity: login required")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, err
	}
	node, err := s.store.CreateNode(ctx, graph.Node{
		Kind:  graph.KindUser,
		Name:  login,
		Attrs: map[string]string{attrPassword: hash},
	})
	if err != nil {
		return User{}, err
	}
	return toUser(node), nil
}

// Find fetches a user by ID.
func (s *Service) Find(ctx context.Context, id string) (User, error) {
	node, err := s.store.GetNode(ctx, id)
	if err != nil || node.Kind != graph.KindUser {
		return User{}, firstErr(err, shared.ErrEntryNotFound)
	}
	return toUser(node), nil
}

// FindByLogin fetches a user by unique login.
func (s *Service) FindByLogin(ctx context.Context, login string) (User, error) {
	node, err := s.store.GetNodeByName(ctx, graph.KindUser, login)
	if err != nil {
		return User{}, err
	}
	return toUser(node), nil
}

// List returns all users ordered by login.
func (s *Service) List(ctx context.Context) ([]User, error) {
	nodes, err := s.store.ListNodes(ctx, graph.KindUser)
	if err != nil {
		return nil, err
	}
	users := make([]User, len(nodes))
	for i, node := range nodes {
		users[i] = toUser(node)
	}
	return users, nil
}

// UpdateLogin renames a user.
func (s *Service) UpdateLogin(ctx context.Context, id, login string) (User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return User{}, errors.New("identity: login required")
	}
	node, err := s.store.GetNode(ctx, id)
	if err != nil {
		return User{}, err
	}
	node.Name = login
	updated, err := s.store.UpdateNode(ctx, node)
	if err != nil {
		return User{}, err
	}
	return toUser(updated), nil
}

// SetBlocked flips the blocked flag.
func (s *Service) SetBlocked(ctx context.Context, id string, blocked bool) (User, error) {
	node, err := s.store.GetNode(ctx, id)
	if err != nil {
		return User{}, err
	}
	if node.Attrs == nil {
		node.Attrs = map[string]string{}
	}
	if blocked {
		node.Attrs[attrBlocked] = "true"
	} else {
		delete(node.Attrs, attrBlocked)
	}
	updated, err := s.store.UpdateNode(ctx, node)
	if err != nil {
		return User{}, err
	}
	return toUser(updated), nil
}

// ChangePassword rehashes and stores a new password.
func (s *Service) ChangePassword(ctx context.Context, id, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	node, err := s.store.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if node.Attrs == nil {
		node.Attrs = map[string]string{}
	}
	node.Attrs[attrPassword] = hash
	_, err = s.store.UpdateNode(ctx, node)
	return err
}

// Delete removes the user and every edge where it is an endpoint.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteNode(ctx, id)
}

// Verify checks login credentials. An unknown login and a wrong password are
// indistinguishable to the caller; both surface as ErrInvalidCredentials.
func (s *Service) Verify(ctx context.Context, login, password string) (User, error) {
	node, err := s.store.GetNodeByName(ctx, graph.KindUser, login)
	if err != nil {
		if errors.Is(err, shared.ErrEntryNotFound) {
			// Burn a hash anyway so the miss is not observable via timing.
			_, _ = s.hasher.Hash(password)
			return User{}, shared.ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := s.hasher.Verify(password, node.Attr(attrPassword)); err != nil {
		return User{}, err
	}
	return toUser(node), nil
}

func toUser(node graph.Node) User {
	return User{
		ID:           node.ID,
		Login:        node.Name,
		PasswordHash: node.Attr(attrPassword),
		Blocked:      node.Attr(attrBlocked) == "true",
		CreatedAt:    node.CreatedAt,
		UpdatedAt:    node.UpdatedAt,
	}
}

func firstErr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
