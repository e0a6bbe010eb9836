package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-cms/gatehouse/internal/platform/db"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// Postgres SQLSTATE codes surfaced by constraint violations.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PGStore implements Store on PostgreSQL. All statements are parameterized;
// node attributes live in a jsonb column and edges in a (kind, src, dst)
// table with foreign keys into nodes.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore backed by the provided pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const nodeColumns = "id, kind, name, attrs, created_at, updated_at"

// CreateNode inserts a node, generating an ID when absent.
func (s *PGStore) CreateNode(ctx context.Context, n Node) (Node, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	attrs, err := marshalAttrs(n.Attrs)
	if err != nil {
		return Node{}, fmt.Errorf("graph: marshal attrs: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO nodes (id, kind, name, attrs, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 RETURNING `+nodeColumns,
		n.ID, string(n.Kind), n.Name, attrs)
	created, err := scanNode(row)
	if err != nil {
		if isSQLState(err, pgUniqueViolation) {
			return Node{}, shared.ErrEntryAlreadyExists
		}
		return Node{}, storageErr("create node", err)
	}
	return created, nil
}

// GetNode fetches a node by ID.
func (s *PGStore) GetNode(ctx context.Context, id string) (Node, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE id = $1`, id)
	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Node{}, shared.ErrEntryNotFound
		}
		return Node{}, storageErr("get node", err)
	}
	return n, nil
}

// GetNodeByName fetches a node by its per-kind unique name.
func (s *PGStore) GetNodeByName(ctx context.Context, kind Kind, name string) (Node, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE kind = $1 AND name = $2`,
		string(kind), name)
	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Node{}, shared.ErrEntryNotFound
		}
		return Node{}, storageErr("get node by name", err)
	}
	return n, nil
}

// UpdateNode rewrites the name and attributes of an existing node.
func (s *PGStore) UpdateNode(ctx context.Context, n Node) (Node, error) {
	attrs, err := marshalAttrs(n.Attrs)
	if err != nil {
		return Node{}, fmt.Errorf("graph: marshal attrs: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE nodes SET name = $2, attrs = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+nodeColumns,
		n.ID, n.Name, attrs)
	updated, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Node{}, shared.ErrEntryUpdate
		}
		if isSQLState(err, pgUniqueViolation) {
			return Node{}, shared.ErrEntryAlreadyExists
		}
		return Node{}, storageErr("update node", err)
	}
	return updated, nil
}

// ListNodes returns every node of a kind ordered by name.
func (s *PGStore) ListNodes(ctx context.Context, kind Kind) ([]Node, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE kind = $1 ORDER BY name`,
		string(kind))
	if err != nil {
		return nil, storageErr("list nodes", err)
	}
	defer rows.Close()
	return collectNodes(rows, "list nodes")
}

// DeleteNode removes the node and all touching edges in one transaction.
func (s *PGStore) DeleteNode(ctx context.Context, id string) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM edges WHERE src = $1 OR dst = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM nodes WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrEntryNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrEntryNotFound) {
			return shared.ErrEntryNotFound
		}
		return storageErr("delete node", err)
	}
	return nil
}

// Relate asserts an edge; asserting an existing edge is a no-op.
func (s *PGStore) Relate(ctx context.Context, kind EdgeKind, src, dst string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO edges (kind, src, dst) VALUES ($1, $2, $3)
		 ON CONFLICT (kind, src, dst) DO NOTHING`,
		string(kind), src, dst)
	if err != nil {
		if isSQLState(err, pgForeignKeyViolation) {
			return shared.ErrEntryNotFound
		}
		return storageErr("relate", err)
	}
	return nil
}

// Unrelate removes an edge; removing a missing edge is a no-op.
func (s *PGStore) Unrelate(ctx context.Context, kind EdgeKind, src, dst string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM edges WHERE kind = $1 AND src = $2 AND dst = $3`,
		string(kind), src, dst)
	if err != nil {
		return storageErr("unrelate", err)
	}
	return nil
}

// DropEdges removes every out-edge of the given kind from src.
func (s *PGStore) DropEdges(ctx context.Context, kind EdgeKind, src string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM edges WHERE kind = $1 AND src = $2`,
		string(kind), src)
	if err != nil {
		return storageErr("drop edges", err)
	}
	return nil
}

// ReplaceEdges swaps the full out-edge set of src atomically.
func (s *PGStore) ReplaceEdges(ctx context.Context, kind EdgeKind, src string, dsts []string) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM edges WHERE kind = $1 AND src = $2`,
			string(kind), src); err != nil {
			return err
		}
		for _, dst := range dsts {
			if _, err := tx.Exec(ctx,
				`INSERT INTO edges (kind, src, dst) VALUES ($1, $2, $3)
				 ON CONFLICT (kind, src, dst) DO NOTHING`,
				string(kind), src, dst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isSQLState(err, pgForeignKeyViolation) {
			return shared.ErrEntryNotFound
		}
		return storageErr("replace edges", err)
	}
	return nil
}

// Traverse follows the edge kinds in order and returns the distinct nodes
// reached. The query shape is fixed per hop count; every value travels as a
// bind parameter.
func (s *PGStore) Traverse(ctx context.Context, from string, path ...EdgeKind) ([]Node, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("graph: traverse: empty path")
	}
	args := make([]any, 0, len(path)+1)
	args = append(args, from)
	for _, kind := range path {
		args = append(args, string(kind))
	}
	rows, err := s.pool.Query(ctx, traverseQuery(len(path)), args...)
	if err != nil {
		return nil, storageErr("traverse", err)
	}
	defer rows.Close()
	return collectNodes(rows, "traverse")
}

// Predecessors returns the distinct nodes pointing at dst via the given kind.
func (s *PGStore) Predecessors(ctx context.Context, kind EdgeKind, dst string) ([]Node, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT n.id, n.kind, n.name, n.attrs, n.created_at, n.updated_at
		 FROM edges e JOIN nodes n ON n.id = e.src
		 WHERE e.kind = $1 AND e.dst = $2
		 ORDER BY n.name`,
		string(kind), dst)
	if err != nil {
		return nil, storageErr("predecessors", err)
	}
	defer rows.Close()
	return collectNodes(rows, "predecessors")
}

func traverseQuery(hops int) string {
	var b strings.Builder
	b.WriteString("SELECT DISTINCT n.id, n.kind, n.name, n.attrs, n.created_at, n.updated_at FROM edges e1")
	for i := 2; i <= hops; i++ {
		fmt.Fprintf(&b, " JOIN edges e%d ON e%d.src = e%d.dst", i, i, i-1)
	}
	fmt.Fprintf(&b, " JOIN nodes n ON n.id = e%d.dst WHERE e1.src = $1 AND e1.kind = $2", hops)
	for i := 2; i <= hops; i++ {
		fmt.Fprintf(&b, " AND e%d.kind = $%d", i, i+1)
	}
	b.WriteString(" ORDER BY n.name")
	return b.String()
}

func scanNode(row pgx.Row) (Node, error) {
	var (
		n         Node
		kind      string
		attrs     []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&n.ID, &kind, &n.Name, &attrs, &createdAt, &updatedAt); err != nil {
		return Node{}, err
	}
	n.Kind = Kind(kind)
	n.CreatedAt = createdAt
	n.UpdatedAt = updatedAt
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &n.Attrs); err != nil {
			return Node{}, err
		}
	}
	return n, nil
}

func collectNodes(rows pgx.Rows, op string) ([]Node, error) {
	nodes := make([]Node, 0)
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return nodes, nil
}

func marshalAttrs(attrs map[string]string) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return json.Marshal(attrs)
}

func isSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func storageErr(op string, err error) error {
	return fmt.Errorf("graph: %s: %v: %w", op, err, shared.ErrStorage)
}

var _ Store = (*PGStore)(nil)
