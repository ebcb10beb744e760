package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nerrad567/tagwatch-core/internal/infrastructure/postgres"
)

// PostgresStore implements Store on PostgreSQL. Call EnsureSchema on the
// pool before first use.
type PostgresStore struct {
	pool *postgres.Pool
}

// NewPostgresStore creates a store on an open pool.
func NewPostgresStore(pool *postgres.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// HealthCheck pings the database.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

// ListConnections returns every connection ordered by id.
func (s *PostgresStore) ListConnections(ctx context.Context) ([]Connection, error) {
	return s.queryConnections(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY id`)
}

// ListEnabledConnections returns the connections that should have a live session.
func (s *PostgresStore) ListEnabledConnections(ctx context.Context) ([]Connection, error) {
	return s.queryConnections(ctx, `SELECT `+connectionColumns+` FROM connections WHERE enabled = true ORDER BY id`)
}

// GetConnection retrieves one connection.
func (s *PostgresStore) GetConnection(ctx context.Context, id int64) (Connection, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = $1`, id)
	if err != nil {
		return Connection{}, fmt.Errorf("querying connection %d: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, pgConnection)
	if errors.Is(err, pgx.ErrNoRows) {
		return Connection{}, ErrConnectionNotFound
	}
	if err != nil {
		return Connection{}, fmt.Errorf("scanning connection %d: %w", id, err)
	}
	return c, nil
}

// CreateConnection inserts c and fills in its id and timestamps.
func (s *PostgresStore) CreateConnection(ctx context.Context, c *Connection) error {
	if err := ValidateConnection(*c); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO connections (name, endpoint_url, description, enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at, updated_at`,
		c.Name, c.EndpointURL, c.Description, c.Enabled,
	).Scan(&c.ID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting connection: %w", err)
	}
	return nil
}

// UpdateConnection replaces the editable fields of c.
func (s *PostgresStore) UpdateConnection(ctx context.Context, c *Connection) error {
	if err := ValidateConnection(*c); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx, `
		UPDATE connections SET name = $1, endpoint_url = $2, description = $3, enabled = $4, updated_at = now()
		WHERE id = $5
		RETURNING updated_at`,
		c.Name, c.EndpointURL, c.Description, c.Enabled, c.ID,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrConnectionNotFound
	}
	if err != nil {
		return fmt.Errorf("updating connection %d: %w", c.ID, err)
	}
	return nil
}

// SetConnectionStatus records the observed live state.
func (s *PostgresStore) SetConnectionStatus(ctx context.Context, id int64, connected bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE connections SET status = $1 WHERE id = $2`, connected, id)
	return affected(tag, err, ErrConnectionNotFound, "updating connection status")
}

// DeleteConnection removes the connection together with its tags and rules.
func (s *PostgresStore) DeleteConnection(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM connections WHERE id = $1`, id)
	return affected(tag, err, ErrConnectionNotFound, "deleting connection")
}

// ListTagsForConnection returns the tags monitored on a connection.
func (s *PostgresStore) ListTagsForConnection(ctx context.Context, connectionID int64) ([]Tag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE connection_id = $1 ORDER BY id`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	tags, err := pgx.CollectRows(rows, pgTag)
	if err != nil {
		return nil, fmt.Errorf("scanning tags: %w", err)
	}
	return tags, nil
}

// GetTag retrieves one tag.
func (s *PostgresStore) GetTag(ctx context.Context, id int64) (Tag, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = $1`, id)
	if err != nil {
		return Tag{}, fmt.Errorf("querying tag %d: %w", id, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, pgTag)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tag{}, ErrTagNotFound
	}
	if err != nil {
		return Tag{}, fmt.Errorf("scanning tag %d: %w", id, err)
	}
	return t, nil
}

// CreateTag inserts t. The owning connection must exist.
func (s *PostgresStore) CreateTag(ctx context.Context, t *Tag) error {
	if err := ValidateTag(*t); err != nil {
		return err
	}
	if _, err := s.GetConnection(ctx, t.ConnectionID); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tags (connection_id, tag_name, node_id, unit) VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		t.ConnectionID, t.Name, t.NodeID, t.Unit,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting tag: %w", err)
	}
	return nil
}

// DeleteTag removes a tag and the rules triggered by it.
func (s *PostgresStore) DeleteTag(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	return affected(tag, err, ErrTagNotFound, "deleting tag")
}

// ListRules returns every rule, newest first.
func (s *PostgresStore) ListRules(ctx context.Context) ([]Rule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY id DESC`)
}

// ListEnabledRulesForTag returns the enabled rules triggered by tagID.
func (s *PostgresStore) ListEnabledRulesForTag(ctx context.Context, tagID int64) ([]Rule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules WHERE tag_id = $1 AND enabled = true ORDER BY id`, tagID)
}

// GetRule retrieves one rule.
func (s *PostgresStore) GetRule(ctx context.Context, id int64) (Rule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = $1`, id)
	if err != nil {
		return Rule{}, fmt.Errorf("querying rule %d: %w", id, err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, pgRule)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrRuleNotFound
	}
	if err != nil {
		return Rule{}, fmt.Errorf("scanning rule %d: %w", id, err)
	}
	return r, nil
}

// CreateRule inserts r and fills in its id.
func (s *PostgresStore) CreateRule(ctx context.Context, r *Rule) error {
	if err := checkRuleRefs(ctx, *r, s.GetTag); err != nil {
		return err
	}
	logicType, static, target, offset := logicColumns(r.Logic)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rules (name, tag_id, logic_type, operator, static_value, target_tag_id,
			offset_value, severity, message, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		r.Name, r.TagID, logicType, string(r.Operator), static, target,
		offset, string(r.Severity), r.Message, r.Enabled,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}
	r.RawLogicType = logicType
	return nil
}

// UpdateRule replaces every field of r.
func (s *PostgresStore) UpdateRule(ctx context.Context, r *Rule) error {
	if err := checkRuleRefs(ctx, *r, s.GetTag); err != nil {
		return err
	}
	logicType, static, target, offset := logicColumns(r.Logic)
	tag, err := s.pool.Exec(ctx, `
		UPDATE rules SET name = $1, tag_id = $2, logic_type = $3, operator = $4, static_value = $5,
			target_tag_id = $6, offset_value = $7, severity = $8, message = $9, enabled = $10
		WHERE id = $11`,
		r.Name, r.TagID, logicType, string(r.Operator), static, target,
		offset, string(r.Severity), r.Message, r.Enabled, r.ID,
	)
	r.RawLogicType = logicType
	return affected(tag, err, ErrRuleNotFound, "updating rule")
}

// DeleteRule removes a rule.
func (s *PostgresStore) DeleteRule(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	return affected(tag, err, ErrRuleNotFound, "deleting rule")
}

func (s *PostgresStore) queryConnections(ctx context.Context, query string, args ...any) ([]Connection, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	conns, err := pgx.CollectRows(rows, pgConnection)
	if err != nil {
		return nil, fmt.Errorf("scanning connections: %w", err)
	}
	return conns, nil
}

func (s *PostgresStore) queryRules(ctx context.Context, query string, args ...any) ([]Rule, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	rules, err := pgx.CollectRows(rows, pgRule)
	if err != nil {
		return nil, fmt.Errorf("scanning rules: %w", err)
	}
	return rules, nil
}

func pgConnection(row pgx.CollectableRow) (Connection, error) {
	var c Connection
	err := row.Scan(&c.ID, &c.Name, &c.EndpointURL, &c.Description, &c.Enabled, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func pgTag(row pgx.CollectableRow) (Tag, error) {
	var t Tag
	err := row.Scan(&t.ID, &t.ConnectionID, &t.Name, &t.NodeID, &t.Unit, &t.CreatedAt)
	return t, err
}

func pgRule(row pgx.CollectableRow) (Rule, error) {
	var r Rule
	var tagID *int64
	var static, offset *float64
	var target *int64
	var operator, severity string
	if err := row.Scan(&r.ID, &r.Name, &tagID, &r.RawLogicType, &operator, &static, &target,
		&offset, &severity, &r.Message, &r.Enabled, &r.CreatedAt); err != nil {
		return Rule{}, err
	}
	if tagID != nil {
		r.TagID = *tagID
	}
	r.Operator = Operator(operator)
	r.Severity = Severity(severity)
	r.Logic, _ = DecodeLogic(r.RawLogicType, static, target, offset) //nolint:errcheck // nil Logic carries the failure
	return r, nil
}

func affected(tag pgconn.CommandTag, err error, notFound error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
