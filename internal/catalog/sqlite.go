package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tagwatch-core/internal/infrastructure/database"
)

const (
	connectionColumns = `id, name, endpoint_url, description, enabled, status, created_at, updated_at`
	tagColumns        = `id, connection_id, tag_name, node_id, unit, created_at`
	ruleColumns       = `id, name, tag_id, logic_type, operator, static_value, target_tag_id,
		offset_value, severity, message, enabled, created_at`
)

// SQLiteStore implements Store on the embedded database. The schema comes
// from the migrations package.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore creates a store on an open, migrated database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// HealthCheck verifies the database answers queries.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// ListConnections returns every connection ordered by id.
func (s *SQLiteStore) ListConnections(ctx context.Context) ([]Connection, error) {
	return s.queryConnections(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY id`)
}

// ListEnabledConnections returns the connections that should have a live session.
func (s *SQLiteStore) ListEnabledConnections(ctx context.Context) ([]Connection, error) {
	return s.queryConnections(ctx, `SELECT `+connectionColumns+` FROM connections WHERE enabled = 1 ORDER BY id`)
}

// GetConnection retrieves one connection.
func (s *SQLiteStore) GetConnection(ctx context.Context, id int64) (Connection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Connection{}, ErrConnectionNotFound
	}
	if err != nil {
		return Connection{}, fmt.Errorf("querying connection %d: %w", id, err)
	}
	return c, nil
}

// CreateConnection inserts c and fills in its id and timestamps.
func (s *SQLiteStore) CreateConnection(ctx context.Context, c *Connection) error {
	if err := ValidateConnection(*c); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (name, endpoint_url, description, enabled, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		c.Name, c.EndpointURL, c.Description, boolToInt(c.Enabled),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting connection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading connection id: %w", err)
	}
	c.ID, c.Status, c.CreatedAt, c.UpdatedAt = id, false, now, now
	return nil
}

// UpdateConnection replaces the editable fields of c.
func (s *SQLiteStore) UpdateConnection(ctx context.Context, c *Connection) error {
	if err := ValidateConnection(*c); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE connections SET name = ?, endpoint_url = ?, description = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.EndpointURL, c.Description, boolToInt(c.Enabled), now.Format(time.RFC3339), c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating connection %d: %w", c.ID, err)
	}
	if err := requireRow(res, ErrConnectionNotFound); err != nil {
		return err
	}
	c.UpdatedAt = now
	return nil
}

// SetConnectionStatus records the observed live state.
func (s *SQLiteStore) SetConnectionStatus(ctx context.Context, id int64, connected bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE connections SET status = ? WHERE id = ?`, boolToInt(connected), id)
	if err != nil {
		return fmt.Errorf("updating connection %d status: %w", id, err)
	}
	return requireRow(res, ErrConnectionNotFound)
}

// DeleteConnection removes the connection together with its tags and rules.
func (s *SQLiteStore) DeleteConnection(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting connection %d: %w", id, err)
	}
	return requireRow(res, ErrConnectionNotFound)
}

// ListTagsForConnection returns the tags monitored on a connection.
func (s *SQLiteStore) ListTagsForConnection(ctx context.Context, connectionID int64) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE connection_id = ? ORDER BY id`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	defer rows.Close()

	tags := []Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	return tags, nil
}

// GetTag retrieves one tag.
func (s *SQLiteStore) GetTag(ctx context.Context, id int64) (Tag, error) {
	t, err := scanTag(s.db.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Tag{}, ErrTagNotFound
	}
	if err != nil {
		return Tag{}, fmt.Errorf("querying tag %d: %w", id, err)
	}
	return t, nil
}

// CreateTag inserts t. The owning connection must exist.
func (s *SQLiteStore) CreateTag(ctx context.Context, t *Tag) error {
	if err := ValidateTag(*t); err != nil {
		return err
	}
	if _, err := s.GetConnection(ctx, t.ConnectionID); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (connection_id, tag_name, node_id, unit, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ConnectionID, t.Name, t.NodeID, t.Unit, now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting tag: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading tag id: %w", err)
	}
	t.ID, t.CreatedAt = id, now
	return nil
}

// DeleteTag removes a tag and the rules triggered by it.
func (s *SQLiteStore) DeleteTag(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting tag %d: %w", id, err)
	}
	return requireRow(res, ErrTagNotFound)
}

// ListRules returns every rule, newest first.
func (s *SQLiteStore) ListRules(ctx context.Context) ([]Rule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY id DESC`)
}

// ListEnabledRulesForTag returns the enabled rules triggered by tagID.
func (s *SQLiteStore) ListEnabledRulesForTag(ctx context.Context, tagID int64) ([]Rule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules WHERE tag_id = ? AND enabled = 1 ORDER BY id`, tagID)
}

// GetRule retrieves one rule.
func (s *SQLiteStore) GetRule(ctx context.Context, id int64) (Rule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Rule{}, ErrRuleNotFound
	}
	if err != nil {
		return Rule{}, fmt.Errorf("querying rule %d: %w", id, err)
	}
	return r, nil
}

// CreateRule inserts r and fills in its id.
func (s *SQLiteStore) CreateRule(ctx context.Context, r *Rule) error {
	if err := checkRuleRefs(ctx, *r, s.GetTag); err != nil {
		return err
	}
	logicType, static, target, offset := logicColumns(r.Logic)
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (name, tag_id, logic_type, operator, static_value, target_tag_id,
			offset_value, severity, message, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.TagID, logicType, string(r.Operator), static, target,
		offset, string(r.Severity), r.Message, boolToInt(r.Enabled), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading rule id: %w", err)
	}
	r.ID, r.CreatedAt, r.RawLogicType = id, now, logicType
	return nil
}

// UpdateRule replaces every field of r.
func (s *SQLiteStore) UpdateRule(ctx context.Context, r *Rule) error {
	if err := checkRuleRefs(ctx, *r, s.GetTag); err != nil {
		return err
	}
	logicType, static, target, offset := logicColumns(r.Logic)
	res, err := s.db.ExecContext(ctx, `
		UPDATE rules SET name = ?, tag_id = ?, logic_type = ?, operator = ?, static_value = ?,
			target_tag_id = ?, offset_value = ?, severity = ?, message = ?, enabled = ?
		WHERE id = ?`,
		r.Name, r.TagID, logicType, string(r.Operator), static, target,
		offset, string(r.Severity), r.Message, boolToInt(r.Enabled), r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating rule %d: %w", r.ID, err)
	}
	r.RawLogicType = logicType
	return requireRow(res, ErrRuleNotFound)
}

// DeleteRule removes a rule.
func (s *SQLiteStore) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rule %d: %w", id, err)
	}
	return requireRow(res, ErrRuleNotFound)
}

func (s *SQLiteStore) queryConnections(ctx context.Context, query string, args ...any) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	conns := []Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connections: %w", err)
	}
	return conns, nil
}

func (s *SQLiteStore) queryRules(ctx context.Context, query string, args ...any) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	rules := []Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (Connection, error) {
	var c Connection
	var enabled, status int
	var created, updated string
	if err := row.Scan(&c.ID, &c.Name, &c.EndpointURL, &c.Description, &enabled, &status, &created, &updated); err != nil {
		return Connection{}, err
	}
	c.Enabled, c.Status = enabled != 0, status != 0
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

func scanTag(row rowScanner) (Tag, error) {
	var t Tag
	var created string
	if err := row.Scan(&t.ID, &t.ConnectionID, &t.Name, &t.NodeID, &t.Unit, &created); err != nil {
		return Tag{}, err
	}
	t.CreatedAt = parseTime(created)
	return t, nil
}

func scanRule(row rowScanner) (Rule, error) {
	var r Rule
	var tagID sql.NullInt64
	var static *float64
	var target *int64
	var offset *float64
	var operator, severity, created string
	var enabled int
	if err := row.Scan(&r.ID, &r.Name, &tagID, &r.RawLogicType, &operator, &static, &target,
		&offset, &severity, &r.Message, &enabled, &created); err != nil {
		return Rule{}, err
	}
	r.TagID = tagID.Int64
	r.Operator = Operator(operator)
	r.Severity = Severity(severity)
	r.Enabled = enabled != 0
	r.CreatedAt = parseTime(created)
	// Malformed logic is kept as nil for the evaluator to report.
	r.Logic, _ = DecodeLogic(r.RawLogicType, static, target, offset) //nolint:errcheck // nil Logic carries the failure
	return r, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
