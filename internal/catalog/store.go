package catalog

import "context"

// Source is the read-only view of the catalog that monitoring depends on.
type Source interface {
	ListEnabledConnections(ctx context.Context) ([]Connection, error)
	GetConnection(ctx context.Context, id int64) (Connection, error)
	ListTagsForConnection(ctx context.Context, connectionID int64) ([]Tag, error)
	ListEnabledRulesForTag(ctx context.Context, tagID int64) ([]Rule, error)
}

// Store is the full catalog including the writes made by the management API.
type Store interface {
	Source

	ListConnections(ctx context.Context) ([]Connection, error)
	CreateConnection(ctx context.Context, c *Connection) error
	UpdateConnection(ctx context.Context, c *Connection) error
	SetConnectionStatus(ctx context.Context, id int64, connected bool) error
	DeleteConnection(ctx context.Context, id int64) error

	GetTag(ctx context.Context, id int64) (Tag, error)
	CreateTag(ctx context.Context, t *Tag) error
	DeleteTag(ctx context.Context, id int64) error

	ListRules(ctx context.Context) ([]Rule, error)
	GetRule(ctx context.Context, id int64) (Rule, error)
	CreateRule(ctx context.Context, r *Rule) error
	UpdateRule(ctx context.Context, r *Rule) error
	DeleteRule(ctx context.Context, id int64) error

	HealthCheck(ctx context.Context) error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
