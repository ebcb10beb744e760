package catalog

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/nerrad567/tagwatch-core/internal/infrastructure/postgres"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect to db: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := pool.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return NewPostgresStore(pool)
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)

	conn := seedConnection(t, s, "pg line", true)
	t.Cleanup(func() { s.DeleteConnection(context.Background(), conn.ID) }) //nolint:errcheck // Test cleanup

	in := seedTag(t, s, conn.ID, "InTemp")
	out := seedTag(t, s, conn.ID, "OutTemp")

	r := Rule{Name: "Delta", TagID: in.ID, Operator: OpGreater,
		Logic: CompareLogic{TargetTagID: out.ID, Offset: 5}, Severity: SeverityWarning, Enabled: true}
	if err := s.CreateRule(ctx, &r); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	rules, err := s.ListEnabledRulesForTag(ctx, in.ID)
	if err != nil {
		t.Fatalf("ListEnabledRulesForTag() error = %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	if l, ok := rules[0].Logic.(CompareLogic); !ok || l.TargetTagID != out.ID || l.Offset != 5 {
		t.Errorf("Logic = %#v", rules[0].Logic)
	}

	if err := s.SetConnectionStatus(ctx, conn.ID, true); err != nil {
		t.Fatalf("SetConnectionStatus() error = %v", err)
	}
	got, err := s.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection() error = %v", err)
	}
	if !got.Status {
		t.Error("Status = false after SetConnectionStatus(true)")
	}

	if err := s.DeleteRule(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
	if _, err := s.GetRule(ctx, r.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetRule() after delete error = %v", err)
	}
}
