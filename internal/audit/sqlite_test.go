package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestClient(t *testing.T) *sqliteClient {
	t.Helper()
	client, err := NewSQLiteClient(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestActionIndexesExistAfterMigrations(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	rows, err := client.db.QueryContext(context.Background(), "PRAGMA index_list('moderation_actions')")
	if err != nil {
		t.Fatalf("query index_list: %v", err)
	}
	defer rows.Close()

	indexes := make(map[string]struct{})
	for rows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			t.Fatalf("scan index row: %v", err)
		}
		indexes[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate index rows: %v", err)
	}

	required := []string{"idx_moderation_actions_user", "idx_moderation_actions_chat"}
	for _, name := range required {
		if _, ok := indexes[name]; !ok {
			t.Fatalf("required index %q not found", name)
		}
	}
}

func TestInsertAndListActions(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	actions := []*Action{
		{ID: "a1", UserID: 1, ChatID: 100, MessageID: "m1", Decision: "warn", Tier: "normal", Score: 6, CreatedAt: base},
		{ID: "a2", UserID: 1, ChatID: 100, MessageID: "m2", Decision: "delete", Tier: "suspicious", Score: 11, Signals: "TG_LINK_SPAM,TG_CAPS", CreatedAt: base.Add(time.Second)},
		{ID: "a3", UserID: 2, ChatID: 200, MessageID: "m3", Decision: "allow", Tier: "normal", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, action := range actions {
		if err := client.InsertAction(ctx, action); err != nil {
			t.Fatalf("insert action %s: %v", action.ID, err)
		}
	}

	recent, err := client.RecentActions(ctx, 100, 10)
	if err != nil {
		t.Fatalf("recent actions: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d actions for chat 100, want 2", len(recent))
	}
	if recent[0].ID != "a2" || recent[1].ID != "a1" {
		t.Fatalf("order = [%s %s], want newest first", recent[0].ID, recent[1].ID)
	}
	if recent[0].Signals != "TG_LINK_SPAM,TG_CAPS" {
		t.Fatalf("signals = %q, not preserved", recent[0].Signals)
	}
}

func TestJoinSignals(t *testing.T) {
	t.Parallel()

	if got := JoinSignals(nil); got != "" {
		t.Fatalf("JoinSignals(nil) = %q, want empty", got)
	}
	if got := JoinSignals([]string{"TG_FLOOD", "TG_BAN"}); got != "TG_FLOOD,TG_BAN" {
		t.Fatalf("JoinSignals = %q", got)
	}
}
