package audit

import (
	"context"
	"embed"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type sqliteClient struct {
	db *sqlx.DB
}

func NewSQLiteClient(dbPath string) (*sqliteClient, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "create audit db directory")
	}
	dbx, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open audit db")
	}
	dbx.SetMaxOpenConns(1)

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationsFS,
		Root:       "migrations",
	}
	n, err := migrate.Exec(dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		return nil, errors.Wrap(err, "migrate audit db")
	}
	if n > 0 {
		log.Infof("applied %d audit migrations", n)
	}
	return &sqliteClient{db: dbx}, nil
}

func (c *sqliteClient) InsertAction(ctx context.Context, action *Action) error {
	query := `
		INSERT INTO moderation_actions (id, user_id, chat_id, message_id, decision, tier, score, reputation, signals, created_at)
		VALUES (:id, :user_id, :chat_id, :message_id, :decision, :tier, :score, :reputation, :signals, :created_at)
	`
	_, err := c.db.NamedExecContext(ctx, query, action)
	return err
}

func (c *sqliteClient) RecentActions(ctx context.Context, chatID int64, limit int) ([]*Action, error) {
	actions := []*Action{}
	err := c.db.SelectContext(ctx, &actions,
		"SELECT id, user_id, chat_id, message_id, decision, tier, score, reputation, signals, created_at FROM moderation_actions WHERE chat_id=? ORDER BY created_at DESC LIMIT ?",
		chatID, limit,
	)
	return actions, err
}

func (c *sqliteClient) Close() error {
	return c.db.Close()
}
