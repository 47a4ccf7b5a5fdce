package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type conversationRow struct {
	bun.BaseModel `bun:"table:conversations"`

	AppName        string         `bun:"app_name,pk"`
	UserID         string         `bun:"user_id,pk"`
	ConversationID string         `bun:"conversation_id,pk"`
	Shared         map[string]any `bun:"shared,type:jsonb"`
	TurnCount      int            `bun:"turn_count"`
	Version        int64          `bun:"version"`
	CreatedAt      time.Time      `bun:"created_at"`
	UpdatedAt      time.Time      `bun:"updated_at"`
}

type turnRow struct {
	bun.BaseModel `bun:"table:conversation_turns"`

	AppName        string `bun:"app_name,pk"`
	UserID         string `bun:"user_id,pk"`
	ConversationID string `bun:"conversation_id,pk"`
	Seq            int    `bun:"seq,pk"`
	Turn           Turn   `bun:"turn,type:jsonb"`
}

// PostgresStore persists conversations in two tables. Turns are append-only rows.
type PostgresStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewPostgresStore(ctx context.Context, dsn string, opts ...StoreOption) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}

	return NewPostgresStoreWithDB(bun.NewDB(sqldb, pgdialect.New()), opts...)
}

func NewPostgresStoreWithDB(db *bun.DB, opts ...StoreOption) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, now: o.Now}, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key Key) (*ConversationState, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var row conversationRow
	if err := s.db.NewSelect().
		Model(&row).
		Where("app_name = ?", key.App).
		Where("user_id = ?", key.User).
		Where("conversation_id = ?", key.Conversation).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("select conversation: %w", err)
	}

	var turns []turnRow
	if err := s.db.NewSelect().
		Model(&turns).
		Where("app_name = ?", key.App).
		Where("user_id = ?", key.User).
		Where("conversation_id = ?", key.Conversation).
		Order("seq ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("select conversation turns: %w", err)
	}

	st := &ConversationState{
		Key:       key,
		Turns:     make([]Turn, 0, len(turns)),
		Shared:    row.Shared,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
		Version:   row.Version,
	}
	if st.Shared == nil {
		st.Shared = map[string]any{}
	}
	for _, t := range turns {
		st.Turns = append(st.Turns, t.Turn)
	}
	return st, nil
}

func (s *PostgresStore) Create(ctx context.Context, key Key, shared map[string]any) (*ConversationState, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	st := NewConversationState(key, shared, s.now())
	row := &conversationRow{
		AppName:        key.App,
		UserID:         key.User,
		ConversationID: key.Conversation,
		Shared:         st.Shared,
		Version:        st.Version,
		CreatedAt:      st.CreatedAt,
		UpdatedAt:      st.UpdatedAt,
	}

	res, err := s.db.NewInsert().Model(row).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrStateExists
	}
	return st, nil
}

func (s *PostgresStore) List(ctx context.Context, app, user string) ([]string, error) {
	if _, err := indexKey("", app, user); err != nil {
		return nil, err
	}

	ids := make([]string, 0)
	if err := s.db.NewSelect().
		Model((*conversationRow)(nil)).
		Column("conversation_id").
		Where("app_name = ?", app).
		Where("user_id = ?", user).
		Order("created_at ASC").
		Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.db.NewDelete().
		Model((*conversationRow)(nil)).
		Where("app_name = ?", key.App).
		Where("user_id = ?", key.User).
		Where("conversation_id = ?", key.Conversation).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, st *ConversationState) error {
	if st == nil {
		return ErrNilConversationState
	}
	if err := st.Validate(); err != nil {
		return err
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var row conversationRow
		err := tx.NewSelect().
			Model(&row).
			Where("app_name = ?", st.Key.App).
			Where("user_id = ?", st.Key.User).
			Where("conversation_id = ?", st.Key.Conversation).
			For("UPDATE").
			Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			row = conversationRow{
				AppName:        st.Key.App,
				UserID:         st.Key.User,
				ConversationID: st.Key.Conversation,
				Version:        st.Version,
				CreatedAt:      st.CreatedAt,
			}
			if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
				return fmt.Errorf("insert conversation: %w", err)
			}
		case err != nil:
			return fmt.Errorf("lock conversation: %w", err)
		case row.Version != st.Version:
			return ErrVersionConflict
		}

		if len(st.Turns) < row.TurnCount {
			return fmt.Errorf("%w: turns cannot be removed", ErrVersionConflict)
		}
		if fresh := st.Turns[row.TurnCount:]; len(fresh) > 0 {
			rows := make([]turnRow, 0, len(fresh))
			for i, t := range fresh {
				rows = append(rows, turnRow{
					AppName:        st.Key.App,
					UserID:         st.Key.User,
					ConversationID: st.Key.Conversation,
					Seq:            row.TurnCount + i,
					Turn:           t,
				})
			}
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				return fmt.Errorf("insert conversation turns: %w", err)
			}
		}

		shared, err := json.Marshal(st.Shared)
		if err != nil {
			return fmt.Errorf("marshal shared state: %w", err)
		}
		readVersion, err := prepareSave(st, s.now)
		if err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model((*conversationRow)(nil)).
			Set("shared = ?::jsonb", string(shared)).
			Set("turn_count = ?", len(st.Turns)).
			Set("version = ?", st.Version).
			Set("updated_at = ?", st.UpdatedAt).
			Where("app_name = ?", st.Key.App).
			Where("user_id = ?", st.Key.User).
			Where("conversation_id = ?", st.Key.Conversation).
			Exec(ctx)
		if err != nil {
			st.Version = readVersion
			return fmt.Errorf("update conversation: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
