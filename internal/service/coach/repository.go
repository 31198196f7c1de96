package coach

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

var (
	ErrDuplicateRecord = errors.New("analysis record already exists")
	ErrRecordNotFound  = errors.New("analysis record not found")
)

const (
	KindPosition   = "position"
	KindComparison = "comparison"
)

// AnalysisRecord is one persisted fact bundle. Facts holds the JSON encoding
// of the coachdto value named by Kind.
type AnalysisRecord struct {
	ID        string
	Kind      string
	FEN       string
	BestMove  string
	UserMove  string
	DeltaCP   int
	Facts     []byte
	CreatedAt time.Time
}

type Repository interface {
	InsertAnalysis(ctx context.Context, rec *AnalysisRecord) error
	GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error)
	RecentAnalyses(ctx context.Context, fen string, limit int) ([]*AnalysisRecord, error)
}

const schema = `
	CREATE TABLE IF NOT EXISTS coach_analyses (
		id         UUID PRIMARY KEY,
		kind       TEXT NOT NULL,
		fen        TEXT NOT NULL,
		best_move  TEXT NOT NULL DEFAULT '',
		user_move  TEXT NOT NULL DEFAULT '',
		delta_cp   INTEGER NOT NULL DEFAULT 0,
		facts      JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS coach_analyses_fen_idx ON coach_analyses (fen, created_at DESC);`

type repository struct {
	db *sql.DB
}

// OpenRepository connects to Postgres and makes sure the coach_analyses table
// exists.
func OpenRepository(ctx context.Context, databaseURL string) (Repository, func() error, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(pctx, schema); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure coach_analyses: %w", err)
	}
	return NewRepository(db), db.Close, nil
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InsertAnalysis(ctx context.Context, rec *AnalysisRecord) error {
	if rec == nil {
		return fmt.Errorf("nil analysis record")
	}
	const query = `
		INSERT INTO coach_analyses (
			id,
			kind,
			fen,
			best_move,
			user_move,
			delta_cp,
			facts,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		ON CONFLICT (id) DO NOTHING`

	res, err := r.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.Kind,
		rec.FEN,
		rec.BestMove,
		rec.UserMove,
		rec.DeltaCP,
		rec.Facts,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateRecord
	}
	return nil
}

func (r *repository) GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error) {
	const query = `
		SELECT id, kind, fen, best_move, user_move, delta_cp, facts, created_at
		FROM coach_analyses
		WHERE id = $1`

	var rec AnalysisRecord
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Kind,
		&rec.FEN,
		&rec.BestMove,
		&rec.UserMove,
		&rec.DeltaCP,
		&rec.Facts,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select analysis: %w", err)
	}
	return &rec, nil
}

func (r *repository) RecentAnalyses(ctx context.Context, fen string, limit int) ([]*AnalysisRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT id, kind, fen, best_move, user_move, delta_cp, facts, created_at
		FROM coach_analyses
		WHERE fen = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, fen, limit)
	if err != nil {
		return nil, fmt.Errorf("select analyses: %w", err)
	}
	defer rows.Close()

	out := make([]*AnalysisRecord, 0, limit)
	for rows.Next() {
		var rec AnalysisRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Kind,
			&rec.FEN,
			&rec.BestMove,
			&rec.UserMove,
			&rec.DeltaCP,
			&rec.Facts,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return out, nil
}
