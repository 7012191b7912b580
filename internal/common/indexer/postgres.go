package indexer

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/project-tktt/avature-crawler/internal/domain"
)

// PostgresIndexer indexes job records to PostgreSQL
type PostgresIndexer struct {
	db        *sql.DB
	tableName string
}

// NewPostgresIndexer creates a new PostgreSQL indexer
func NewPostgresIndexer(connStr string, tableName string) (*PostgresIndexer, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	indexer := &PostgresIndexer{
		db:        db,
		tableName: tableName,
	}

	if err := indexer.ensureTable(); err != nil {
		return nil, fmt.Errorf("ensure table: %w", err)
	}

	return indexer, nil
}

// ensureTable creates the records table if it doesn't exist
func (i *PostgresIndexer) ensureTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			job_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			application_url TEXT,
			location TEXT,
			date_posted TEXT,
			company TEXT,
			source_url TEXT,
			scraped_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, i.tableName)

	_, err := i.db.Exec(query)
	return err
}

// Index indexes a single record
func (i *PostgresIndexer) Index(ctx context.Context, rec *domain.JobRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			job_id, title, description, application_url, location,
			date_posted, company, source_url, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			application_url = EXCLUDED.application_url,
			location = EXCLUDED.location,
			date_posted = EXCLUDED.date_posted,
			company = EXCLUDED.company,
			source_url = EXCLUDED.source_url,
			scraped_at = EXCLUDED.scraped_at
	`, i.tableName)

	_, err := i.db.ExecContext(ctx, query,
		rec.JobID, rec.Title, rec.Description, rec.ApplicationURL, rec.Location,
		rec.DatePosted, rec.Company, rec.SourceURL, rec.ScrapedAt,
	)

	return err
}

// BulkIndex indexes multiple records at once using a transaction
func (i *PostgresIndexer) BulkIndex(ctx context.Context, recs []*domain.JobRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (
			job_id, title, description, application_url, location,
			date_posted, company, source_url, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			application_url = EXCLUDED.application_url,
			location = EXCLUDED.location,
			date_posted = EXCLUDED.date_posted,
			company = EXCLUDED.company,
			source_url = EXCLUDED.source_url,
			scraped_at = EXCLUDED.scraped_at
	`, i.tableName)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx,
			rec.JobID, rec.Title, rec.Description, rec.ApplicationURL, rec.Location,
			rec.DatePosted, rec.Company, rec.SourceURL, rec.ScrapedAt,
		); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.JobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Close closes the database connection
func (i *PostgresIndexer) Close() error {
	return i.db.Close()
}
