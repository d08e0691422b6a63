package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

type DBClient struct {
	DB  *sql.DB
	log zerolog.Logger
}

// NewPostgresDB opens the site-registry database. The registry is owned by
// the site-management service; this process only reads from it.
func NewPostgresDB(dbURL string, logger zerolog.Logger) (*DBClient, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	logger.Info().Msg("connected to PostgreSQL site registry")
	return &DBClient{DB: db, log: logger}, nil
}

func (c *DBClient) Close() {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.log.Error().Err(err).Msg("error closing PostgreSQL connection")
			return
		}
		c.log.Info().Msg("PostgreSQL connection closed")
	}
}
