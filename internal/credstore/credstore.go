// Package credstore manages the on-disk WhatsApp credential store.
//
// The store is a directory owned entirely by whatsmeow's sqlstore; this
// package only knows how to open it (creating it on first use) and how to
// wipe it wholesale when the session must be re-paired.
package credstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	// SQLite driver without CGO
	_ "modernc.org/sqlite"
)

const dbFile = "whatsmeow.db"

// Store wraps the credential directory.
type Store struct {
	dir string
	log zerolog.Logger

	mu        sync.Mutex
	container *sqlstore.Container
}

func New(dir string, log zerolog.Logger) *Store {
	return &Store{dir: dir, log: log.With().Str("component", "credstore").Logger()}
}

// Dir returns the credential directory path.
func (s *Store) Dir() string { return s.dir }

// Open returns the sqlstore container backing the credential directory,
// creating the directory and database on first use. The container is cached
// until the next Wipe.
func (s *Store) Open(ctx context.Context) (*sqlstore.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.container != nil {
		return s.container, nil
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		filepath.Join(s.dir, dbFile))
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLog.Zerolog(s.log))
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	s.container = container
	return container, nil
}

// Wipe deletes the credential directory and everything in it, then recreates
// it empty. The next Open starts from a blank store, forcing a new pairing.
func (s *Store) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.container = nil
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("wipe session dir: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("recreate session dir: %w", err)
	}
	s.log.Info().Str("dir", s.dir).Msg("credential store wiped")
	return nil
}
