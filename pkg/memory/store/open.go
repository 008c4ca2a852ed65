package store

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures a snapshot backend.
type Config struct {
	Driver   string      `mapstructure:"driver" yaml:"driver"`
	Path     string      `mapstructure:"path" yaml:"path"`
	DSN      string      `mapstructure:"dsn" yaml:"dsn"`
	Database string      `mapstructure:"database" yaml:"database"`
	Graph    GraphConfig `mapstructure:"graph" yaml:"graph"`
}

// GraphConfig enables the Neo4j knowledge graph overlay when URI is set.
type GraphConfig struct {
	URI      string `mapstructure:"uri" yaml:"uri"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// Backend is a Source that owns resources.
type Backend interface {
	Source
	Close() error
}

// Open builds the backend named by cfg.Driver: json (default), sqlite,
// postgres, mongo or memory.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "json", "file":
		b, err = NewJSONFileStore(cfg.Path)
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		b, err = NewSQLiteStore(ctx, dsn)
	case "postgres", "postgresql", "pg":
		var s *PostgresStore
		if s, err = NewPostgresStore(ctx, cfg.DSN); err == nil {
			if err = s.CreateSchema(ctx); err != nil {
				s.Close()
			}
		}
		b = s
	case "mongo", "mongodb":
		var s *MongoStore
		if s, err = NewMongoStore(ctx, cfg.DSN, cfg.Database); err == nil {
			if err = s.CreateSchema(ctx); err != nil {
				s.Close()
			}
		}
		b = s
	case "memory", "inmemory":
		b = NewInMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Graph.URI == "" {
		return b, nil
	}
	g, err := NewKnowledgeGraph(ctx, b, cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password, cfg.Graph.Database)
	if err != nil {
		b.Close()
		return nil, err
	}
	return g, nil
}
