package mocks

import (
	"github.com/Traviscatt/picknroll-sub000/internal/dal"
	"github.com/Traviscatt/picknroll-sub000/internal/logger"
)

// MockPostgresDAL stands in for Postgres with SQLite during local development
type MockPostgresDAL struct {
	*dal.SQLiteDAL
}

// NewMockPostgresDAL creates a mock Postgres DAL using SQLite
func NewMockPostgresDAL(sqliteFile string) (*MockPostgresDAL, error) {
	logger.Info("Using MOCK Postgres (SQLite) for local development", "file", sqliteFile)

	sqliteDAL, err := dal.NewSQLiteDAL(sqliteFile)
	if err != nil {
		return nil, err
	}

	return &MockPostgresDAL{SQLiteDAL: sqliteDAL}, nil
}
