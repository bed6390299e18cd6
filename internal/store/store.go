package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	ImportSession() ImportSession
	FailedRow() FailedRow
	Catalog() Catalog
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db            *gorm.DB
	importSession ImportSession
	failedRow     FailedRow
	catalog       Catalog
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:            db,
		importSession: NewImportSessionStore(db),
		failedRow:     NewFailedRowStore(db),
		catalog:       NewCatalogStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) ImportSession() ImportSession {
	return s.importSession
}

func (s *DataStore) FailedRow() FailedRow {
	return s.failedRow
}

func (s *DataStore) Catalog() Catalog {
	return s.catalog
}

func (s *DataStore) InitialMigration() error {
	if err := s.importSession.InitialMigration(); err != nil {
		return err
	}
	if err := s.failedRow.InitialMigration(); err != nil {
		return err
	}
	return s.catalog.InitialMigration()
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
