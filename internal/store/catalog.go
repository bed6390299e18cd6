package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tracklane/catalog-importer/internal/store/model"
	"gorm.io/gorm"
)

// Catalog writes the domain entities an import produces. The entities are
// owned by the host schema; the import session never holds foreign keys to
// them, so a partially-completed import leaves valid, queryable rows.
type Catalog interface {
	InitialMigration() error
	FindArtistByName(ctx context.Context, orgID, name string) (*model.Artist, error)
	CreateArtist(ctx context.Context, artist model.Artist) (*model.Artist, error)
	CreateRelease(ctx context.Context, release model.Release) (*model.Release, error)
	CreateTrack(ctx context.Context, track model.Track) (*model.Track, error)
	CreatePlatformRequest(ctx context.Context, request model.PlatformRequest) (*model.PlatformRequest, error)
	ListArtists(ctx context.Context, orgID string) ([]model.Artist, error)
	ListReleases(ctx context.Context, artistID uuid.UUID) ([]model.Release, error)
	ListTracks(ctx context.Context, releaseID uuid.UUID) ([]model.Track, error)
	ListPlatformRequests(ctx context.Context, releaseID uuid.UUID) ([]model.PlatformRequest, error)
}

type CatalogStore struct {
	db *gorm.DB
}

// Make sure we conform to Catalog interface
var _ Catalog = (*CatalogStore)(nil)

func NewCatalogStore(db *gorm.DB) Catalog {
	return &CatalogStore{db: db}
}

func (s *CatalogStore) InitialMigration() error {
	return s.db.AutoMigrate(
		&model.Artist{},
		&model.Release{},
		&model.Track{},
		&model.PlatformRequest{},
	)
}

// FindArtistByName does a case-insensitive exact match. No fuzzy matching
// happens in the import hot path.
func (s *CatalogStore) FindArtistByName(ctx context.Context, orgID, name string) (*model.Artist, error) {
	var artist model.Artist
	result := s.getDB(ctx).
		Where("org_id = ? AND LOWER(name) = LOWER(?)", orgID, name).
		First(&artist)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, classifyError("querying artist", result.Error)
	}
	return &artist, nil
}

func (s *CatalogStore) CreateArtist(ctx context.Context, artist model.Artist) (*model.Artist, error) {
	if result := s.getDB(ctx).Create(&artist); result.Error != nil {
		return nil, classifyError("creating artist", result.Error)
	}
	return &artist, nil
}

func (s *CatalogStore) CreateRelease(ctx context.Context, release model.Release) (*model.Release, error) {
	if result := s.getDB(ctx).Create(&release); result.Error != nil {
		return nil, classifyError("creating release", result.Error)
	}
	return &release, nil
}

func (s *CatalogStore) CreateTrack(ctx context.Context, track model.Track) (*model.Track, error) {
	if result := s.getDB(ctx).Create(&track); result.Error != nil {
		return nil, classifyError("creating track", result.Error)
	}
	return &track, nil
}

func (s *CatalogStore) CreatePlatformRequest(ctx context.Context, request model.PlatformRequest) (*model.PlatformRequest, error) {
	if result := s.getDB(ctx).Create(&request); result.Error != nil {
		return nil, classifyError("creating platform request", result.Error)
	}
	return &request, nil
}

func (s *CatalogStore) ListArtists(ctx context.Context, orgID string) ([]model.Artist, error) {
	var artists []model.Artist
	result := s.getDB(ctx).Where("org_id = ?", orgID).Order("name").Find(&artists)
	if result.Error != nil {
		return nil, result.Error
	}
	return artists, nil
}

func (s *CatalogStore) ListReleases(ctx context.Context, artistID uuid.UUID) ([]model.Release, error) {
	var releases []model.Release
	result := s.getDB(ctx).Where("artist_id = ?", artistID).Order("created_at").Find(&releases)
	if result.Error != nil {
		return nil, result.Error
	}
	return releases, nil
}

func (s *CatalogStore) ListTracks(ctx context.Context, releaseID uuid.UUID) ([]model.Track, error) {
	var tracks []model.Track
	result := s.getDB(ctx).Where("release_id = ?", releaseID).Order("track_number").Find(&tracks)
	if result.Error != nil {
		return nil, result.Error
	}
	return tracks, nil
}

func (s *CatalogStore) ListPlatformRequests(ctx context.Context, releaseID uuid.UUID) ([]model.PlatformRequest, error) {
	var requests []model.PlatformRequest
	result := s.getDB(ctx).Where("release_id = ?", releaseID).Order("platform").Find(&requests)
	if result.Error != nil {
		return nil, result.Error
	}
	return requests, nil
}

func (s *CatalogStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}

// classifyError separates the two failure classes the import pipeline cares
// about: unique-constraint collisions stay row-scoped, connectivity loss
// aborts the whole session.
func classifyError(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, gorm.ErrInvalidDB):
		return fmt.Errorf("%s: %v: %w", op, err, ErrStorageUnavailable)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is closed") || strings.Contains(msg, "connection refused") {
		return fmt.Errorf("%s: %v: %w", op, err, ErrStorageUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}
