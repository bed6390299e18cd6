package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tracklane/catalog-importer/internal/auth"
	"github.com/tracklane/catalog-importer/internal/store"
	"github.com/tracklane/catalog-importer/internal/store/model"
)

// RowError is a row-scoped translation failure. It is recorded in the
// failure ledger and never halts the batch.
type RowError struct {
	RowNumber int
	Category  string
	Message   string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.RowNumber, e.Message)
}

func newRowError(rowNumber int, category, format string, args ...any) *RowError {
	return &RowError{
		RowNumber: rowNumber,
		Category:  category,
		Message:   fmt.Sprintf(format, args...),
	}
}

// RowResult holds the entities produced by one successfully translated row.
type RowResult struct {
	Artist           *model.Artist
	ArtistCreated    bool
	Release          *model.Release
	Tracks           []model.Track
	PlatformRequests []model.PlatformRequest
}

// Translator converts one mapped CSV row into the artist, release, track
// and platform-request writes for that row.
type Translator struct {
	store              store.Store
	defaultReleaseType string
}

func NewTranslator(store store.Store, defaultReleaseType string) *Translator {
	if defaultReleaseType == "" {
		defaultReleaseType = model.ReleaseTypeSingle
	}
	return &Translator{store: store, defaultReleaseType: defaultReleaseType}
}

// Translate runs the row's artist, release, track and request writes as one
// unit: everything commits or nothing does. A returned *RowError means the
// row was rejected and rolled back; any other error is session-scoped and
// must abort the import.
func (t *Translator) Translate(ctx context.Context, user auth.User, rowNumber int, row []string, mappings []model.ColumnMapping) (*RowResult, error) {
	txCtx, err := t.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting row transaction: %w", err)
	}

	result, err := t.translate(txCtx, user, rowNumber, row, mappings)
	if err != nil {
		if _, rberr := store.Rollback(txCtx); rberr != nil {
			return nil, fmt.Errorf("rolling back row %d: %w", rowNumber, rberr)
		}
		return nil, err
	}

	if _, err := store.Commit(txCtx); err != nil {
		return nil, fmt.Errorf("committing row %d: %w", rowNumber, err)
	}
	return result, nil
}

func (t *Translator) translate(ctx context.Context, user auth.User, rowNumber int, row []string, mappings []model.ColumnMapping) (*RowResult, error) {
	submission := map[string]string{}
	songs := map[int]map[string]string{}

	for i, m := range mappings {
		if i >= len(row) {
			break
		}
		value := strings.TrimSpace(row[i])
		switch m.FieldType {
		case model.FieldTypeSubmission:
			if m.TargetField != nil && value != "" {
				submission[*m.TargetField] = value
			}
		case model.FieldTypeSong:
			if m.SongIndex == nil || m.TargetField == nil {
				continue
			}
			group, ok := songs[*m.SongIndex]
			if !ok {
				group = map[string]string{}
				songs[*m.SongIndex] = group
			}
			if value != "" {
				group[*m.TargetField] = value
			}
		}
	}

	artistName := submission[FieldArtistName]
	if artistName == "" {
		return nil, newRowError(rowNumber, model.ErrorCategoryValidation, "missing artist name")
	}
	releaseTitle := submission[FieldReleaseTitle]
	if releaseTitle == "" {
		return nil, newRowError(rowNumber, model.ErrorCategoryValidation, "missing release title")
	}

	result := &RowResult{}

	artist, err := t.resolveArtist(ctx, user, artistName)
	if err != nil {
		return nil, t.wrapStoreError(rowNumber, err)
	}
	result.Artist = artist.Artist
	result.ArtistCreated = artist.Created

	release := model.Release{
		ID:       uuid.New(),
		ArtistID: artist.Artist.ID,
		Title:    releaseTitle,
		Type:     t.releaseType(submission[FieldReleaseType]),
		OrgID:    user.Organization,
	}
	if v, ok := submission[FieldGenre]; ok {
		release.Genre = &v
	}
	if v, ok := submission[FieldLabel]; ok {
		release.Label = &v
	}
	if v, ok := submission[FieldUPC]; ok {
		release.UPC = &v
	}
	if v, ok := submission[FieldReleaseDate]; ok {
		release.ReleaseDate = &v
	}

	created, err := t.store.Catalog().CreateRelease(ctx, release)
	if err != nil {
		return nil, t.wrapStoreError(rowNumber, err)
	}
	result.Release = created

	tracks, err := t.createTracks(ctx, created.ID, songs, rowNumber)
	if err != nil {
		return nil, err
	}
	result.Tracks = tracks

	requests, err := t.createPlatformRequests(ctx, created.ID, submission, rowNumber)
	if err != nil {
		return nil, err
	}
	result.PlatformRequests = requests

	return result, nil
}

type resolvedArtist struct {
	Artist  *model.Artist
	Created bool
}

// resolveArtist matches by case-insensitive exact name and creates when no
// match exists. Fuzzy duplicate merging never happens here.
func (t *Translator) resolveArtist(ctx context.Context, user auth.User, name string) (*resolvedArtist, error) {
	artist, err := t.store.Catalog().FindArtistByName(ctx, user.Organization, name)
	if err == nil {
		return &resolvedArtist{Artist: artist}, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	created, err := t.store.Catalog().CreateArtist(ctx, model.Artist{
		ID:    uuid.New(),
		Name:  name,
		OrgID: user.Organization,
	})
	if err != nil {
		return nil, err
	}
	return &resolvedArtist{Artist: created, Created: true}, nil
}

func (t *Translator) createTracks(ctx context.Context, releaseID uuid.UUID, songs map[int]map[string]string, rowNumber int) ([]model.Track, error) {
	indexes := make([]int, 0, len(songs))
	for idx, group := range songs {
		if len(group) == 0 {
			continue
		}
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	tracks := make([]model.Track, 0, len(indexes))
	for position, idx := range indexes {
		group := songs[idx]
		track := model.Track{
			ID:          uuid.New(),
			ReleaseID:   releaseID,
			TrackNumber: position + 1,
			Name:        group["name"],
		}
		setOptional(&track.Performer, group, "performer")
		setOptional(&track.Composer, group, "composer")
		setOptional(&track.Band, group, "band")
		setOptional(&track.Producer, group, "producer")
		setOptional(&track.Studio, group, "studio")
		setOptional(&track.Label, group, "label")
		setOptional(&track.Genre, group, "genre")

		created, err := t.store.Catalog().CreateTrack(ctx, track)
		if err != nil {
			return nil, t.wrapStoreError(rowNumber, err)
		}
		tracks = append(tracks, *created)
	}
	return tracks, nil
}

func (t *Translator) createPlatformRequests(ctx context.Context, releaseID uuid.UUID, submission map[string]string, rowNumber int) ([]model.PlatformRequest, error) {
	platforms := make([]string, 0)
	for field, value := range submission {
		if !strings.HasPrefix(field, PlatformFieldPrefix) {
			continue
		}
		if isTruthy(value) {
			platforms = append(platforms, strings.TrimPrefix(field, PlatformFieldPrefix))
		}
	}
	sort.Strings(platforms)

	requests := make([]model.PlatformRequest, 0, len(platforms))
	for _, platform := range platforms {
		created, err := t.store.Catalog().CreatePlatformRequest(ctx, model.PlatformRequest{
			ID:        uuid.New(),
			ReleaseID: releaseID,
			Platform:  platform,
			Status:    model.PlatformRequestStatusRequested,
		})
		if err != nil {
			return nil, t.wrapStoreError(rowNumber, err)
		}
		requests = append(requests, *created)
	}
	return requests, nil
}

func (t *Translator) releaseType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case model.ReleaseTypeSingle:
		return model.ReleaseTypeSingle
	case model.ReleaseTypeEP, "e.p.", "extended play":
		return model.ReleaseTypeEP
	case model.ReleaseTypeAlbum, "lp", "full length":
		return model.ReleaseTypeAlbum
	}
	return t.defaultReleaseType
}

// wrapStoreError keeps duplicate-key collisions row-scoped and lets
// storage-unavailability propagate to abort the session.
func (t *Translator) wrapStoreError(rowNumber int, err error) error {
	switch {
	case errors.Is(err, store.ErrStorageUnavailable):
		return err
	case errors.Is(err, store.ErrDuplicateKey):
		return newRowError(rowNumber, model.ErrorCategoryDuplicate, "%v", err)
	default:
		return newRowError(rowNumber, model.ErrorCategoryStorage, "%v", err)
	}
}

func setOptional(dst **string, group map[string]string, key string) {
	if v, ok := group[key]; ok && v != "" {
		value := v
		*dst = &value
	}
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "x", "✓":
		return true
	}
	return false
}
