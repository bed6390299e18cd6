package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Release types.
const (
	ReleaseTypeSingle = "single"
	ReleaseTypeEP     = "ep"
	ReleaseTypeAlbum  = "album"
)

// Platform request statuses. Imported rows only ever create stubs in the
// requested state; decisions happen elsewhere in the dashboard.
const (
	PlatformRequestStatusRequested = "requested"
	PlatformRequestStatusApproved  = "approved"
	PlatformRequestStatusRejected  = "rejected"
)

// Artist rows are matched by case-insensitive exact name within an org.
// Fuzzy duplicate detection is a separate offline concern.
type Artist struct {
	ID        uuid.UUID `gorm:"primaryKey;"`
	Name      string    `gorm:"not null;uniqueIndex:artists_org_id_name_idx"`
	OrgID     string    `gorm:"not null;uniqueIndex:artists_org_id_name_idx"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt *time.Time
}

type Release struct {
	ID        uuid.UUID `gorm:"primaryKey;"`
	ArtistID  uuid.UUID `gorm:"not null;index:releases_artist_idx"`
	Title     string    `gorm:"not null"`
	Type      string    `gorm:"not null;type:VARCHAR(50)"`
	Genre     *string
	Label     *string
	UPC       *string
	ReleaseDate *string
	OrgID     string    `gorm:"not null"`
	Tracks    []Track   `gorm:"foreignKey:ReleaseID;references:ID;constraint:OnDelete:CASCADE;"`
	Requests  []PlatformRequest `gorm:"foreignKey:ReleaseID;references:ID;constraint:OnDelete:CASCADE;"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt *time.Time
}

type Track struct {
	ID          uuid.UUID `gorm:"primaryKey;"`
	ReleaseID   uuid.UUID `gorm:"not null;index:tracks_release_idx"`
	TrackNumber int       `gorm:"not null"`
	Name        string    `gorm:"not null"`
	Performer   *string
	Composer    *string
	Band        *string
	Producer    *string
	Studio      *string
	Label       *string
	Genre       *string
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
}

type PlatformRequest struct {
	ID        uuid.UUID `gorm:"primaryKey;"`
	ReleaseID uuid.UUID `gorm:"not null;index:platform_requests_release_idx"`
	Platform  string    `gorm:"not null;type:VARCHAR(100)"`
	Status    string    `gorm:"not null;type:VARCHAR(50)"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

func (a Artist) String() string {
	val, _ := json.Marshal(a)
	return string(val)
}

func (r Release) String() string {
	val, _ := json.Marshal(r)
	return string(val)
}
