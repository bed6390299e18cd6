package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/tracklane/catalog-importer/internal/store/model"
)

// Submission-level target fields.
const (
	FieldArtistName   = "artist_name"
	FieldReleaseTitle = "release_title"
	FieldReleaseType  = "release_type"
	FieldGenre        = "genre"
	FieldLabel        = "label"
	FieldReleaseDate  = "release_date"
	FieldUPC          = "upc"
)

// PlatformFieldPrefix marks submission mappings that represent per-platform
// publishing columns. The suffix is the platform identifier.
const PlatformFieldPrefix = "platform:"

// songFieldVocabulary is the fixed set of song-level target fields, in
// priority order for ambiguous headers.
var songFieldVocabulary = []string{
	"name",
	"performer",
	"composer",
	"band",
	"producer",
	"studio",
	"label",
	"genre",
}

// submissionVocabulary maps normalized header text to submission target
// fields. Aliases cover the spellings seen in partner spreadsheets.
var submissionVocabulary = map[string]string{
	"artist":        FieldArtistName,
	"artist name":   FieldArtistName,
	"performer":     FieldArtistName,
	"release title": FieldReleaseTitle,
	"release name":  FieldReleaseTitle,
	"album title":   FieldReleaseTitle,
	"album":         FieldReleaseTitle,
	"title":         FieldReleaseTitle,
	"release type":  FieldReleaseType,
	"type":          FieldReleaseType,
	"genre":         FieldGenre,
	"label":         FieldLabel,
	"release date":  FieldReleaseDate,
	"date":          FieldReleaseDate,
	"upc":           FieldUPC,
	"barcode":       FieldUPC,

	"spotify":       PlatformFieldPrefix + "spotify",
	"apple music":   PlatformFieldPrefix + "apple_music",
	"apple":         PlatformFieldPrefix + "apple_music",
	"youtube music": PlatformFieldPrefix + "youtube_music",
	"youtube":       PlatformFieldPrefix + "youtube_music",
	"deezer":        PlatformFieldPrefix + "deezer",
	"tidal":         PlatformFieldPrefix + "tidal",
	"amazon music":  PlatformFieldPrefix + "amazon_music",
	"amazon":        PlatformFieldPrefix + "amazon_music",
}

var songHeaderPattern = regexp.MustCompile(`(?i)^song\s*(\d+)\b[\s\-_:]*(.*)$`)

// PreviewMapping derives a default column mapping from the header row. The
// result is advisory: the caller may override every assignment before the
// mapping is frozen into a session.
func PreviewMapping(header []string, sampleRows [][]string) []model.ColumnMapping {
	if len(header) == 0 {
		return []model.ColumnMapping{}
	}

	mappings := make([]model.ColumnMapping, 0, len(header))
	for _, column := range header {
		mappings = append(mappings, resolveColumn(column))
	}
	return mappings
}

func resolveColumn(column string) model.ColumnMapping {
	mapping := model.ColumnMapping{
		CSVColumn: column,
		FieldType: model.FieldTypeIgnore,
	}

	normalized := normalizeHeader(column)
	if normalized == "" {
		return mapping
	}

	if m := songHeaderPattern.FindStringSubmatch(normalized); m != nil {
		index, err := strconv.Atoi(m[1])
		if err != nil || index <= 0 {
			return mapping
		}
		mapping.FieldType = model.FieldTypeSong
		mapping.SongIndex = &index
		if target := matchSongField(m[2]); target != "" {
			mapping.TargetField = &target
		}
		return mapping
	}

	if target, ok := submissionVocabulary[normalized]; ok {
		mapping.FieldType = model.FieldTypeSubmission
		mapping.TargetField = &target
	}
	return mapping
}

// matchSongField maps the remainder of a "song N ..." header onto the song
// vocabulary. Exact and token matches win; otherwise the best fuzzy rank
// does. Returns "" when nothing plausible matches, leaving the column for
// manual assignment.
func matchSongField(remainder string) string {
	remainder = strings.TrimSpace(remainder)
	if remainder == "" {
		return ""
	}

	for _, word := range songFieldVocabulary {
		if remainder == word {
			return word
		}
	}
	for _, token := range strings.Fields(remainder) {
		for _, word := range songFieldVocabulary {
			if token == word {
				return word
			}
		}
	}

	ranks := fuzzy.RankFindNormalizedFold(remainder, songFieldVocabulary)
	if len(ranks) == 0 {
		return ""
	}
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	return best.Target
}

func normalizeHeader(header string) string {
	header = strings.ToLower(strings.TrimSpace(header))
	header = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(header)
	return strings.Join(strings.Fields(header), " ")
}

// ValidateMapping enforces the invariants a session's frozen mapping must
// hold: song columns carry a positive song index, (songIndex, targetField)
// pairs are unique, and submission target fields are unique.
func ValidateMapping(mappings []model.ColumnMapping) error {
	songFields := map[string]struct{}{}
	submissionFields := map[string]struct{}{}

	for _, m := range mappings {
		switch m.FieldType {
		case model.FieldTypeIgnore:
			continue
		case model.FieldTypeSubmission:
			if m.TargetField == nil || *m.TargetField == "" {
				return NewErrInvalidMapping(fmt.Sprintf("column %q: submission mapping requires a target field", m.CSVColumn))
			}
			if _, dup := submissionFields[*m.TargetField]; dup {
				return NewErrInvalidMapping(fmt.Sprintf("column %q: duplicate submission field %q", m.CSVColumn, *m.TargetField))
			}
			submissionFields[*m.TargetField] = struct{}{}
		case model.FieldTypeSong:
			if m.SongIndex == nil || *m.SongIndex <= 0 {
				return NewErrInvalidMapping(fmt.Sprintf("column %q: song mapping requires a positive song index", m.CSVColumn))
			}
			if m.TargetField == nil || *m.TargetField == "" {
				return NewErrInvalidMapping(fmt.Sprintf("column %q: song mapping requires a target field", m.CSVColumn))
			}
			key := fmt.Sprintf("%d/%s", *m.SongIndex, *m.TargetField)
			if _, dup := songFields[key]; dup {
				return NewErrInvalidMapping(fmt.Sprintf("column %q: duplicate song field %q for song %d", m.CSVColumn, *m.TargetField, *m.SongIndex))
			}
			songFields[key] = struct{}{}
		default:
			return NewErrInvalidMapping(fmt.Sprintf("column %q: unknown field type %q", m.CSVColumn, m.FieldType))
		}
	}
	return nil
}
