package pagination

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
)

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, DefaultLimit, NormalizeLimit(-3))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 7, NormalizeLimit(7))
}

func TestCursorRoundTripNormalizesToUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	original := Cursor{SortAt: time.Date(2026, 3, 1, 15, 0, 0, 123, ist), ID: uuid.New()}

	parsed, err := ParseCursor(EncodeCursor(original))
	require.NoError(t, err)
	require.True(t, parsed.SortAt.Equal(original.SortAt))
	require.Equal(t, time.UTC, parsed.SortAt.Location())
	require.Equal(t, original.ID, parsed.ID)
}

func TestParseCursorBlankIsFirstPage(t *testing.T) {
	parsed, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, parsed)
}

func TestParseCursorRejections(t *testing.T) {
	for name, token := range map[string]string{
		"not base64":   "not-a-cursor!!",
		"not json":     base64.RawURLEncoding.EncodeToString([]byte("2026|x")),
		"missing id":   base64.RawURLEncoding.EncodeToString([]byte(`{"t":"2026-03-01T00:00:00Z"}`)),
		"missing time": base64.RawURLEncoding.EncodeToString([]byte(`{"id":"` + uuid.NewString() + `"}`)),
	} {
		_, err := ParseCursor(token)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), name)
	}
}

func TestTrimReturnsNextCursorOnlyWhenMoreRows(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]Cursor, 0, 3)
	for i := 0; i < 3; i++ {
		rows = append(rows, Cursor{SortAt: base.Add(time.Duration(i) * time.Minute), ID: uuid.New()})
	}
	identity := func(c Cursor) Cursor { return c }

	page, next := Trim(rows, 2, identity)
	require.Len(t, page, 2)
	parsed, err := ParseCursor(next)
	require.NoError(t, err)
	require.Equal(t, rows[1].ID, parsed.ID)

	page, next = Trim(rows, 3, identity)
	require.Len(t, page, 3)
	require.Empty(t, next)
}

type row struct {
	ID       uuid.UUID `gorm:"primaryKey"`
	PlacedAt time.Time
}

func TestNewestFirstWalksAllPagesOnce(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:pages_%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		// two rows share each timestamp so the id tie breaker matters
		require.NoError(t, db.Create(&row{ID: uuid.New(), PlacedAt: base.Add(time.Duration(i/2) * time.Hour)}).Error)
	}

	seen := map[uuid.UUID]bool{}
	var cursor *Cursor
	pages := 0
	for {
		var rows []row
		require.NoError(t, db.Scopes(NewestFirst("placed_at", cursor, 2)).Find(&rows).Error)
		page, next := Trim(rows, 2, func(r row) Cursor { return Cursor{SortAt: r.PlacedAt, ID: r.ID} })
		pages++
		for _, r := range page {
			require.False(t, seen[r.ID], "row repeated")
			seen[r.ID] = true
		}
		if next == "" {
			break
		}
		cursor, err = ParseCursor(next)
		require.NoError(t, err)
	}
	require.Len(t, seen, 5)
	require.Equal(t, 3, pages)
}
