package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelkar/aria/backend/models"
)

func entryAt(msg string, ts time.Time) models.ChatEntry {
	return models.ChatEntry{Sender: models.SenderUser, Message: msg, Timestamp: ts}
}

// Day buckets arrive in arbitrary Find order; the flattened transcript must
// still come out in timestamp order.
func TestFlattenDaysSortsAcrossDays(t *testing.T) {
	day1 := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)

	chatDays := []models.ChatDay{
		{
			ID:     models.ChatDayID("user-1", day2),
			UserID: "user-1",
			Entries: []models.ChatEntry{
				entryAt("third", day2),
				entryAt("fourth", day2.Add(time.Hour)),
			},
		},
		{
			ID:     models.ChatDayID("user-1", day1),
			UserID: "user-1",
			Entries: []models.ChatEntry{
				entryAt("first", day1),
				entryAt("second", day1.Add(time.Hour)),
			},
		},
	}

	flat := FlattenDays(chatDays)

	require.Len(t, flat, 4)
	assert.Equal(t, "first", flat[0].Message)
	assert.Equal(t, "second", flat[1].Message)
	assert.Equal(t, "third", flat[2].Message)
	assert.Equal(t, "fourth", flat[3].Message)
}

// A stable sort keeps bucket order for entries sharing a timestamp.
func TestFlattenDaysStableOnEqualTimestamps(t *testing.T) {
	ts := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	chatDays := []models.ChatDay{
		{Entries: []models.ChatEntry{entryAt("a", ts), entryAt("b", ts)}},
		{Entries: []models.ChatEntry{entryAt("c", ts)}},
	}

	flat := FlattenDays(chatDays)

	require.Len(t, flat, 3)
	assert.Equal(t, "a", flat[0].Message)
	assert.Equal(t, "b", flat[1].Message)
	assert.Equal(t, "c", flat[2].Message)
}

func TestFlattenDaysEmpty(t *testing.T) {
	assert.Empty(t, FlattenDays(nil))
	assert.Empty(t, FlattenDays([]models.ChatDay{{}}))
}

func TestChatDayID(t *testing.T) {
	ts := time.Date(2026, 8, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "user-1Chat08-01-2026", models.ChatDayID("user-1", ts))

	// Day buckets follow UTC: a timestamp late in a western zone lands on the
	// UTC day.
	est := time.FixedZone("EST", -5*3600)
	late := time.Date(2026, 8, 1, 22, 0, 0, 0, est)
	assert.Equal(t, "user-1Chat08-02-2026", models.ChatDayID("user-1", late))
}
