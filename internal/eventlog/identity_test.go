package eventlog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EduardoMirandaz/sabrinator/internal/model"
)

func TestStableEventID_KnownValue(t *testing.T) {
	t.Parallel()

	ev := model.ChangeEvent{
		BoxID: 1,
		Before: model.Snapshot{
			Count:     5,
			Timestamp: "2025-03-01T08:00:00.000000-03:00",
		},
		After: model.Snapshot{
			Count:     3,
			Timestamp: "2025-03-01T08:00:11.000000-03:00",
			ImagePath: model.StringPtr("processed/20250301_080011_000000.jpg"),
		},
	}

	// Hash computed by the encoder that produced the ids already on disk.
	assert.Equal(t, "3957ddc1795beaa799b3b7b2", StableEventID(ev))
}

func TestStableEventID_NilFieldsHashAsNull(t *testing.T) {
	t.Parallel()

	ev := model.ChangeEvent{
		BoxID:  2,
		Before: model.Snapshot{Count: 0},
		After: model.Snapshot{
			Count:     12,
			Timestamp: "2025-03-02T09:00:00.000000-03:00",
		},
	}

	assert.Equal(t, "b4680310b70075c9abe47334", StableEventID(ev))
}

func TestStableEventID_IgnoresAuditFields(t *testing.T) {
	t.Parallel()

	base := model.ChangeEvent{
		BoxID:  1,
		Before: model.Snapshot{Count: 5, Timestamp: "2025-03-01T08:00:00.000000-03:00"},
		After:  model.Snapshot{Count: 3, Timestamp: "2025-03-01T08:00:11.000000-03:00"},
	}
	verified := base
	verified.EggTakerVerified = true
	verified.TakerName = model.StringPtr("gustavo")
	verified.VerifiedByUser = model.StringPtr("gustavo")
	verified.VerificationTimestamp = model.StringPtr("2025-03-01T09:00:00.000000-03:00")
	verified.MistakeFlag = true

	assert.Equal(t, StableEventID(base), StableEventID(verified))
}

func TestStableEventID_UsesImageBasenameOnly(t *testing.T) {
	t.Parallel()

	a := model.ChangeEvent{
		BoxID: 1,
		After: model.Snapshot{Count: 3, ImagePath: model.StringPtr("processed/shot.jpg")},
	}
	b := a
	b.After.ImagePath = model.StringPtr("/srv/other/dir/shot.jpg")

	assert.Equal(t, StableEventID(a), StableEventID(b))
}

func TestLegacyEventID_KnownValue(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"before": {"count": 5, "timestamp": "2025-03-01T08:00:00.000000-03:00", "image_path": null},
		"after": {"count": 3, "timestamp": "2025-03-01T08:00:11.000000-03:00", "image_path": "processed/20250301_080011_000000.jpg"},
		"delta": -2,
		"box_id": 1
	}`)

	assert.Equal(t, "58b793418ecc051c27c2d9eb", LegacyEventID(raw))
}

func TestLegacyEventID_PreservesNumberLiterals(t *testing.T) {
	t.Parallel()

	// 1.50 and 1.5 are different byte sequences, so different ids.
	a := LegacyEventID(json.RawMessage(`{"delta": 1.50}`))
	b := LegacyEventID(json.RawMessage(`{"delta": 1.5}`))

	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	assert.NotEqual(t, a, b)
}

func TestLegacyEventID_InvalidJSON(t *testing.T) {
	t.Parallel()

	assert.Empty(t, LegacyEventID(json.RawMessage(`{not json`)))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	ev := model.ChangeEvent{
		BoxID:  1,
		Before: model.Snapshot{Count: 5, Timestamp: "2025-03-01T08:00:00.000000-03:00"},
		After: model.Snapshot{
			Count:     3,
			Timestamp: "2025-03-01T08:00:11.000000-03:00",
			ImagePath: model.StringPtr("processed/shot.jpg"),
		},
	}

	norm := Normalize(ev)

	assert.Equal(t, StableEventID(ev), norm.EventID)
	require.NotNil(t, norm.After.ImageURL)
	assert.Equal(t, "/images/shot.jpg", *norm.After.ImageURL)
	assert.Nil(t, norm.Before.ImageURL)
}

func TestNormalize_KeepsStoredEventID(t *testing.T) {
	t.Parallel()

	ev := model.ChangeEvent{EventID: "abc123", BoxID: 1}

	assert.Equal(t, "abc123", Normalize(ev).EventID)
}

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()

	tz := time.FixedZone("", -3*3600)
	ts := time.Date(2025, 3, 1, 8, 0, 11, 123456000, tz)

	assert.Equal(t, "2025-03-01T08:00:11.123456-03:00", FormatTimestamp(ts))
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tz := time.FixedZone("", -3*3600)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "with offset",
			input: "2025-03-01T08:00:11.123456-03:00",
			want:  time.Date(2025, 3, 1, 8, 0, 11, 123456000, tz),
		},
		{
			name:  "offsetless in local zone",
			input: "2025-03-01T08:00:11",
			want:  time.Date(2025, 3, 1, 8, 0, 11, 0, tz),
		},
		{
			name:  "date only",
			input: "2025-03-01",
			want:  time.Date(2025, 3, 1, 0, 0, 0, 0, tz),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input, tz)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}

	_, err := ParseTimestamp("yesterday", tz)
	assert.Error(t, err)
}

func TestTimestampsSortLexicographically(t *testing.T) {
	t.Parallel()

	tz := time.FixedZone("", -3*3600)
	earlier := FormatTimestamp(time.Date(2025, 3, 1, 8, 0, 0, 0, tz))
	later := FormatTimestamp(time.Date(2025, 3, 1, 8, 0, 0, 1000, tz))

	assert.Less(t, earlier, later)
}
