package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceRowRoundTrip(t *testing.T) {
	distances := []model.Distance{
		{Label: "50 mile", Date: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), StartTime: "06:00"},
		{Label: "25 mile", Date: time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC), StartTime: ""},
	}
	rows := toDistanceRows(distances)
	raw, err := json.Marshal(rows)
	require.NoError(t, err)

	decoded, err := decodeDistances(raw)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, "50 mile", decoded[0].Label)
	assert.Equal(t, "06:00", decoded[0].StartTime)
	assert.True(t, decoded[0].Date.Equal(distances[0].Date))
	assert.Equal(t, "", decoded[1].StartTime)
}

func TestJudgeRowRoundTrip(t *testing.T) {
	judges := []model.Judge{{Role: "head vet", Name: "Dr. Smith"}}
	rows := toJudgeRows(judges)
	raw, err := json.Marshal(rows)
	require.NoError(t, err)

	decoded, err := decodeJudges(raw)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, "head vet", decoded[0].Role)
	assert.Equal(t, "Dr. Smith", decoded[0].Name)
}

func TestDecodeDistances_EmptyInputIsNilNotError(t *testing.T) {
	decoded, err := decodeDistances(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestParseDate_EmptyStringIsZeroTime(t *testing.T) {
	parsed, err := parseDate("")
	require.NoError(t, err)
	assert.True(t, parsed.IsZero())
}
