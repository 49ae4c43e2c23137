package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/xuri/excelize/v2"
)

func TestWriteXLSX(t *testing.T) {
	up := domain.RecommendationRecord{
		Item:           domain.Item{AppID: "730", MarketHashName: "AK-47 | Redline (Field-Tested)", Name: "AK-47 | Redline"},
		CurrentPrice:   domain.NewPrice(decimal.NewFromInt(10), "$"),
		PredictedPrice: domain.NewPrice(decimal.NewFromInt(12), "$"),
		OverallChange:  decimal.NewFromInt(20),
	}
	down := domain.RecommendationRecord{
		Item:           domain.Item{AppID: "570", MarketHashName: "Arcana"},
		CurrentPrice:   domain.NewPrice(decimal.NewFromInt(4), "$"),
		PredictedPrice: domain.Unavailable(),
		OverallChange:  decimal.NewFromInt(-5),
	}
	snap := domain.RecommendationSnapshot{
		ID:        "run-1",
		Digest:    domain.Digest{TopGainers: []domain.RecommendationRecord{up}, TopLosers: []domain.RecommendationRecord{down}},
		All:       []domain.RecommendationRecord{down, up},
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, snap, "₽"))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetAll, SheetDigest}, f.GetSheetList())

	rows, err := f.GetRows(SheetAll)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Market hash name", rows[0][1])
	assert.Equal(t, "Arcana", rows[1][2])
	assert.Equal(t, "380", rows[1][3])
	assert.Equal(t, "N/A", rows[1][4])
	assert.Equal(t, "avoid", rows[1][6])
	assert.Equal(t, "AK-47 | Redline", rows[2][2])

	digest, err := f.GetRows(SheetDigest)
	require.NoError(t, err)
	require.Len(t, digest, 3)
	assert.Equal(t, "buy", digest[1][6])
	assert.Equal(t, "1140", digest[1][4])
}

func TestWriteXLSX_UnknownCurrency(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf, domain.RecommendationSnapshot{All: []domain.RecommendationRecord{{
		CurrentPrice: domain.NewPrice(decimal.NewFromInt(1), "$"),
	}}}, "£")
	assert.Error(t, err)
}
