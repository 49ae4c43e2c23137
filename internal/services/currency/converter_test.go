package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/skinsync/internal/domain"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name     string
		price    domain.Price
		to       string
		expected string
	}{
		{
			name:     "dollar to ruble",
			price:    domain.NewPrice(decimal.NewFromInt(2), "$"),
			to:       "₽",
			expected: "190",
		},
		{
			name:     "dollar to euro",
			price:    domain.NewPrice(decimal.NewFromInt(10), "$"),
			to:       "€",
			expected: "9.2",
		},
		{
			name:     "ruble to dollar",
			price:    domain.NewPrice(decimal.NewFromInt(190), "₽"),
			to:       "$",
			expected: "2",
		},
		{
			name:     "yuan to yen through dollar",
			price:    domain.NewPrice(decimal.RequireFromString("7.10"), "¥CNY"),
			to:       "¥JPY",
			expected: "150",
		},
		{
			name:     "same currency",
			price:    domain.NewPrice(decimal.RequireFromString("3.33"), "€"),
			to:       "€",
			expected: "3.33",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.price, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.to, got.Currency)
			assert.True(t, decimal.RequireFromString(tt.expected).Equal(got.Amount), "got %s", got.Amount)
		})
	}
}

func TestConvert_SentinelsPassThrough(t *testing.T) {
	for _, p := range []domain.Price{domain.Unavailable(), domain.Pending()} {
		got, err := Convert(p, "₽")
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	// sentinels pass even for unknown currencies
	got, err := Convert(domain.Unavailable(), "XXX")
	require.NoError(t, err)
	assert.Equal(t, domain.PriceUnavailable, got.Status)
}

func TestConvert_UnknownCurrency(t *testing.T) {
	_, err := Convert(domain.NewPrice(decimal.NewFromInt(1), "$"), "XXX")
	assert.ErrorIs(t, err, ErrUnknownCurrency)

	_, err = Convert(domain.NewPrice(decimal.NewFromInt(1), "XXX"), "$")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestConvertQuote(t *testing.T) {
	q := domain.PriceQuote{
		Steam:    domain.NewPrice(decimal.NewFromInt(1), "$"),
		Market:   domain.Unavailable(),
		LisSkins: domain.NewPrice(decimal.NewFromInt(2), "$"),
	}
	got, err := ConvertQuote(q, "₽")
	require.NoError(t, err)
	assert.True(t, got.Steam.Amount.Equal(decimal.NewFromInt(95)))
	assert.Equal(t, domain.PriceUnavailable, got.Market.Status)
	assert.Equal(t, "190.00₽", Format(got.LisSkins))
}

func TestConvertHistory(t *testing.T) {
	h := domain.History{{Date: "d1", Price: decimal.NewFromInt(1)}, {Date: "d2", Price: decimal.NewFromInt(2)}}
	got, err := ConvertHistory(h, "€")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d2", got[1].Date)
	assert.True(t, got[1].Price.Equal(decimal.RequireFromString("1.84")))
	assert.True(t, h[0].Price.Equal(decimal.NewFromInt(1)), "input must not be modified")
}

func TestSupported(t *testing.T) {
	assert.Len(t, Supported(), 5)
	assert.True(t, IsSupported("¥CNY"))
	assert.False(t, IsSupported("£"))
}

func TestConvertPrediction(t *testing.T) {
	p := domain.Prediction{
		AnchorPrice: domain.NewPrice(decimal.NewFromInt(10), "$"),
		Horizon:     1,
		Points: []domain.PredictionPoint{
			{Date: "d1", PredictedPrice: decimal.NewFromInt(11), PredictedPctChange: decimal.NewFromInt(10)},
		},
	}

	got, err := ConvertPrediction(p, "¥JPY")
	require.NoError(t, err)
	assert.Equal(t, "1500.00¥JPY", got.AnchorPrice.String())
	assert.True(t, got.Points[0].PredictedPrice.Equal(decimal.NewFromInt(1650)))
	assert.True(t, got.Points[0].PredictedPctChange.Equal(decimal.NewFromInt(10)))
	assert.True(t, p.Points[0].PredictedPrice.Equal(decimal.NewFromInt(11)), "input must not be modified")
}

func TestConvertRecords(t *testing.T) {
	records := []domain.RecommendationRecord{{
		CurrentPrice:   domain.NewPrice(decimal.NewFromInt(2), "$"),
		PredictedPrice: domain.Unavailable(),
		OverallChange:  decimal.NewFromInt(5),
	}}

	got, err := ConvertRecords(records, "₽")
	require.NoError(t, err)
	assert.Equal(t, "190.00₽", got[0].CurrentPrice.String())
	assert.Equal(t, domain.PriceUnavailable, got[0].PredictedPrice.Status)

	_, err = ConvertRecords(records, "£")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}
