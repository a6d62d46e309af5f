package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-router/internal/models"
)

func TestBlockTables(t *testing.T) {
	tests := []struct {
		name   string
		table  BlockTable
		ahead  float64
		expect int
	}{
		{"nordic near", nordicBlocks, 0, 1},
		{"nordic 48h", nordicBlocks, 48, 1},
		{"nordic day 3", nordicBlocks, 49, 6},
		{"nordic day 10", nordicBlocks, 240, 6},
		{"nordic beyond", nordicBlocks, 241, 24},
		{"iberian day 3", iberianBlocks, 72, 6},
		{"iberian day 5", iberianBlocks, 97, 24},
		{"atlantic day 5", atlanticBlocks, 120, 6},
		{"atlantic day 6", atlanticBlocks, 121, 24},
		{"global past", globalBlocks, -3, 1},
		{"global far", globalBlocks, 500, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.table.Size(tt.ahead))
		})
	}
}

func TestBlockTables_NonDecreasing(t *testing.T) {
	for _, table := range []BlockTable{nordicBlocks, iberianBlocks, atlanticBlocks, globalBlocks} {
		prev := 0
		for h := -10.0; h < 400; h += 0.5 {
			size := table.Size(h)
			assert.GreaterOrEqual(t, size, prev)
			prev = size
		}
	}
}

func TestBlockGrid_SwitchesAtThreshold(t *testing.T) {
	grid := BlockGrid(testNow, testNow.Add(72*time.Hour), testNow, globalBlocks.Size)

	start := testNow.Truncate(time.Hour)
	require.Len(t, grid, 53)
	assert.Equal(t, start, grid[0])
	assert.Equal(t, start.Add(48*time.Hour), grid[48])
	assert.Equal(t, start.Add(49*time.Hour), grid[49])
	assert.Equal(t, 6*time.Hour, grid[50].Sub(grid[49]))

	for i := 1; i < len(grid); i++ {
		assert.True(t, grid[i].After(grid[i-1]))
	}
	assert.True(t, grid[len(grid)-1].Before(testNow.Add(72*time.Hour)))
}

func hourly(from time.Time, n int, mutate func(i int, w *models.WeatherData)) []models.WeatherData {
	out := make([]models.WeatherData, n)
	for i := range out {
		out[i] = models.WeatherData{
			Time:          from.Add(time.Duration(i) * time.Hour),
			BlockDuration: time.Hour,
			WeatherCode:   models.Cloudy,
		}
		if mutate != nil {
			mutate(i, &out[i])
		}
	}
	return out
}

func TestBuildBlocks_CombinesSamples(t *testing.T) {
	from := time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)
	native := hourly(from, 6, func(i int, w *models.WeatherData) {
		w.Temperature = float64(i + 1)
		w.Precipitation = 1
		w.PrecipitationProbability = float64(10 * (i + 1))
		w.WindDirection = 90
		if i == 3 {
			w.WeatherCode = models.Rain
			w.ThunderProbability = models.Float(15)
		}
	})

	blocks := buildBlocks(native, from, from.Add(6*time.Hour), testNow, func(float64) int { return 6 })

	require.Len(t, blocks, 1)
	b := blocks[0]
	assert.Equal(t, from, b.Time)
	assert.Equal(t, 6*time.Hour, b.BlockDuration)
	assert.Equal(t, 3.5, b.Temperature)
	assert.Equal(t, 6.0, b.Precipitation)
	assert.Equal(t, 60.0, b.PrecipitationProbability)
	assert.Equal(t, models.Rain, b.WeatherCode)
	require.NotNil(t, b.ThunderProbability)
	assert.Equal(t, 15.0, *b.ThunderProbability)
	assert.Equal(t, 90.0, b.WindDirection)
}

func TestBuildBlocks_SplitsLongSamples(t *testing.T) {
	from := time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)
	native := []models.WeatherData{{
		Time:          from,
		BlockDuration: 6 * time.Hour,
		Temperature:   10,
		Precipitation: 6,
		WeatherCode:   models.Rain,
	}}

	blocks := buildBlocks(native, from, from.Add(6*time.Hour), testNow, func(float64) int { return 1 })

	require.Len(t, blocks, 6)
	for _, b := range blocks {
		assert.Equal(t, 1.0, b.Precipitation)
		assert.Equal(t, 10.0, b.Temperature)
		assert.Nil(t, b.ThunderProbability)
	}
}

func TestBuildBlocks_DropsEmptyBlocks(t *testing.T) {
	from := time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)
	native := hourly(from, 2, nil)
	native = append(native, hourly(from.Add(4*time.Hour), 1, nil)...)

	blocks := buildBlocks(native, from, from.Add(6*time.Hour), testNow, func(float64) int { return 1 })

	require.Len(t, blocks, 3)
	assert.Equal(t, from.Add(4*time.Hour), blocks[2].Time)
}

func TestDominantDirection(t *testing.T) {
	assert.Equal(t, 0.0, dominantDirection(nil))
	// N and E tie; N was seen first
	assert.Equal(t, 10.0, dominantDirection([]float64{10, 100, 95, 350}))
	assert.Equal(t, 10.0, dominantDirection([]float64{100, 10, 5}))
	assert.Equal(t, 180.0, dominantDirection([]float64{180}))
}
