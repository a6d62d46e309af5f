package repositories

import (
	"math"
	"sort"
	"time"

	"weather-router/internal/models"
)

// BlockStep maps lead times up to UpTo hours onto a block size.
type BlockStep struct {
	UpTo  float64
	Hours int
}

// BlockTable is an ordered list of steps; lead times past the last step use its size.
type BlockTable []BlockStep

func (b BlockTable) Size(hoursAhead float64) int {
	for _, step := range b {
		if hoursAhead <= step.UpTo {
			return step.Hours
		}
	}
	return b[len(b)-1].Hours
}

// BlockGrid lays out [t, t+size) blocks from the hour containing start until end. Each
// block's size comes from the lead time of its own start.
func BlockGrid(start, end, now time.Time, size func(float64) int) []time.Time {
	var grid []time.Time
	for t := start.UTC().Truncate(time.Hour); t.Before(end); {
		grid = append(grid, t)
		bs := size(models.HoursAhead(now, t))
		if bs < 1 {
			bs = 1
		}
		t = t.Add(time.Duration(bs) * time.Hour)
	}
	return grid
}

// buildBlocks resamples native provider samples onto the block grid. A block takes every
// native sample overlapping it, weighted by overlap; blocks with no data are dropped.
func buildBlocks(native []models.WeatherData, start, end, now time.Time, size func(float64) int) []models.WeatherData {
	sort.SliceStable(native, func(i, j int) bool { return native[i].Time.Before(native[j].Time) })

	var out []models.WeatherData
	for _, t := range BlockGrid(start, end, now, size) {
		bs := time.Duration(size(models.HoursAhead(now, t))) * time.Hour
		if bs < time.Hour {
			bs = time.Hour
		}
		if block, ok := combine(native, t, t.Add(bs)); ok {
			out = append(out, block)
		}
	}
	return out
}

func combine(native []models.WeatherData, from, to time.Time) (models.WeatherData, bool) {
	block := models.WeatherData{Time: from, BlockDuration: to.Sub(from)}

	var (
		weight, temp, wind, hum, cloud float64
		thunder                        *float64
		codes                          []models.WeatherCode
		dirs                           []float64
	)

	for _, s := range native {
		if !s.Time.Before(to) {
			break
		}
		overlap := minTime(s.End(), to).Sub(maxTime(s.Time, from))
		if overlap <= 0 || s.BlockDuration <= 0 {
			continue
		}

		w := overlap.Hours()
		weight += w
		temp += s.Temperature * w
		wind += s.WindSpeed * w
		hum += s.Humidity * w
		cloud += s.CloudCover * w
		block.Precipitation += s.Precipitation * float64(overlap) / float64(s.BlockDuration)
		block.PrecipitationProbability = math.Max(block.PrecipitationProbability, s.PrecipitationProbability)
		if s.ThunderProbability != nil {
			v := *s.ThunderProbability
			if thunder != nil {
				v = math.Max(v, *thunder)
			}
			thunder = &v
		}
		codes = append(codes, s.WeatherCode)
		dirs = append(dirs, s.WindDirection)
	}

	if weight == 0 {
		return models.WeatherData{}, false
	}

	block.Temperature = round1(temp / weight)
	block.WindSpeed = round1(wind / weight)
	block.Humidity = round1(hum / weight)
	block.CloudCover = round1(cloud / weight)
	block.Precipitation = round1(block.Precipitation)
	block.ThunderProbability = thunder
	block.WeatherCode = models.MostSevere(codes...)
	block.WindDirection = dominantDirection(dirs)
	block.Clamp()

	return block, true
}

// dominantDirection returns the first direction of the most frequent 8-point sector.
// Ties go to the sector seen first.
func dominantDirection(dirs []float64) float64 {
	if len(dirs) == 0 {
		return 0
	}
	counts := make(map[string]int, len(dirs))
	for _, d := range dirs {
		counts[DegreesToCardinal(d)]++
	}
	best := dirs[0]
	for _, d := range dirs {
		if counts[DegreesToCardinal(d)] > counts[DegreesToCardinal(best)] {
			best = d
		}
	}
	return best
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
