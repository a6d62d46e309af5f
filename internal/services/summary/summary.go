package summary

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-router/internal/models"
	"weather-router/internal/repositories"
)

const (
	// annotations are shown only above this probability, in percent
	annotationThreshold = 5.0

	dayLayout  = "Mon 02 "
	timeLayout = "15:04"
)

// Summarizer condenses samples into one line per display period.
type Summarizer struct {
	loc       *time.Location
	blockSize func(hoursAhead float64) int
	clock     clockwork.Clock
}

func NewSummarizer(loc *time.Location, blockSize func(hoursAhead float64) int, clock clockwork.Clock) *Summarizer {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Summarizer{
		loc:       loc,
		blockSize: blockSize,
		clock:     clock,
	}
}

// Period is one printed range with its aggregated values.
type Period struct {
	Start                    time.Time
	End                      time.Time
	Temperature              float64
	WindSpeed                float64
	WindDirection            string
	PrecipitationProbability float64
	Precipitation            float64
	ThunderProbability       float64
	WeatherCode              models.WeatherCode

	samples []models.WeatherData
}

func (p Period) hourly() bool {
	return p.End.Sub(p.Start) <= time.Hour
}

// Periods groups samples onto the block grid of [start, end) and merges adjacent multi-hour
// periods that read the same.
func (s *Summarizer) Periods(samples []models.WeatherData, start, end time.Time) []Period {
	return s.PeriodsAt(samples, start, end, s.clock.Now())
}

// PeriodsAt is Periods with the block grid anchored at now, the instant the samples were
// blocked against.
func (s *Summarizer) PeriodsAt(samples []models.WeatherData, start, end, now time.Time) []Period {
	var periods []Period
	for _, t := range repositories.BlockGrid(start, end, now, s.blockSize) {
		size := s.blockSize(models.HoursAhead(now, t))
		if size < 1 {
			size = 1
		}
		p := Period{Start: t, End: t.Add(time.Duration(size) * time.Hour)}
		for _, sample := range samples {
			if sample.Time.Before(p.End) && sample.End().After(p.Start) {
				p.samples = append(p.samples, sample)
			}
		}
		if len(p.samples) == 0 {
			continue
		}
		periods = append(periods, aggregate(p))
	}

	return merge(periods)
}

func merge(periods []Period) []Period {
	var out []Period
	for _, p := range periods {
		if n := len(out); n > 0 {
			last := out[n-1]
			if !last.hourly() && !p.hourly() && last.End.Equal(p.Start) && last.WeatherCode == p.WeatherCode {
				last.End = p.End
				last.samples = append(last.samples, p.samples...)
				out[n-1] = aggregate(last)
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func aggregate(p Period) Period {
	var temp, wind float64
	var codes []models.WeatherCode
	var dirs []string
	counts := make(map[string]int)

	p.Precipitation, p.PrecipitationProbability, p.ThunderProbability = 0, 0, 0
	for _, s := range p.samples {
		temp += s.Temperature
		wind += s.WindSpeed
		p.Precipitation += s.Precipitation
		p.PrecipitationProbability = math.Max(p.PrecipitationProbability, s.PrecipitationProbability)
		p.ThunderProbability = math.Max(p.ThunderProbability, s.Thunder())
		codes = append(codes, s.WeatherCode)

		d := repositories.DegreesToCardinal(s.WindDirection)
		dirs = append(dirs, d)
		counts[d]++
	}

	n := float64(len(p.samples))
	p.Temperature = temp / n
	p.WindSpeed = wind / n
	p.WeatherCode = models.MostSevere(codes...)

	p.WindDirection = dirs[0]
	for _, d := range dirs {
		if counts[d] > counts[p.WindDirection] {
			p.WindDirection = d
		}
	}

	return p
}

// Summarize renders the periods of [start, end), one per line. Each day's first line carries
// the date.
func (s *Summarizer) Summarize(samples []models.WeatherData, start, end time.Time) string {
	return s.SummarizeAt(samples, start, end, s.clock.Now())
}

func (s *Summarizer) SummarizeAt(samples []models.WeatherData, start, end, now time.Time) string {
	var (
		lines   []string
		lastDay string
	)

	for _, p := range s.PeriodsAt(samples, start, end, now) {
		var b strings.Builder

		from := p.Start.In(s.loc)
		if day := from.Format("2006-01-02"); day != lastDay {
			b.WriteString(from.Format(dayLayout))
			lastDay = day
		}
		b.WriteString(from.Format(timeLayout))
		if !p.hourly() {
			b.WriteString("-" + p.End.In(s.loc).Format(timeLayout))
		}

		fmt.Fprintf(&b, " %s %.0f°C %.0f m/s %s", p.WeatherCode.Emoji(), p.Temperature, p.WindSpeed, p.WindDirection)

		if p.PrecipitationProbability > annotationThreshold {
			fmt.Fprintf(&b, " 💧%.0f%%", p.PrecipitationProbability)
			if p.Precipitation > 0 {
				fmt.Fprintf(&b, " %.1fmm", p.Precipitation)
			}
		}
		if p.ThunderProbability > annotationThreshold {
			fmt.Fprintf(&b, " ⚡%.0f%%", p.ThunderProbability)
		}

		lines = append(lines, b.String())
	}

	return strings.Join(lines, "\n")
}
