// Package fraud scores scan attempts against a ticket's recent scan
// history. It is purely computational: no clocks beyond the scans it is
// handed, no storage access. The engine treats its output as advisory and
// never lets it affect admission.
package fraud

import (
	"fmt"
	"math"
	"time"
)

// Flag types
const (
	FlagRapidScans          = "RAPID_SCANS"
	FlagFrequentScans       = "FREQUENT_SCANS"
	FlagMultipleLocations   = "MULTIPLE_LOCATIONS"
	FlagMultipleDevices     = "MULTIPLE_DEVICES"
	FlagUnusualHours        = "UNUSUAL_HOURS"
	FlagHighFrequency       = "HIGH_FREQUENCY"
	FlagImpossibleFrequency = "IMPOSSIBLE_FREQUENCY"
	FlagImpossibleDistance  = "IMPOSSIBLE_DISTANCE"
)

// Severities
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Risk levels, least to most severe
const (
	RiskMinimal  = "minimal"
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Recommendations
const (
	RecommendAllow   = "allow"
	RecommendMonitor = "monitor"
	RecommendReview  = "review"
	RecommendBlock   = "block"
)

// Scan is one scan observation, detached from storage
type Scan struct {
	Time      time.Time
	Location  *string
	DeviceID  *string
	Latitude  *float64
	Longitude *float64
}

// Flag is one triggered heuristic with its evidence
type Flag struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Evidence string `json:"evidence"`
}

// Report is the analyzer's verdict
type Report struct {
	Flags          []Flag `json:"flags"`
	RiskScore      int    `json:"risk_score"`
	RiskLevel      string `json:"risk_level"`
	Recommendation string `json:"recommendation"`
}

// Thresholds make every heuristic tunable. Zero values are replaced by
// the defaults.
type Thresholds struct {
	RapidScanGap        time.Duration
	FrequentScanGap     time.Duration
	RecentSample        int
	NightStartHour      int
	NightEndHour        int
	HighFrequencyMean   time.Duration
	ImpossibleMinGap    time.Duration
	ImpossibleDistanceM float64

	WeightRapid              int
	WeightFrequent           int
	WeightMultipleLocations  int
	WeightMultipleDevices    int
	WeightUnusualHours       int
	WeightHighFrequency      int
	WeightImpossibleFreq     int
	WeightImpossibleDistance int
}

// DefaultThresholds returns the production tuning
func DefaultThresholds() Thresholds {
	return Thresholds{
		RapidScanGap:        10 * time.Second,
		FrequentScanGap:     30 * time.Second,
		RecentSample:        5,
		NightStartHour:      22,
		NightEndHour:        6,
		HighFrequencyMean:   60 * time.Second,
		ImpossibleMinGap:    5 * time.Second,
		ImpossibleDistanceM: 10_000,

		WeightRapid:              30,
		WeightFrequent:           15,
		WeightMultipleLocations:  25,
		WeightMultipleDevices:    20,
		WeightUnusualHours:       10,
		WeightHighFrequency:      25,
		WeightImpossibleFreq:     50,
		WeightImpossibleDistance: 40,
	}
}

// Analyze evaluates the current scan against the ticket's recent history.
// recent is ordered newest first. Analyze is a pure function: identical
// inputs always yield identical reports.
func Analyze(current Scan, recent []Scan, th Thresholds) Report {
	def := DefaultThresholds()
	if th == (Thresholds{}) {
		th = def
	}
	if th.RecentSample <= 0 {
		th.RecentSample = def.RecentSample
	}

	var flags []Flag
	score := 0

	addFlag := func(flagType, severity, evidence string, weight int) {
		flags = append(flags, Flag{Type: flagType, Severity: severity, Evidence: evidence})
		score += weight
	}

	// Gap to the most recent prior scan
	if len(recent) > 0 {
		gap := current.Time.Sub(recent[0].Time)
		switch {
		case gap < th.RapidScanGap:
			addFlag(FlagRapidScans, SeverityHigh,
				fmt.Sprintf("scanned %.1fs after previous scan", gap.Seconds()), th.WeightRapid)
		case gap < th.FrequentScanGap:
			addFlag(FlagFrequentScans, SeverityMedium,
				fmt.Sprintf("scanned %.1fs after previous scan", gap.Seconds()), th.WeightFrequent)
		}
	}

	// Distinct locations and devices across the sample window
	sample := recent
	if len(sample) > th.RecentSample {
		sample = sample[:th.RecentSample]
	}

	locations := map[string]struct{}{}
	devices := map[string]struct{}{}
	if current.Location != nil {
		locations[*current.Location] = struct{}{}
	}
	if current.DeviceID != nil {
		devices[*current.DeviceID] = struct{}{}
	}
	for _, s := range sample {
		if s.Location != nil {
			locations[*s.Location] = struct{}{}
		}
		if s.DeviceID != nil {
			devices[*s.DeviceID] = struct{}{}
		}
	}

	if len(locations) > 1 {
		addFlag(FlagMultipleLocations, SeverityMedium,
			fmt.Sprintf("%d distinct locations in last %d scans", len(locations), th.RecentSample),
			th.WeightMultipleLocations)
	}
	if len(devices) > 1 {
		addFlag(FlagMultipleDevices, SeverityMedium,
			fmt.Sprintf("%d distinct devices in last %d scans", len(devices), th.RecentSample),
			th.WeightMultipleDevices)
	}

	// Time of day
	hour := current.Time.Hour()
	if hour < th.NightEndHour || hour > th.NightStartHour {
		addFlag(FlagUnusualHours, SeverityLow,
			fmt.Sprintf("scan at hour %02d", hour), th.WeightUnusualHours)
	}

	// Inter-scan statistics across the whole known history, current included
	timeline := make([]Scan, 0, len(recent)+1)
	timeline = append(timeline, current)
	timeline = append(timeline, recent...)

	if len(timeline) >= 2 {
		var totalGap time.Duration
		minGap := time.Duration(math.MaxInt64)
		for i := 0; i < len(timeline)-1; i++ {
			gap := timeline[i].Time.Sub(timeline[i+1].Time)
			if gap < 0 {
				gap = -gap
			}
			totalGap += gap
			if gap < minGap {
				minGap = gap
			}
		}
		mean := totalGap / time.Duration(len(timeline)-1)

		if mean < th.HighFrequencyMean {
			addFlag(FlagHighFrequency, SeverityMedium,
				fmt.Sprintf("mean inter-scan gap %.1fs", mean.Seconds()), th.WeightHighFrequency)
		}
		if minGap < th.ImpossibleMinGap {
			addFlag(FlagImpossibleFrequency, SeverityHigh,
				fmt.Sprintf("minimum inter-scan gap %.1fs", minGap.Seconds()), th.WeightImpossibleFreq)
		}
	}

	// Distance between consecutive geotagged scans
	for i := 0; i < len(timeline)-1; i++ {
		a, b := timeline[i], timeline[i+1]
		if a.Latitude == nil || a.Longitude == nil || b.Latitude == nil || b.Longitude == nil {
			continue
		}
		distance := haversineMeters(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
		if distance > th.ImpossibleDistanceM {
			addFlag(FlagImpossibleDistance, SeverityHigh,
				fmt.Sprintf("consecutive scans %.0fm apart", distance), th.WeightImpossibleDistance)
			break
		}
	}

	level := riskLevel(score)
	return Report{
		Flags:          flags,
		RiskScore:      score,
		RiskLevel:      level,
		Recommendation: recommendation(level),
	}
}

func riskLevel(score int) string {
	switch {
	case score < 5:
		return RiskMinimal
	case score < 15:
		return RiskLow
	case score < 30:
		return RiskMedium
	case score < 50:
		return RiskHigh
	default:
		return RiskCritical
	}
}

func recommendation(level string) string {
	switch level {
	case RiskMinimal, RiskLow:
		return RecommendAllow
	case RiskMedium:
		return RecommendMonitor
	case RiskHigh:
		return RecommendReview
	default:
		return RecommendBlock
	}
}

const earthRadiusM = 6_371_000

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}
