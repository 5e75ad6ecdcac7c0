package fraud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// daytime avoids tripping the unusual-hours heuristic in tests that are
// not about it
var daytime = time.Date(2026, 6, 15, 14, 0, 0, 0, time.UTC)

func strPtr(s string) *string           { return &s }
func floatPtr(f float64) *float64       { return &f }
func at(offset time.Duration) time.Time { return daytime.Add(offset) }

func TestAnalyzeNoHistory(t *testing.T) {
	report := Analyze(Scan{Time: daytime}, nil, DefaultThresholds())

	assert.Empty(t, report.Flags)
	assert.Equal(t, 0, report.RiskScore)
	assert.Equal(t, RiskMinimal, report.RiskLevel)
	assert.Equal(t, RecommendAllow, report.Recommendation)
}

func TestAnalyzeRapidRescan(t *testing.T) {
	recent := []Scan{{Time: at(-3 * time.Second)}}

	report := Analyze(Scan{Time: daytime}, recent, DefaultThresholds())

	var types []string
	for _, f := range report.Flags {
		types = append(types, f.Type)
	}
	assert.Contains(t, types, FlagRapidScans)
	assert.Contains(t, types, FlagImpossibleFrequency)

	for _, f := range report.Flags {
		if f.Type == FlagRapidScans {
			assert.Equal(t, SeverityHigh, f.Severity)
		}
	}

	assert.GreaterOrEqual(t, report.RiskScore, 50)
	assert.Equal(t, RiskCritical, report.RiskLevel)
	assert.Equal(t, RecommendBlock, report.Recommendation)
}

func TestAnalyzeFrequentButNotRapid(t *testing.T) {
	recent := []Scan{{Time: at(-20 * time.Second)}}

	report := Analyze(Scan{Time: daytime}, recent, DefaultThresholds())

	assert.Len(t, report.Flags, 2)
	assert.Equal(t, FlagFrequentScans, report.Flags[0].Type)
	assert.Equal(t, FlagHighFrequency, report.Flags[1].Type)
	assert.Equal(t, 40, report.RiskScore)
	assert.Equal(t, RiskHigh, report.RiskLevel)
	assert.Equal(t, RecommendReview, report.Recommendation)
}

func TestAnalyzeImpossibleDistance(t *testing.T) {
	// Two prior scans roughly 20km apart within the last minute
	recent := []Scan{
		{Time: at(-30 * time.Second), Latitude: floatPtr(43.238949), Longitude: floatPtr(76.889709)},
		{Time: at(-55 * time.Second), Latitude: floatPtr(43.238949), Longitude: floatPtr(77.136)},
	}

	report := Analyze(Scan{Time: daytime}, recent, DefaultThresholds())

	var types []string
	for _, f := range report.Flags {
		types = append(types, f.Type)
	}
	assert.Contains(t, types, FlagImpossibleDistance)
	assert.Contains(t, types, FlagHighFrequency)
	assert.Equal(t, RiskCritical, report.RiskLevel)
	assert.Equal(t, RecommendBlock, report.Recommendation)
}

func TestAnalyzeNearbyScansNotFlagged(t *testing.T) {
	// A few hundred meters apart, spread over hours
	recent := []Scan{
		{Time: at(-2 * time.Hour), Latitude: floatPtr(43.2389), Longitude: floatPtr(76.8897)},
	}
	current := Scan{Time: daytime, Latitude: floatPtr(43.2410), Longitude: floatPtr(76.8920)}

	report := Analyze(current, recent, DefaultThresholds())

	for _, f := range report.Flags {
		assert.NotEqual(t, FlagImpossibleDistance, f.Type)
	}
}

func TestAnalyzeMultipleDevicesAndLocations(t *testing.T) {
	recent := []Scan{
		{Time: at(-10 * time.Minute), Location: strPtr("gate-a"), DeviceID: strPtr("dev-1")},
		{Time: at(-20 * time.Minute), Location: strPtr("gate-b"), DeviceID: strPtr("dev-2")},
	}
	current := Scan{Time: daytime, Location: strPtr("gate-a"), DeviceID: strPtr("dev-1")}

	report := Analyze(current, recent, DefaultThresholds())

	var types []string
	for _, f := range report.Flags {
		types = append(types, f.Type)
	}
	assert.Contains(t, types, FlagMultipleLocations)
	assert.Contains(t, types, FlagMultipleDevices)
	assert.Equal(t, 45, report.RiskScore)
	assert.Equal(t, RiskHigh, report.RiskLevel)
}

func TestAnalyzeUnusualHours(t *testing.T) {
	night := time.Date(2026, 6, 15, 3, 30, 0, 0, time.UTC)

	report := Analyze(Scan{Time: night}, nil, DefaultThresholds())

	assert.Len(t, report.Flags, 1)
	assert.Equal(t, FlagUnusualHours, report.Flags[0].Type)
	assert.Equal(t, SeverityLow, report.Flags[0].Severity)
	assert.Equal(t, RiskLow, report.RiskLevel)
	assert.Equal(t, RecommendAllow, report.Recommendation)
}

func TestAnalyzeIsPure(t *testing.T) {
	recent := []Scan{
		{Time: at(-3 * time.Second), Location: strPtr("gate-a")},
		{Time: at(-40 * time.Second), Location: strPtr("gate-b")},
	}
	current := Scan{Time: daytime, Location: strPtr("gate-a")}

	first := Analyze(current, recent, DefaultThresholds())
	second := Analyze(current, recent, DefaultThresholds())

	assert.Equal(t, first, second)
}

func TestHaversineKnownDistance(t *testing.T) {
	// Almaty to Astana is roughly 970km
	d := haversineMeters(43.238949, 76.889709, 51.169392, 71.449074)
	assert.InDelta(t, 970_000, d, 20_000)
}

func TestRiskLevelBoundaries(t *testing.T) {
	assert.Equal(t, RiskMinimal, riskLevel(0))
	assert.Equal(t, RiskMinimal, riskLevel(4))
	assert.Equal(t, RiskLow, riskLevel(5))
	assert.Equal(t, RiskLow, riskLevel(14))
	assert.Equal(t, RiskMedium, riskLevel(15))
	assert.Equal(t, RiskMedium, riskLevel(29))
	assert.Equal(t, RiskHigh, riskLevel(30))
	assert.Equal(t, RiskHigh, riskLevel(49))
	assert.Equal(t, RiskCritical, riskLevel(50))
}
