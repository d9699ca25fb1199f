// Package extraction pulls quantitative indicators out of report text with a
// two-stage model chain: a free-form pipe-separated listing, then a strict
// JSON formatting pass.
package extraction

import (
	"strings"

	"github.com/invopop/jsonschema"
)

// ChartType is the suggested visualization for a data point.
type ChartType string

const (
	LineChart     ChartType = "LineChart"
	BarChart      ChartType = "BarChart"
	PieChart      ChartType = "PieChart"
	ChoroplethMap ChartType = "ChoroplethMap"
	UnknownChart  ChartType = "Unknown"
)

var chartTypes = []ChartType{LineChart, BarChart, PieChart, ChoroplethMap, UnknownChart}

// IndicatorCategory is the fine-grained family of a data point.
type IndicatorCategory string

const (
	ClimateEmissions     IndicatorCategory = "climate_emissions"
	ClimateTemperature   IndicatorCategory = "climate_temperature"
	Biodiversity         IndicatorCategory = "biodiversity"
	Deforestation        IndicatorCategory = "deforestation"
	WaterQuality         IndicatorCategory = "water_quality"
	Pollution            IndicatorCategory = "pollution"
	Energy               IndicatorCategory = "energy"
	FinanceLoan          IndicatorCategory = "finance_loan"
	FinanceCost          IndicatorCategory = "finance_cost"
	FinanceBudget        IndicatorCategory = "finance_budget"
	FinanceGDP           IndicatorCategory = "finance_gdp"
	SocialPopulation     IndicatorCategory = "social_population"
	SocialEmployment     IndicatorCategory = "social_employment"
	SocialHealth         IndicatorCategory = "social_health"
	InfrastructureArea   IndicatorCategory = "infrastructure_area"
	InfrastructureLength IndicatorCategory = "infrastructure_length"
	TemporalDuration     IndicatorCategory = "temporal_duration"
	TemporalDeadline     IndicatorCategory = "temporal_deadline"
	Other                IndicatorCategory = "other"
)

// IndicatorCategories lists every category in prompt order.
var IndicatorCategories = []IndicatorCategory{
	ClimateEmissions, ClimateTemperature, Biodiversity, Deforestation, WaterQuality, Pollution,
	Energy, FinanceLoan, FinanceCost, FinanceBudget, FinanceGDP, SocialPopulation,
	SocialEmployment, SocialHealth, InfrastructureArea, InfrastructureLength,
	TemporalDuration, TemporalDeadline, Other,
}

func fold(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}

// ParseChartType matches loosely ("bar chart", "BAR_CHART") and defaults to Unknown.
func ParseChartType(s string) ChartType {
	f := fold(s)
	for _, c := range chartTypes {
		if fold(string(c)) == f {
			return c
		}
	}
	switch f {
	case "line":
		return LineChart
	case "bar":
		return BarChart
	case "pie":
		return PieChart
	case "map", "choropleth":
		return ChoroplethMap
	}
	return UnknownChart
}

// ParseIndicatorCategory matches loosely and defaults to Other.
func ParseIndicatorCategory(s string) IndicatorCategory {
	f := fold(s)
	for _, c := range IndicatorCategories {
		if fold(string(c)) == f {
			return c
		}
	}
	return Other
}

func (ChartType) JSONSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "string", Description: "Suggested visualization for the data point."}
	for _, c := range chartTypes {
		s.Enum = append(s.Enum, string(c))
	}
	return s
}

func (IndicatorCategory) JSONSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "string", Description: "Indicator family, one of the exact lowercase values."}
	for _, c := range IndicatorCategories {
		s.Enum = append(s.Enum, string(c))
	}
	return s
}

// DataPoint is one extracted indicator.
type DataPoint struct {
	Key               string            `json:"key" jsonschema:"required" jsonschema_description:"Descriptive name of the indicator, with its context."`
	Value             string            `json:"value" jsonschema:"required" jsonschema_description:"Numeric value only, or 'data not provided'."`
	Unit              string            `json:"unit" jsonschema_description:"Unit of the value (USD, %, tonnes CO2e...)."`
	Page              string            `json:"page" jsonschema:"oneof_type=string;integer" jsonschema_description:"Page where the value appears."`
	ConfidenceScore   float64           `json:"confidence_score" jsonschema:"minimum=0,maximum=1" jsonschema_description:"Confidence between 0.0 and 1.0."`
	ChartType         ChartType         `json:"chart_type"`
	IndicatorCategory IndicatorCategory `json:"indicator_category"`
}

// Result is the formatted output of the chain.
type Result struct {
	ExtractedPoints []DataPoint `json:"extracted_points" jsonschema:"required"`
}
