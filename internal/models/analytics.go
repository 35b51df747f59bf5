package models

// IssueMetrics summarizes the issue store for a tenant over a time range.
type IssueMetrics struct {
	TimeRangeDays int     `json:"time_range_days"`
	TotalIssues   int     `json:"total_issues"`
	OpenIssues    int     `json:"open_issues"`
	ResolvedRatio float64 `json:"resolved_ratio"`
	AvgSeverity   float64 `json:"avg_severity"`
}

// SourceMetrics is IssueMetrics broken down for one source.
type SourceMetrics struct {
	Source      string  `json:"source"`
	TotalIssues int     `json:"total_issues"`
	OpenIssues  int     `json:"open_issues"`
	AvgSeverity float64 `json:"avg_severity"`
}

// TrendPoint is one day of issue-creation counts.
type TrendPoint struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// Distribution is a label → count bucket (severity or status).
type Distribution map[string]int

// VelocityPoint tracks created vs resolved counts for one day.
type VelocityPoint struct {
	Date     string `json:"date"`
	Created  int    `json:"created"`
	Resolved int    `json:"resolved"`
}

// Dashboard bundles every analytics view into one response.
type Dashboard struct {
	TimeRangeDays        int             `json:"time_range_days"`
	Metrics              IssueMetrics    `json:"metrics"`
	SourceComparison     []SourceMetrics `json:"source_comparison"`
	Trends               []TrendPoint    `json:"trends"`
	SeverityDistribution Distribution    `json:"severity_distribution"`
	StatusDistribution   Distribution    `json:"status_distribution"`
	TopIssues            []Issue         `json:"top_issues"`
	ChangeVelocity       []VelocityPoint `json:"change_velocity"`
}
