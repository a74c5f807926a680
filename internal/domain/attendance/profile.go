package attendance

// RiskLevel buckets a risk score
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskUnknown RiskLevel = "unknown"
)

// RiskMetrics are the inputs behind a risk score
type RiskMetrics struct {
	AbsenteeismRate     int `json:"absenteeismRate"`
	LatenessRate        int `json:"latenessRate"`
	ViolationCount      int `json:"violationCount"`
	DaysPresent         int `json:"daysPresent"`
	CompleteSessions    int `json:"completeSessions"`
	IncompleteSessions  int `json:"incompleteSessions"`
	WorkingDaysInPeriod int `json:"workingDaysInPeriod"`
	LateSessions        int `json:"lateSessions"`
	TotalSessions       int `json:"totalSessions"`
}

// RiskProfile is the per-person result of the risk scorer
type RiskProfile struct {
	PersonID          string      `json:"personId"`
	PersonName        string      `json:"personName,omitempty"`
	OrganizationID    string      `json:"organizationId,omitempty"`
	RiskScore         int         `json:"riskScore"`
	RiskLevel         RiskLevel   `json:"riskLevel"`
	Metrics           RiskMetrics `json:"metrics"`
	DropoutLikelihood int         `json:"dropoutLikelihood"`
	Flags             []string    `json:"flags"`
}

// Trend is the direction of recent punctuality
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// PatternType names a qualitative behaviour pattern
type PatternType string

const (
	PatternFrequentLateness    PatternType = "frequent_lateness"
	PatternHabitDay            PatternType = "habit_day"
	PatternLastMinuteArrivals  PatternType = "last_minute_arrivals"
	PatternRepeatedClockInTime PatternType = "repeated_clock_in_times"
)

// Pattern is a detected behaviour pattern with its supporting numbers
type Pattern struct {
	Type        PatternType `json:"type"`
	Description string      `json:"description"`
	Occurrences int         `json:"occurrences"`
}

// BehaviorProfile summarises punctuality behaviour for one person
type BehaviorProfile struct {
	PersonID         string    `json:"personId"`
	ConsistencyScore int       `json:"consistencyScore"`
	PunctualityScore int       `json:"punctualityScore"`
	ReliabilityTrend Trend     `json:"reliabilityTrend"`
	MostLateWeekday  string    `json:"mostLateWeekday,omitempty"`
	Patterns         []Pattern `json:"patterns"`
}

// Rating labels a compliance score
type Rating string

const (
	RatingExcellent Rating = "Excellent"
	RatingGood      Rating = "Good"
	RatingFair      Rating = "Fair"
	RatingPoor      Rating = "Poor"
)

// RatingFor returns the label for a compliance score
func RatingFor(score int) Rating {
	switch {
	case score >= 85:
		return RatingExcellent
	case score >= 70:
		return RatingGood
	case score >= 50:
		return RatingFair
	default:
		return RatingPoor
	}
}

// DataSource records how much data backed a ranking entry
type DataSource struct {
	RecordsAnalyzed           int `json:"recordsAnalyzed"`
	StaffInOrg                int `json:"staffInOrg"`
	StaffWithCompleteSessions int `json:"staffWithCompleteSessions"`
	ExcludedInvalidRecords    int `json:"excludedInvalidRecords"`
}

// CompanyComplianceRanking is one organization's compliance result
type CompanyComplianceRanking struct {
	Rank                    int        `json:"rank"`
	OrganizationID          string     `json:"organizationId"`
	OrganizationName        string     `json:"organizationName,omitempty"`
	AttendanceIntegrity     int        `json:"attendanceIntegrity"`
	SupervisorParticipation int        `json:"supervisorParticipation"`
	ViolationCount          int        `json:"violationCount"`
	StaffCount              int        `json:"staffCount"`
	ComplianceScore         int        `json:"complianceScore"`
	Rating                  Rating     `json:"rating"`
	DataSource              DataSource `json:"dataSource"`
}
