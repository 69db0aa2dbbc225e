package models

import "time"

// StructuralRole classifies where in the page layout a link was found
type StructuralRole string

const (
	RoleNavigation StructuralRole = "navigation"
	RoleContent    StructuralRole = "content"
	RoleHeader     StructuralRole = "header"
	RoleFooter     StructuralRole = "footer"
	RoleSidebar    StructuralRole = "sidebar"
	RoleOther      StructuralRole = "other"
)

// Strategy identifies a single transport strategy attempt
type Strategy string

const (
	StrategyDirectHead Strategy = "direct-head"
	StrategyDirectGet  Strategy = "direct-get"
	StrategyRelay      Strategy = "relay"
	StrategyFrame      Strategy = "sandboxed-frame"
)

// Method identifies how a result was ultimately confirmed
type Method string

const (
	MethodDirect Method = "direct"
	MethodRelay  Method = "relay"
	MethodHybrid Method = "hybrid" // Confirmed only by the second wave after the first failed
)

// ErrorKind is the engine's failure taxonomy (see utils.CategorizeError)
type ErrorKind string

const (
	KindNone      ErrorKind = "none"
	KindTimeout   ErrorKind = "timeout"
	KindCORS      ErrorKind = "cors-blocked"
	KindHTTPError ErrorKind = "http-error"
	KindNetwork   ErrorKind = "network-error"
	KindExhausted ErrorKind = "all-strategies-exhausted"
	KindRobots    ErrorKind = "robots-disallowed"
	KindUnknown   ErrorKind = "unknown"
)

// LinkCandidate is a single extracted, resolved hyperlink awaiting validation
// Immutable once created by the extractor
type LinkCandidate struct {
	URL        string         `json:"url"` // Absolute, resolved URL
	AnchorText string         `json:"anchor_text"`
	IsInternal bool           `json:"is_internal"`
	Role       StructuralRole `json:"structural_role"`
}

// ValidationAttempt records the outcome of one probe of one URL
// Ephemeral: consumed by the orchestrator to build a ValidationResult
type ValidationAttempt struct {
	URL           string
	Strategy      Strategy
	StatusCode    int // 0 when no HTTP status was received
	TimedOut      bool
	CORSBlocked   bool
	WeakSignal    bool // Load-only success without in-context confirmation
	FinalURL      string
	RedirectChain []string
	Elapsed       time.Duration
}

// ValidationResult is the canonical per-URL outcome of validation
type ValidationResult struct {
	URL            string         `json:"url"`
	AnchorText     string         `json:"anchor_text"`
	IsInternal     bool           `json:"is_internal"`
	Role           StructuralRole `json:"structural_role"`
	IsWorking      bool           `json:"is_working"`
	StatusCode     int            `json:"status_code,omitempty"`
	FinalURL       string         `json:"final_url,omitempty"`       // Post-redirect
	RedirectChain  []string       `json:"redirect_chain,omitempty"`  // Ordered hop URLs
	ErrorMessage   string         `json:"error_message,omitempty"`
	ErrorKind      ErrorKind      `json:"error_kind,omitempty"`
	StrategyUsed   Strategy       `json:"method_used"`       // Last strategy attempted
	Method         Method         `json:"validation_method"` // direct, relay, or hybrid
	CORSHandled    bool           `json:"cors_handled"`
	RetryCount     int            `json:"retry_count"`
	ResponseTimeMs int64          `json:"response_time_ms"`
}

// AggregateStatistics summarizes a full result set.
// Always derived via ComputeStatistics, never incrementally mutated.
type AggregateStatistics struct {
	TotalLinks         int               `json:"total_links"`
	WorkingLinks       int               `json:"working_links"`
	BrokenLinks        int               `json:"broken_links"`
	InternalLinks      int               `json:"internal_links"`
	ExternalLinks      int               `json:"external_links"`
	RedirectCount      int               `json:"redirect_count"`
	TimeoutCount       int               `json:"timeout_count"`
	CORSHandledCount   int               `json:"cors_handled_count"`
	MethodBreakdown    map[Method]int    `json:"method_breakdown"`
	ErrorKindBreakdown map[ErrorKind]int `json:"error_kind_breakdown,omitempty"`
	StatusCodeCounts   map[int]int       `json:"status_code_counts,omitempty"`
	AvgResponseTimeMs  int64             `json:"avg_response_time_ms"`
}

// AuditReport bundles everything one engine run produced for a page
type AuditReport struct {
	RunID       string              `json:"run_id"`
	PageURL     string              `json:"page_url"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at"`
	Results     []ValidationResult  `json:"results"`
	Stats       AggregateStatistics `json:"stats"`
}

// ProgressEvent is emitted after each scheduler batch settles
type ProgressEvent struct {
	Current  int      `json:"current"`
	Total    int      `json:"total"`
	URL      string   `json:"url"` // Most recently settled URL in the batch
	Strategy Strategy `json:"strategy"`
}
