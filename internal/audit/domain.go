package audit

import "time"

// RollupCacheKey is the redis key holding the precomputed 30 day activity
// rollup. The background worker refreshes it nightly; the summary endpoint
// serves it when a request asks for exactly that window.
const RollupCacheKey = "rentops:audit:rollup"

// Entry is one immutable record of the activity log. Entries are written
// once per audited operation and never updated or deleted.
type Entry struct {
	ID         string
	Timestamp  time.Time
	ActorID    string
	ActorName  string
	ActorRole  string
	Module     string
	Action     string
	TargetType string
	TargetID   string
	Details    string
	IPAddress  string
	UserAgent  string
}

// Filters narrows timeline queries.
type Filters struct {
	From     time.Time
	To       time.Time
	ActorID  string
	Module   string
	Action   string
	Page     int
	PageSize int
}

// PagingInfo carries simple pagination metadata for timeline pages.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles a timeline page with its paging info.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}

// DaySummary aggregates one UTC calendar day of activity.
type DaySummary struct {
	Date           string
	ActionCount    int
	CriticalCount  int
	ModulesTouched []string
}

// ExportRow is the projection written to CSV exports.
type ExportRow struct {
	Timestamp    time.Time
	ActorName    string
	ActorRole    string
	Module       string
	Action       string
	Target       string
	Details      string
	IPAddress    string
	BrowserGuess string
}
