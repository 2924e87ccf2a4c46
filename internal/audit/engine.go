package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// RedactedMarker replaces sensitive values before anything leaves the process.
const RedactedMarker = "[REDACTED]"

// sensitiveFields is the fixed set of field names stripped by Redact.
var sensitiveFields = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"credential":    {},
	"mfa_secret":    {},
	"session_token": {},
}

// criticalActions always classify an entry as critical, whatever the module.
var criticalActions = map[string]struct{}{
	"delete":            {},
	"suspend":           {},
	"permission_change": {},
	"force_logout":      {},
	"approve":           {},
}

// criticalModules classify every non-view action as critical.
var criticalModules = map[string]struct{}{
	"employees": {},
	"billing":   {},
}

// requiredFields must be present before an entry may be persisted.
var requiredFields = []string{
	"actor_id",
	"actor_name",
	"module",
	"action",
	"target_type",
	"target_id",
	"ip_address",
	"user_agent",
}

// Redact shallow-copies the object and masks the sensitive fields.
func Redact(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for key, value := range obj {
		if _, sensitive := sensitiveFields[key]; sensitive {
			out[key] = RedactedMarker
			continue
		}
		out[key] = value
	}
	return out
}

// DiffResult carries both redacted sides and the human-readable change list.
type DiffResult struct {
	Before  map[string]any
	After   map[string]any
	Changes []string
}

// Diff redacts both sides, then reports per-key changes. Equality is by
// canonical JSON serialization, so reordered-but-equal nested objects are
// treated as unchanged (encoding/json sorts map keys).
func Diff(before, after map[string]any) DiffResult {
	redactedBefore := Redact(before)
	redactedAfter := Redact(after)

	keys := make([]string, 0, len(redactedBefore)+len(redactedAfter))
	seen := make(map[string]struct{}, len(redactedBefore)+len(redactedAfter))
	for key := range redactedBefore {
		keys = append(keys, key)
		seen[key] = struct{}{}
	}
	for key := range redactedAfter {
		if _, ok := seen[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var changes []string
	for _, key := range keys {
		oldValue, hadOld := redactedBefore[key]
		newValue, hasNew := redactedAfter[key]
		switch {
		case !hadOld:
			changes = append(changes, fmt.Sprintf("%s: added %s", key, serialize(newValue)))
		case !hasNew:
			changes = append(changes, fmt.Sprintf("%s: removed %s", key, serialize(oldValue)))
		default:
			oldSer := serialize(oldValue)
			newSer := serialize(newValue)
			if oldSer != newSer {
				changes = append(changes, fmt.Sprintf("%s: %s → %s", key, oldSer, newSer))
			}
		}
	}
	return DiffResult{Before: redactedBefore, After: redactedAfter, Changes: changes}
}

func serialize(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(value))
	}
	return string(data)
}

// IsCritical classifies an action for summary counting and alert surfaces.
func IsCritical(action, module string) bool {
	if _, ok := criticalActions[action]; ok {
		return true
	}
	if _, ok := criticalModules[module]; ok {
		return action != "view"
	}
	return false
}

// SummarizeByDay groups entries by UTC calendar date, newest day first.
func SummarizeByDay(entries []Entry) []DaySummary {
	type bucket struct {
		total    int
		critical int
		modules  map[string]struct{}
	}
	buckets := make(map[string]*bucket)
	for _, entry := range entries {
		date := entry.Timestamp.UTC().Format("2006-01-02")
		b := buckets[date]
		if b == nil {
			b = &bucket{modules: make(map[string]struct{})}
			buckets[date] = b
		}
		b.total++
		if IsCritical(entry.Action, entry.Module) {
			b.critical++
		}
		if entry.Module != "" {
			b.modules[entry.Module] = struct{}{}
		}
	}

	dates := make([]string, 0, len(buckets))
	for date := range buckets {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	summaries := make([]DaySummary, 0, len(dates))
	for _, date := range dates {
		b := buckets[date]
		modules := make([]string, 0, len(b.modules))
		for module := range b.modules {
			modules = append(modules, module)
		}
		sort.Strings(modules)
		summaries = append(summaries, DaySummary{
			Date:           date,
			ActionCount:    b.total,
			CriticalCount:  b.critical,
			ModulesTouched: modules,
		})
	}
	return summaries
}

// ForExport projects entries to export rows, optionally dropping details.
func ForExport(entries []Entry, includeDetails bool) []ExportRow {
	rows := make([]ExportRow, 0, len(entries))
	for _, entry := range entries {
		row := ExportRow{
			Timestamp:    entry.Timestamp,
			ActorName:    entry.ActorName,
			ActorRole:    entry.ActorRole,
			Module:       entry.Module,
			Action:       entry.Action,
			Target:       entry.TargetType + "/" + entry.TargetID,
			IPAddress:    entry.IPAddress,
			BrowserGuess: BrowserGuess(entry.UserAgent),
		}
		if includeDetails {
			row.Details = entry.Details
		}
		rows = append(rows, row)
	}
	return rows
}

// Validate returns one error per missing required field. An empty result
// means the entry is persistable.
func Validate(entry Entry) []string {
	values := map[string]string{
		"actor_id":    entry.ActorID,
		"actor_name":  entry.ActorName,
		"module":      entry.Module,
		"action":      entry.Action,
		"target_type": entry.TargetType,
		"target_id":   entry.TargetID,
		"ip_address":  entry.IPAddress,
		"user_agent":  entry.UserAgent,
	}
	var missing []string
	for _, field := range requiredFields {
		if values[field] == "" {
			missing = append(missing, field+" is required")
		}
	}
	return missing
}

// EncodeChanges serializes a diff change list for the entry details column.
func EncodeChanges(result DiffResult) string {
	if len(result.Changes) == 0 {
		return ""
	}
	data, err := json.Marshal(result.Changes)
	if err != nil {
		return ""
	}
	return string(data)
}

// browserTokens are checked in order; Edge and Opera ship Chrome in their
// user agent and must match first.
var browserTokens = []struct {
	token string
	name  string
}{
	{"Edg", "Edge"},
	{"OPR", "Opera"},
	{"Firefox", "Firefox"},
	{"Chrome", "Chrome"},
	{"Safari", "Safari"},
	{"MSIE", "Internet Explorer"},
	{"Trident", "Internet Explorer"},
}

// BrowserGuess derives a coarse browser name from the user-agent string.
// Substring matching on purpose: good enough for an export column, not a
// user-agent parser.
func BrowserGuess(userAgent string) string {
	for _, candidate := range browserTokens {
		if strings.Contains(userAgent, candidate.token) {
			return candidate.name
		}
	}
	if userAgent == "" {
		return "unknown"
	}
	return "other"
}

// NowUTC is the timestamp convention for new entries.
func NowUTC() time.Time {
	return time.Now().UTC()
}
