// Package synccore provides the client-side sync orchestration core for
// offline-first applications: conflict detection and resolution, adaptive
// scheduling with retry/backoff, and recovery of corrupted sync state.
// Transport, entity registration, and backend adapters are external
// collaborators; this module never performs network I/O itself.
package synccore

import (
	"fmt"
	"reflect"
	"time"
)

// Record is one entity snapshot: field name to value. Values may be any
// JSON-compatible type; heterogeneous serializations of the same logical
// value (int64 vs float64, time.Time vs RFC3339 string) are tolerated by
// the comparison helpers below.
type Record map[string]any

// AuditFields is the fixed set of sync-bookkeeping fields that are never
// eligible for conflict detection and may be synthesized or reset by the
// recovery service.
var AuditFields = map[string]struct{}{
	"createdAt":    {},
	"createdBy":    {},
	"updatedAt":    {},
	"updatedBy":    {},
	"deletedAt":    {},
	"syncVersion":  {},
	"lastSyncedAt": {},
}

// IsAuditField reports whether name belongs to the audit-field set.
func IsAuditField(name string) bool {
	_, ok := AuditFields[name]
	return ok
}

// ValuesEqual compares two field values. Exact (deep) equality wins; when
// the types disagree it falls back to string-form comparison so values that
// round-tripped through different serializers still compare consistently.
func ValuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// RecordTime extracts a timestamp field from a record. It accepts
// time.Time, RFC3339 strings, and numeric epoch values (seconds, or
// milliseconds when the magnitude makes seconds implausible).
func RecordTime(r Record, field string) (time.Time, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		return time.Time{}, false
	case int:
		return epochTime(int64(t)), true
	case int64:
		return epochTime(t), true
	case float64:
		return epochTime(int64(t)), true
	default:
		return time.Time{}, false
	}
}

// epochTime treats values past the year ~33658 as milliseconds.
func epochTime(v int64) time.Time {
	const msThreshold = 1e12
	if v >= msThreshold {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}

// RecordInt64 extracts an integer field, tolerating the numeric types JSON
// decoding produces.
func RecordInt64(r Record, field string) (int64, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	default:
		return 0, false
	}
}

// RecordString extracts a string field.
func RecordString(r Record, field string) (string, bool) {
	v, ok := r[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// CloneRecord returns a copy of r. Nested maps and slices are copied one
// level deep, which is sufficient for resolution outputs that must not
// alias their inputs.
func CloneRecord(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		switch typed := v.(type) {
		case map[string]any:
			inner := make(map[string]any, len(typed))
			for ik, iv := range typed {
				inner[ik] = iv
			}
			out[k] = inner
		case []any:
			inner := make([]any, len(typed))
			copy(inner, typed)
			out[k] = inner
		default:
			out[k] = v
		}
	}
	return out
}
