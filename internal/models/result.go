package models

import "sort"

// SyncResult tallies a multi-entity operation. Per-entity failures are
// folded in here instead of being returned. Not safe for concurrent use.
type SyncResult struct {
	Created      int               `json:"created"`
	Updated      int               `json:"updated"`
	Unchanged    int               `json:"unchanged"`
	Errors       int               `json:"errors"`
	ErrorDetails map[string]string `json:"error_details,omitempty"`
}

// NewSyncResult returns an empty result.
func NewSyncResult() SyncResult {
	return SyncResult{ErrorDetails: map[string]string{}}
}

// RecordError stores the failure reason for key (usually an EntityRef string).
func (r *SyncResult) RecordError(key string, err error) {
	if r.ErrorDetails == nil {
		r.ErrorDetails = map[string]string{}
	}
	r.Errors++
	r.ErrorDetails[key] = err.Error()
}

// Failed reports whether any entity failed.
func (r SyncResult) Failed() bool {
	return r.Errors > 0
}

// FailedKeys returns the failing keys in sorted order.
func (r SyncResult) FailedKeys() []string {
	keys := make([]string, 0, len(r.ErrorDetails))
	for k := range r.ErrorDetails {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge adds other's counters and failures into r.
func (r *SyncResult) Merge(other SyncResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	for k, v := range other.ErrorDetails {
		if r.ErrorDetails == nil {
			r.ErrorDetails = map[string]string{}
		}
		r.ErrorDetails[k] = v
	}
	r.Errors += other.Errors
}
