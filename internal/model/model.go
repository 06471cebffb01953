// Package model holds the data types shared between the dispatcher, worker
// and scheduler: the job handed to the dispatcher and the result a worker
// reports back.
package model

import "time"

// RequestDescriptor records the outgoing HTTP request details worth
// keeping for diagnostics: method, URL and headers.
type RequestDescriptor struct {
	Method  string              `json:"method"`
	URL     string              `json:"url"`
	Headers map[string][]string `json:"headers,omitempty"`
}

// ResponseMeta records the subset of an http.Response worth keeping once
// the body has been consumed and the *http.Response itself discarded.
type ResponseMeta struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers,omitempty"`
	URL        string              `json:"url"`
	Reason     string              `json:"reason"`
	Elapsed    time.Duration       `json:"elapsed"`
	Encoding   string              `json:"encoding,omitempty"`
	Request    RequestDescriptor   `json:"request"`
}

// Result is accumulated by a worker across one fetch/compare/inflate/
// install attempt, then stamped with Channel/DownloadID by the scheduler
// on receipt.
//
// Invariant: if Updated is non-zero, Filename must be set, InflateStart and
// InflateComplete must be set, Download.StatusCode must be 200, and
// DownloadLockAcquired <= InflateStart <= InflateComplete <= Updated <= Completed.
type Result struct {
	ScheduledStart       time.Time     `json:"scheduled_start"`
	DownloadLockAcquired time.Time     `json:"download_lock_acquired,omitzero"`
	Download             *ResponseMeta `json:"download,omitempty"`
	InflateStart         time.Time     `json:"inflate_start,omitzero"`
	InflateComplete      time.Time     `json:"inflate_complete,omitzero"`
	Updated              time.Time     `json:"updated,omitzero"`
	Filename             string        `json:"filename,omitempty"`
	Completed            time.Time     `json:"completed,omitzero"`
	Exception            string        `json:"exception,omitempty"`

	// Stamped by the scheduler after receipt, not by the worker.
	Channel    string `json:"channel,omitempty"`
	DownloadID string `json:"download_id,omitempty"`
}

// Succeeded reports whether the attempt reached the upstream and got a 200.
func (r *Result) Succeeded() bool {
	return r != nil && r.Download != nil && r.Download.StatusCode == 200
}

// WasUpdated reports whether the attempt actually replaced the installed
// channel document.
func (r *Result) WasUpdated() bool {
	return r != nil && !r.Updated.IsZero()
}

// Duration is completed - scheduled_start, used to estimate how long a
// channel's downloads typically take.
func (r *Result) Duration() time.Duration {
	if r == nil || r.Completed.IsZero() || r.ScheduledStart.IsZero() {
		return 0
	}
	return r.Completed.Sub(r.ScheduledStart)
}

// Job is submitted by a scheduler and drained by the dispatcher in
// non-decreasing RunAt order (ties broken by Seq, the insertion order).
type Job struct {
	RunAt   time.Time
	Seq     uint64
	Channel string
	Inbox   chan<- *Result
}
