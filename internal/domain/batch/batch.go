// Package batch models an ingestion batch: its lifecycle state machine and
// the per-item outcomes recorded while the pipeline processes it.
package batch

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an ingestion batch.
type Status string

// Batch lifecycle states. failed is reachable from any non-terminal state;
// done means fully processed, not fully succeeded.
const (
	StatusPending    Status = "pending"
	StatusValidating Status = "validating"
	StatusEmbedding  Status = "embedding"
	StatusCommitting Status = "committing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// transitions encodes the legal state machine moves.
var transitions = map[Status][]Status{
	StatusPending:    {StatusValidating, StatusFailed},
	StatusValidating: {StatusEmbedding, StatusFailed},
	StatusEmbedding:  {StatusCommitting, StatusFailed},
	StatusCommitting: {StatusDone, StatusFailed},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status is final.
func (s Status) Terminal() bool { return s == StatusDone || s == StatusFailed }

// ItemOutcome is the terminal result for one document of a batch.
type ItemOutcome string

// Per-item outcomes.
const (
	ItemAccepted ItemOutcome = "accepted"
	ItemRejected ItemOutcome = "rejected"
)

// Rejection reasons recorded alongside ItemRejected.
const (
	ReasonValidationFailed = "validation_failed"
	ReasonEmbeddingFailed  = "embedding_failed"
	ReasonCommitFailed     = "commit_failed"
)

// Item tracks one document through the pipeline.
type Item struct {
	RecordID string      `json:"recordId"`
	Outcome  ItemOutcome `json:"outcome"`
	Reason   string      `json:"reason,omitempty"`
	Detail   string      `json:"detail,omitempty"`
}

// Batch is an ingestion batch with its status and per-item outcomes.
type Batch struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Submitted time.Time `json:"submitted"`
	Finished  time.Time `json:"finished,omitzero"`
	Items     []Item    `json:"items"`
	Error     string    `json:"error,omitempty"`
}

// New creates a pending batch over the given record IDs.
func New(id string, recordIDs []string, now time.Time) Batch {
	items := make([]Item, len(recordIDs))
	for i, rid := range recordIDs {
		items[i] = Item{RecordID: rid}
	}
	return Batch{ID: id, Status: StatusPending, Submitted: now, Items: items}
}

// Advance moves the batch to the next status, enforcing the state machine.
func (b *Batch) Advance(to Status) error {
	if !CanTransition(b.Status, to) {
		return fmt.Errorf("illegal batch transition %s -> %s", b.Status, to)
	}
	b.Status = to
	return nil
}

// Reject marks item i rejected with a reason; a rejected item never aborts
// its siblings.
func (b *Batch) Reject(i int, reason, detail string) {
	b.Items[i].Outcome = ItemRejected
	b.Items[i].Reason = reason
	b.Items[i].Detail = detail
}

// Accept marks item i accepted.
func (b *Batch) Accept(i int) {
	b.Items[i].Outcome = ItemAccepted
	b.Items[i].Reason = ""
	b.Items[i].Detail = ""
}

// Pending returns the indexes of items without a terminal outcome yet.
func (b *Batch) Pending() []int {
	var out []int
	for i, item := range b.Items {
		if item.Outcome == "" {
			out = append(out, i)
		}
	}
	return out
}

// Accepted returns the indexes of accepted items.
func (b *Batch) Accepted() []int {
	var out []int
	for i, item := range b.Items {
		if item.Outcome == ItemAccepted {
			out = append(out, i)
		}
	}
	return out
}

// Progress returns "<settled>/<total>" for status polling.
func (b *Batch) Progress() string {
	settled := 0
	for _, item := range b.Items {
		if item.Outcome != "" {
			settled++
		}
	}
	return fmt.Sprintf("%d/%d", settled, len(b.Items))
}
