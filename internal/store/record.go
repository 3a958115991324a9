// Package store persists content records in an S3-compatible object store.
// The object body holds the draft bytes; record fields travel as user
// metadata and free-form labels as object tags.
package store

import "errors"

const (
	StatusPending = "pending"
	StatusOnchain = "onchain"
)

// Record is the unit of mutation. ContentAddress is the lookup key for all
// lifecycle operations; Name is the deterministic duplicate-intent key.
type Record struct {
	ID             string            `json:"id"`
	ContentAddress string            `json:"contentAddress"`
	Name           string            `json:"name"`
	GroupID        string            `json:"groupId"`
	Owner          string            `json:"owner"`
	Status         string            `json:"status"`
	Tags           map[string]string `json:"tags,omitempty"`
}

var ErrRecordNotFound = errors.New("record not found")
