package domain

import (
	"maps"
	"time"
)

// Audit interaction types emitted by the version store.
const (
	InteractionVersionCaptured = "version_captured"
	InteractionRevertToVersion = "revert_to_version"
)

// MetadataPreviousVersionID is the metadata key linking a record to the
// record that was newest for its content ref when it was captured.
const MetadataPreviousVersionID = "previousVersionId"

// VersionRecord is the immutable metadata of one snapshot of a content stream.
// The raw content lives separately, keyed by VersionID.
type VersionRecord struct {
	VersionID   string         `json:"versionId"`
	Sequence    int            `json:"sequence"`
	Timestamp   time.Time      `json:"timestamp"`
	CommitterID string         `json:"committerId"`
	EventType   string         `json:"eventType"`
	ContentType string         `json:"contentType"`
	ContentRef  string         `json:"contentRef"`
	Summary     string         `json:"summary"`
	Diff        string         `json:"diff,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// PreviousVersionID returns the back-reference to the prior version, or ""
// for the first version of a stream.
func (r *VersionRecord) PreviousVersionID() string {
	if r == nil {
		return ""
	}
	id, _ := r.Metadata[MetadataPreviousVersionID].(string)
	return id
}

// Clone returns a copy that shares no metadata map with r.
func (r *VersionRecord) Clone() *VersionRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Metadata = maps.Clone(r.Metadata)
	return &out
}

// VersionCommit is one atomic persistence unit: the new record, its content
// and the ids of the records evicted from the same stream.
type VersionCommit struct {
	Record  *VersionRecord
	Content string
	Evict   []string
}
