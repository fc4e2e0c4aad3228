// Package events defines the topics and payloads published on the in-process event bus.
package events

// Topics published by the catalog and consumed by the ranking coordinator.
const (
	ProfileChangedTopic  = "ProfileChangedEvent"
	ProfileRemovedTopic  = "ProfileRemovedEvent"
	JobChangedTopic      = "JobChangedEvent"
	JobRemovedTopic      = "JobRemovedEvent"
	TaxonomyChangedTopic = "TaxonomyChangedEvent"
)

// ProfileChanged is published after a candidate profile revision is persisted.
type ProfileChanged struct {
	CandidateID string
	Revision    int64
}

// ProfileRemoved is published after a candidate profile is hard-removed.
type ProfileRemoved struct {
	CandidateID string
}

// JobChanged is published after a job revision is persisted, including soft deletes.
type JobChanged struct {
	JobID    string
	Revision int64
	Status   string
}

// JobRemoved is published after a job is hard-removed.
type JobRemoved struct {
	JobID string
}

// TaxonomyChanged is published after the taxonomy version advances.
type TaxonomyChanged struct {
	Version int64
}
