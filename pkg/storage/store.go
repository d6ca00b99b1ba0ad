package storage

import (
	"context"
	"time"

	"gerritevents/pkg/gerrit"
)

// RefUpdateRecord is one persisted ref-updated event.
// Fields the event did not carry are stored as empty strings.
type RefUpdateRecord struct {
	ID             uint64     `json:"id"`
	Project        string     `json:"project"`
	RefName        string     `json:"ref_name"`
	Ref            string     `json:"ref,omitempty"`
	OldRev         string     `json:"old_rev,omitempty"`
	NewRev         string     `json:"new_rev,omitempty"`
	Submitter      string     `json:"submitter,omitempty"`
	RequestID      string     `json:"request_id,omitempty"`
	EventCreatedOn *time.Time `json:"event_created_on,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// RefUpdateFilter selects ref update rows. Empty fields match everything.
type RefUpdateFilter struct {
	Project string
	RefName string
	Since   *time.Time
	Limit   int
}

// RefUpdateStore defines persistence for ref updates.
type RefUpdateStore interface {
	SaveRefUpdate(ctx context.Context, record RefUpdateRecord) error
	LatestRefUpdate(ctx context.Context, project, refName string) (*RefUpdateRecord, error)
	ListRefUpdates(ctx context.Context, filter RefUpdateFilter) ([]RefUpdateRecord, error)
	Close() error
}

// RecordFromRefUpdate builds a record from a decoded RefUpdate and its
// optional submitter.
func RecordFromRefUpdate(update *gerrit.RefUpdate, submitter *gerrit.Account) RefUpdateRecord {
	var record RefUpdateRecord
	if update == nil {
		return record
	}
	record.Project = update.GetProject()
	record.RefName = update.GetRefName()
	record.OldRev = update.GetOldRev()
	record.NewRev = update.GetNewRev()
	if ref, ok := update.Ref(); ok {
		record.Ref = ref
	}
	if submitter != nil {
		record.Submitter = submitter.GetUsername()
		if record.Submitter == "" {
			record.Submitter = submitter.GetName()
		}
	}
	return record
}

// RefUpdate converts the record back into a RefUpdate. Empty columns are
// left absent.
func (r RefUpdateRecord) RefUpdate() *gerrit.RefUpdate {
	update := gerrit.NewRefUpdate()
	if r.Project != "" {
		update.SetProject(r.Project)
	}
	if r.RefName != "" {
		update.SetRefName(r.RefName)
	}
	if r.OldRev != "" {
		update.SetOldRev(r.OldRev)
	}
	if r.NewRev != "" {
		update.SetNewRev(r.NewRev)
	}
	return update
}
