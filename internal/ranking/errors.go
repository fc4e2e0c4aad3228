package ranking

import (
	"fmt"

	"github.com/jonathan/talent-match/internal/types"
)

// JobUnavailableError is returned when a ranking or match is requested for a
// job that can no longer be matched against.
type JobUnavailableError struct {
	JobID  string
	Status types.JobStatus
}

func (e *JobUnavailableError) Error() string {
	return fmt.Sprintf("job %s is %s", e.JobID, e.Status)
}

// StaleReadError accompanies a record returned without recomputation after its
// inputs changed.
type StaleReadError struct {
	Record *types.MatchRecord
}

func (e *StaleReadError) Error() string {
	if e.Record == nil {
		return "match record is stale"
	}
	return fmt.Sprintf("match record for job %s and candidate %s is stale",
		e.Record.JobID, e.Record.CandidateID)
}
