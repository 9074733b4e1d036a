package checkpoint

import "fmt"

// InconsistentCheckpointsError is returned by Merge when two checkpoints
// cannot have come from the same tree.
type InconsistentCheckpointsError struct {
	A, B Checkpoint
}

func (e *InconsistentCheckpointsError) Error() string {
	return fmt.Sprintf("inconsistent checkpoints: %s vs %s", e.A, e.B)
}
