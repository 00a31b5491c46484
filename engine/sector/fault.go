package sector

import (
	"fmt"

	"github.com/xiaonanln/sectorworld/engine/common"
)

// Fault is a task that failed inside a sector actor
//
// Faults are logged and counted by the actor; they never leave it.
type Fault struct {
	SectorID common.SectorID
	Task     string
	Err      error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("sector %s: task %s failed: %s", f.SectorID, f.Task, f.Err)
}

// Cause returns the underlying error
func (f *Fault) Cause() error {
	return f.Err
}

// Unwrap returns the underlying error
func (f *Fault) Unwrap() error {
	return f.Err
}

// Format prints the causal chain with %+v
func (f *Fault) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "sector %s: task %s failed: %+v", f.SectorID, f.Task, f.Err)
		return
	}
	fmt.Fprint(s, f.Error())
}
