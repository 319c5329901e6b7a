// Package evaluator implements the Container-State, Model-State and
// Package-State Evaluators (C4/C5/C6), grounded on
// original_source/src/player/statemanager/src/model/state_evaluator.rs and
// .../package/state_evaluator.rs.
package evaluator

import "github.com/piccolo-project/piccolo/internal/proto"

// containerStateKeys is the probe order for extracting a container's raw
// state string (spec §4.4).
var containerStateKeys = []string{"Status", "status", "State", "state"}

// ContainerState extracts the raw state of one container, probing keys in a
// fixed order and defaulting to "unknown" when none are present.
func ContainerState(c proto.ContainerInfo) string {
	for _, key := range containerStateKeys {
		if v, ok := c.State[key]; ok {
			return v
		}
	}
	return "unknown"
}
