package evaluator

import "github.com/piccolo-project/piccolo/internal/statestore"

// NotifyPriority ranks a package-state transition for the reconcile queue
// (spec §4.6): 1 is most urgent.
type NotifyPriority int32

const (
	PriorityNone NotifyPriority = 0
	PriorityHigh NotifyPriority = 1
	PriorityMed  NotifyPriority = 2
	PriorityLow  NotifyPriority = 3
)

// countModelStates tallies how many of the given model states equal each
// possible ModelState, grounded on package/state_evaluator.rs::count_model_states.
func countModelStates(states []statestore.ModelState) map[statestore.ModelState]int {
	counts := make(map[statestore.ModelState]int)
	for _, s := range states {
		counts[s]++
	}
	return counts
}

// PackageState aggregates a Package's model states into a PackageState,
// applying the first matching rule (spec §4.6 table). A model whose state
// is unknown to the state store (missing, absent=true from the caller) must
// already have been resolved to Failed by the caller before being passed in
// here ("missing model counts as Failed" per spec §4.6/§8).
func PackageState(modelStates []statestore.ModelState) statestore.PackageState {
	if len(modelStates) == 0 {
		return statestore.PackageStateUnspecified
	}

	counts := countModelStates(modelStates)
	total := len(modelStates)

	switch {
	case counts[statestore.ModelStateFailed] == total:
		return statestore.PackageStateError
	case counts[statestore.ModelStateFailed] > 0:
		return statestore.PackageStateDegraded
	case counts[statestore.ModelStateSucceeded] == total:
		return statestore.PackageStateUnspecified
	case counts[statestore.ModelStateUnknown] == total:
		return statestore.PackageStatePaused
	default:
		return statestore.PackageStateRunning
	}
}

// NotifyPriorityFor returns the reconcile-queue priority for a transition
// INTO the given package state (spec §4.6): Error is priority 1, Degraded
// is priority 2, everything else is advisory priority 3. Only a transition
// (old != new) should enqueue a notification; callers compare old and new
// before acting on this.
func NotifyPriorityFor(newState statestore.PackageState) NotifyPriority {
	switch newState {
	case statestore.PackageStateError:
		return PriorityHigh
	case statestore.PackageStateDegraded:
		return PriorityMed
	default:
		return PriorityLow
	}
}

// ProblematicModels returns the names of every model whose state is Failed
// or CrashLoopBackOff, for inclusion in error_details (spec §7 item 3: "the
// first failing model"), grounded on
// package/state_evaluator.rs::get_problematic_models.
func ProblematicModels(modelStates map[string]statestore.ModelState) []string {
	var names []string
	for name, s := range modelStates {
		if s == statestore.ModelStateFailed || s == statestore.ModelStateCrashLoopBackOff {
			names = append(names, name)
		}
	}
	return names
}

// HealthScore gives a coarse 0-100 health figure for a package, used only
// for observability (it does not feed back into PackageState, which must
// stay a pure function of the model-state multiset per spec invariant 2).
// Grounded on package/state_evaluator.rs::calculate_health_score.
func HealthScore(modelStates []statestore.ModelState) int {
	if len(modelStates) == 0 {
		return 100
	}
	counts := countModelStates(modelStates)
	healthy := counts[statestore.ModelStateRunning] + counts[statestore.ModelStateSucceeded]
	return (healthy * 100) / len(modelStates)
}
