package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/piccolo-project/piccolo/internal/statestore"
)

func TestPackageState_EmptyModelList(t *testing.T) {
	assert.Equal(t, statestore.PackageStateUnspecified, PackageState(nil))
}

func TestPackageState_AllFailed(t *testing.T) {
	s := []statestore.ModelState{statestore.ModelStateFailed, statestore.ModelStateFailed}
	assert.Equal(t, statestore.PackageStateError, PackageState(s))
}

func TestPackageState_MixedFailedRunning_IsDegradedNotError(t *testing.T) {
	s := []statestore.ModelState{statestore.ModelStateFailed, statestore.ModelStateRunning}
	assert.Equal(t, statestore.PackageStateDegraded, PackageState(s))
}

func TestPackageState_AllSucceeded(t *testing.T) {
	s := []statestore.ModelState{statestore.ModelStateSucceeded, statestore.ModelStateSucceeded}
	assert.Equal(t, statestore.PackageStateUnspecified, PackageState(s))
}

func TestPackageState_AllUnknown(t *testing.T) {
	s := []statestore.ModelState{statestore.ModelStateUnknown, statestore.ModelStateUnknown}
	assert.Equal(t, statestore.PackageStatePaused, PackageState(s))
}

func TestPackageState_Otherwise(t *testing.T) {
	s := []statestore.ModelState{statestore.ModelStateRunning, statestore.ModelStatePending}
	assert.Equal(t, statestore.PackageStateRunning, PackageState(s))
}

func TestNotifyPriorityFor(t *testing.T) {
	assert.Equal(t, PriorityHigh, NotifyPriorityFor(statestore.PackageStateError))
	assert.Equal(t, PriorityMed, NotifyPriorityFor(statestore.PackageStateDegraded))
	assert.Equal(t, PriorityLow, NotifyPriorityFor(statestore.PackageStateRunning))
}

func TestProblematicModels(t *testing.T) {
	models := map[string]statestore.ModelState{
		"m1": statestore.ModelStateRunning,
		"m2": statestore.ModelStateFailed,
	}
	assert.Equal(t, []string{"m2"}, ProblematicModels(models))
}

func TestHealthScore(t *testing.T) {
	s := []statestore.ModelState{statestore.ModelStateRunning, statestore.ModelStateFailed}
	assert.Equal(t, 50, HealthScore(s))
	assert.Equal(t, 100, HealthScore(nil))
}
