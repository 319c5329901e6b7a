package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/piccolo-project/piccolo/internal/proto"
	"github.com/piccolo-project/piccolo/internal/statestore"
)

func container(name, state string) proto.ContainerInfo {
	return proto.ContainerInfo{
		ID:    name + "_id",
		Names: []string{name},
		State: map[string]string{"Status": state},
	}
}

func TestModelState_AllRunning(t *testing.T) {
	cs := []proto.ContainerInfo{container("c1", "running"), container("c2", "running")}
	assert.Equal(t, statestore.ModelStateRunning, ModelState(cs))
}

func TestModelState_AllExited(t *testing.T) {
	cs := []proto.ContainerInfo{container("c1", "exited"), container("c2", "exited")}
	assert.Equal(t, statestore.ModelStateSucceeded, ModelState(cs))
}

func TestModelState_SomeDead(t *testing.T) {
	cs := []proto.ContainerInfo{container("c1", "running"), container("c2", "dead")}
	assert.Equal(t, statestore.ModelStateFailed, ModelState(cs))
}

func TestModelState_AllPaused(t *testing.T) {
	cs := []proto.ContainerInfo{container("c1", "paused"), container("c2", "paused")}
	assert.Equal(t, statestore.ModelStateUnknown, ModelState(cs))
}

func TestModelState_EmptyContainers(t *testing.T) {
	assert.Equal(t, statestore.ModelStateUnknown, ModelState(nil))
}

func TestModelState_PureFunction(t *testing.T) {
	cs := []proto.ContainerInfo{container("c1", "dead")}
	assert.Equal(t, ModelState(cs), ModelState(cs))
}

func TestModelNameFromContainerName_WithSlash(t *testing.T) {
	assert.Equal(t, "model1", ModelNameFromContainerName("model1/container1"))
}

func TestModelNameFromContainerName_NoSlash(t *testing.T) {
	assert.Equal(t, "solo", ModelNameFromContainerName("solo"))
}

func TestContainerState_ProbesKeysInOrder(t *testing.T) {
	c := proto.ContainerInfo{State: map[string]string{"state": "running", "Status": "dead"}}
	assert.Equal(t, "dead", ContainerState(c))
}

func TestContainerState_MissingDefaultsToUnknown(t *testing.T) {
	c := proto.ContainerInfo{State: map[string]string{}}
	assert.Equal(t, "unknown", ContainerState(c))
}
