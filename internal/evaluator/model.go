package evaluator

import (
	"strings"

	"github.com/piccolo-project/piccolo/internal/proto"
	"github.com/piccolo-project/piccolo/internal/statestore"
)

// ModelState aggregates a Model's containers into a ModelState, applying the
// first matching rule in order (spec §4.5):
//  1. empty list -> Unknown
//  2. any container "dead" -> Failed
//  3. all containers "exited" -> Succeeded
//  4. all containers "paused" -> Unknown (the LLD's "paused" encoding)
//  5. otherwise -> Running
func ModelState(containers []proto.ContainerInfo) statestore.ModelState {
	if len(containers) == 0 {
		return statestore.ModelStateUnknown
	}

	var pausedCount, exitedCount, deadCount int
	for _, c := range containers {
		switch ContainerState(c) {
		case "dead":
			deadCount++
		case "exited":
			exitedCount++
		case "paused":
			pausedCount++
		}
	}

	total := len(containers)
	switch {
	case deadCount > 0:
		return statestore.ModelStateFailed
	case exitedCount == total:
		return statestore.ModelStateSucceeded
	case pausedCount == total:
		return statestore.ModelStateUnknown
	default:
		return statestore.ModelStateRunning
	}
}

// ModelNameFromContainerName derives a model name from a container name
// (spec §4.5): the substring before the first "/", or the whole name if
// there is no "/". This is a stopgap rule (spec §9 open questions) kept for
// spec parity; a production system would use explicit labels/annotations.
func ModelNameFromContainerName(containerName string) string {
	if idx := strings.Index(containerName, "/"); idx >= 0 {
		return containerName[:idx]
	}
	return containerName
}

// GroupByModel partitions a ContainerList into per-model container slices
// using ModelNameFromContainerName on each container's first name.
func GroupByModel(list proto.ContainerList) map[string][]proto.ContainerInfo {
	grouped := make(map[string][]proto.ContainerInfo)
	for _, c := range list.Containers {
		if len(c.Names) == 0 {
			continue
		}
		model := ModelNameFromContainerName(c.Names[0])
		grouped[model] = append(grouped[model], c)
	}
	return grouped
}

// EvaluateModelStates evaluates ModelState for every model observed in a
// ContainerList.
func EvaluateModelStates(list proto.ContainerList) map[string]statestore.ModelState {
	grouped := GroupByModel(list)
	states := make(map[string]statestore.ModelState, len(grouped))
	for model, containers := range grouped {
		states[model] = ModelState(containers)
	}
	return states
}
