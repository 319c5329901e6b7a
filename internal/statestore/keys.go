// Package statestore implements the State Store (C3): canonical key layout
// for Model/Package/Scenario state and the exact enum<->string codecs of
// spec §6, grounded on original_source/src/player/statemanager/src/storage/mod.rs.
package statestore

import (
	"fmt"
	"strings"
)

// ModelState mirrors the ModelState enum of spec §3.
type ModelState int32

const (
	ModelStateUnspecified ModelState = iota
	ModelStatePending
	ModelStateRunning
	ModelStateSucceeded
	ModelStateFailed
	ModelStateUnknown
	ModelStateContainerCreating
	ModelStateCrashLoopBackOff
)

// PackageState mirrors the PackageState enum of spec §3.
type PackageState int32

const (
	PackageStateUnspecified PackageState = iota // idle
	PackageStateInitializing
	PackageStateRunning
	PackageStateDegraded
	PackageStateError
	PackageStatePaused
	PackageStateUpdating
)

// KeyFormatter produces the bit-exact canonical keys of spec §6.
type KeyFormatter struct{}

func (KeyFormatter) ModelStateKey(modelName string) string {
	return fmt.Sprintf("/model/%s/state", modelName)
}

func (KeyFormatter) PackageStateKey(packageName string) string {
	return fmt.Sprintf("/package/%s/state", packageName)
}

func (KeyFormatter) PackageModelsKey(packageName string) string {
	return fmt.Sprintf("/package/%s/models", packageName)
}

func (KeyFormatter) ScenarioStateKey(scenarioName string) string {
	return fmt.Sprintf("Scenario/%s/state", scenarioName)
}

func (KeyFormatter) ModelPrefix() string { return "/model/" }

func (KeyFormatter) PackagePrefix() string { return "/package/" }

// ExtractModelName recovers a model name from a "/model/{name}/state" key,
// returning false if the key does not match that shape.
func (KeyFormatter) ExtractModelName(key string) (string, bool) {
	const prefix, suffix = "/model/", "/state"
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
		return "", false
	}
	name := key[len(prefix) : len(key)-len(suffix)]
	if name == "" {
		return "", false
	}
	return name, true
}

// ExtractPackageName recovers a package name from a "/package/{name}/state" key.
func (KeyFormatter) ExtractPackageName(key string) (string, bool) {
	const prefix, suffix = "/package/", "/state"
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
		return "", false
	}
	name := key[len(prefix) : len(key)-len(suffix)]
	if name == "" {
		return "", false
	}
	return name, true
}

// StateConverter implements the bit-exact enum<->string encodings of spec §6.
// Note the intentional case inconsistency (e.g. PackageState "running" is
// lowercase but "Initializing" is not): this mirrors the original
// implementation's on-disk format and must be preserved exactly, since
// external readers depend on it.
type StateConverter struct{}

func (StateConverter) ModelStateToString(s ModelState) string {
	switch s {
	case ModelStateUnspecified:
		return "Unspecified"
	case ModelStatePending:
		return "Pending"
	case ModelStateRunning:
		return "Running"
	case ModelStateSucceeded:
		return "Succeeded"
	case ModelStateFailed:
		return "Failed"
	case ModelStateUnknown:
		return "Unknown"
	case ModelStateContainerCreating:
		return "ContainerCreating"
	case ModelStateCrashLoopBackOff:
		return "CrashLoopBackOff"
	default:
		return "Unknown"
	}
}

func (StateConverter) StringToModelState(s string) (ModelState, error) {
	switch s {
	case "Unspecified":
		return ModelStateUnspecified, nil
	case "Pending":
		return ModelStatePending, nil
	case "Running":
		return ModelStateRunning, nil
	case "Succeeded":
		return ModelStateSucceeded, nil
	case "Failed":
		return ModelStateFailed, nil
	case "Unknown":
		return ModelStateUnknown, nil
	case "ContainerCreating":
		return ModelStateContainerCreating, nil
	case "CrashLoopBackOff":
		return ModelStateCrashLoopBackOff, nil
	default:
		return ModelStateUnspecified, fmt.Errorf("unknown model state encoding: %q", s)
	}
}

func (StateConverter) PackageStateToString(s PackageState) string {
	switch s {
	case PackageStateUnspecified:
		return "idle"
	case PackageStateInitializing:
		return "Initializing"
	case PackageStateRunning:
		return "running"
	case PackageStateDegraded:
		return "degraded"
	case PackageStateError:
		return "error"
	case PackageStatePaused:
		return "paused"
	case PackageStateUpdating:
		return "Updating"
	default:
		return "idle"
	}
}

func (StateConverter) StringToPackageState(s string) (PackageState, error) {
	switch s {
	case "idle":
		return PackageStateUnspecified, nil
	case "Initializing":
		return PackageStateInitializing, nil
	case "running":
		return PackageStateRunning, nil
	case "degraded":
		return PackageStateDegraded, nil
	case "error":
		return PackageStateError, nil
	case "paused":
		return PackageStatePaused, nil
	case "Updating":
		return PackageStateUpdating, nil
	default:
		return PackageStateUnspecified, fmt.Errorf("unknown package state encoding: %q", s)
	}
}
