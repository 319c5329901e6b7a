package statestore

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/piccolo-project/piccolo/internal/kvstore"
)

// Store is the State Store (C3): it persists per-resource current state at
// the canonical keys of spec §6 and derives the package->models reverse
// index. Grounded on
// original_source/src/player/statemanager/src/storage/etcd_storage.rs.
type Store struct {
	kv        kvstore.Store
	keys      KeyFormatter
	convert   StateConverter
}

// New wraps a KV store as a State Store.
func New(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

// PutModelState stores a model's current state.
func (s *Store) PutModelState(ctx context.Context, modelName string, state ModelState) error {
	key := s.keys.ModelStateKey(modelName)
	value := s.convert.ModelStateToString(state)
	if err := s.kv.Put(ctx, key, value); err != nil {
		logrus.WithError(err).WithField("model", modelName).Error("failed to save model state")
		return err
	}
	return nil
}

// GetModelState retrieves a model's current state. Per the "observation
// gaps" error-handling policy (spec §7 item 4), storage errors and
// unparseable encodings are logged and reported as "state absent" (ok=false)
// rather than surfaced as errors, since callers fall back to treating a
// missing model as Failed (spec §4.6).
func (s *Store) GetModelState(ctx context.Context, modelName string) (state ModelState, ok bool) {
	key := s.keys.ModelStateKey(modelName)
	value, err := s.kv.Get(ctx, key)
	if err != nil {
		logrus.WithError(err).WithField("model", modelName).Debug("model state absent")
		return ModelStateUnspecified, false
	}
	state, err = s.convert.StringToModelState(value)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"model": modelName, "value": value}).Warn("unparseable model state")
		return ModelStateUnspecified, false
	}
	return state, true
}

// PutPackageState stores a package's current state.
func (s *Store) PutPackageState(ctx context.Context, packageName string, state PackageState) error {
	key := s.keys.PackageStateKey(packageName)
	value := s.convert.PackageStateToString(state)
	if err := s.kv.Put(ctx, key, value); err != nil {
		logrus.WithError(err).WithField("package", packageName).Error("failed to save package state")
		return err
	}
	return nil
}

// GetPackageState retrieves a package's current state; see GetModelState for
// the absent/unparseable handling policy.
func (s *Store) GetPackageState(ctx context.Context, packageName string) (state PackageState, ok bool) {
	key := s.keys.PackageStateKey(packageName)
	value, err := s.kv.Get(ctx, key)
	if err != nil {
		logrus.WithError(err).WithField("package", packageName).Debug("package state absent")
		return PackageStateUnspecified, false
	}
	state, err = s.convert.StringToPackageState(value)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"package": packageName, "value": value}).Warn("unparseable package state")
		return PackageStateUnspecified, false
	}
	return state, true
}

// GetAllModelStates scans every model state record.
func (s *Store) GetAllModelStates(ctx context.Context) (map[string]ModelState, error) {
	kvs, err := s.kv.Scan(ctx, s.keys.ModelPrefix())
	if err != nil {
		logrus.WithError(err).Error("failed to get all model states")
		return nil, err
	}
	states := make(map[string]ModelState, len(kvs))
	for _, kv := range kvs {
		name, ok := s.keys.ExtractModelName(kv.Key)
		if !ok {
			continue
		}
		state, err := s.convert.StringToModelState(kv.Value)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"key": kv.Key, "value": kv.Value}).Warn("unparseable model state")
			continue
		}
		states[name] = state
	}
	return states, nil
}

// GetAllPackageStates scans every package state record.
func (s *Store) GetAllPackageStates(ctx context.Context) (map[string]PackageState, error) {
	kvs, err := s.kv.Scan(ctx, s.keys.PackagePrefix())
	if err != nil {
		logrus.WithError(err).Error("failed to get all package states")
		return nil, err
	}
	states := make(map[string]PackageState, len(kvs))
	for _, kv := range kvs {
		name, ok := s.keys.ExtractPackageName(kv.Key)
		if !ok {
			continue
		}
		state, err := s.convert.StringToPackageState(kv.Value)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"key": kv.Key, "value": kv.Value}).Warn("unparseable package state")
			continue
		}
		states[name] = state
	}
	return states, nil
}

// GetPackageModels returns the models belonging to a package, or an empty
// slice if the relationship has never been written (mirrors the Rust
// original's "return empty list if not found" behavior).
func (s *Store) GetPackageModels(ctx context.Context, packageName string) []string {
	key := s.keys.PackageModelsKey(packageName)
	value, err := s.kv.Get(ctx, key)
	if err != nil {
		logrus.WithError(err).WithField("package", packageName).Debug("package models absent")
		return nil
	}
	parts := strings.Split(value, ",")
	models := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			models = append(models, p)
		}
	}
	return models
}

// PutPackageModels stores the package->models relationship.
func (s *Store) PutPackageModels(ctx context.Context, packageName string, modelNames []string) error {
	key := s.keys.PackageModelsKey(packageName)
	value := strings.Join(modelNames, ",")
	if err := s.kv.Put(ctx, key, value); err != nil {
		logrus.WithError(err).WithField("package", packageName).Error("failed to save package models")
		return err
	}
	return nil
}

// AllPackageModels scans every package->models relationship, for resolving
// which packages are affected by a newly observed model state (spec §2 data
// flow: C10 -> C8 -> C4/C5/C6 -> C3).
func (s *Store) AllPackageModels(ctx context.Context) (map[string][]string, error) {
	kvs, err := s.kv.Scan(ctx, s.keys.PackagePrefix())
	if err != nil {
		logrus.WithError(err).Error("failed to scan package models")
		return nil, err
	}
	const suffix = "/models"
	out := make(map[string][]string)
	for _, kv := range kvs {
		if !strings.HasSuffix(kv.Key, suffix) {
			continue
		}
		name, ok := strings.CutPrefix(kv.Key, "/package/")
		if !ok {
			continue
		}
		name = strings.TrimSuffix(name, suffix)
		if name == "" {
			continue
		}
		var models []string
		for _, p := range strings.Split(kv.Value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				models = append(models, p)
			}
		}
		out[name] = models
	}
	return out, nil
}

// PutScenarioState stores a scenario's current state, persisted as a plain
// string (the scenario state space of spec §4.7 is small and not shared
// with any other resource's encoding table).
func (s *Store) PutScenarioState(ctx context.Context, scenarioName, state string) error {
	key := s.keys.ScenarioStateKey(scenarioName)
	return s.kv.Put(ctx, key, state)
}

// GetScenarioState retrieves a scenario's current state.
func (s *Store) GetScenarioState(ctx context.Context, scenarioName string) (string, bool) {
	key := s.keys.ScenarioStateKey(scenarioName)
	value, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", false
	}
	return value, true
}
