// Package artifact implements the Artifact Registry (C2): persistence and
// retrieval of Scenario/Package/Model/Volume/Network/Node artifacts keyed by
// "{Kind}/{Name}" (spec §4.2).
package artifact

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/piccolo-project/piccolo/internal/kvstore"
)

// Kind is one of the artifact kinds addressable in the registry.
type Kind string

const (
	KindScenario Kind = "Scenario"
	KindPackage  Kind = "Package"
	KindModel    Kind = "Model"
	KindVolume   Kind = "Volume"
	KindNetwork  Kind = "Network"
	KindNode     Kind = "Node"
	KindPod      Kind = "Pod"
)

// ModelRef is one entry of a Package's model list (spec §3).
type ModelRef struct {
	Name      string
	Node      string
	Resources ModelResources
}

// ModelResources is the optional per-model resource binding (spec §3).
type ModelResources struct {
	Volume   string
	Network  string
	Realtime bool
}

// Package is the immutable Package artifact (spec §3).
type Package struct {
	Name   string
	Models []ModelRef
}

// ContainerSpec is one container within a Model's pod spec (spec §3).
type ContainerSpec struct {
	Name         string
	Image        string
	Ports        []string
	Env          map[string]string
	Command      []string
	VolumeMounts []string
}

// PodSpec is a Model's pod-like shape (spec §3).
type PodSpec struct {
	HostNetwork                   bool
	Containers                    []ContainerSpec
	Volumes                       map[string]string
	TerminationGracePeriodSeconds int32
}

// Model is the immutable Model artifact (spec §3).
type Model struct {
	Name        string
	Annotations map[string]string
	PodSpec     PodSpec
}

// ScenarioAction is one of the four scenario actions (spec §3).
type ScenarioAction string

const (
	ActionLaunch    ScenarioAction = "launch"
	ActionTerminate ScenarioAction = "terminate"
	ActionUpdate    ScenarioAction = "update"
	ActionRollback  ScenarioAction = "rollback"
)

// Scenario is the immutable Scenario artifact (spec §3).
type Scenario struct {
	Name      string
	Condition string
	Action    ScenarioAction
	Target    string // Package name
}

// AdmissionSeeder is called when a Scenario artifact is first admitted, to
// seed its lifecycle at "idle" (spec §4.2, invariant 4). It is satisfied by
// the scenarioSeeder wiring in cmd/apiserver.
type AdmissionSeeder interface {
	SeedIdle(ctx context.Context, scenarioName string) error
}

// Registry is the Artifact Registry (C2).
type Registry struct {
	kv     kvstore.Store
	seeder AdmissionSeeder
}

// New builds a Registry. seeder may be nil if this process does not run the
// scenario state machine (e.g. the node agent never admits Scenarios).
func New(kv kvstore.Store, seeder AdmissionSeeder) *Registry {
	return &Registry{kv: kv, seeder: seeder}
}

func key(kind Kind, name string) string {
	return fmt.Sprintf("%s/%s", kind, name)
}

// PutScenario stores a Scenario artifact and, on first admission, seeds its
// state-machine entry at idle.
func (r *Registry) PutScenario(ctx context.Context, s Scenario) error {
	_, getErr := r.kv.Get(ctx, key(KindScenario, s.Name))
	firstAdmission := errors.Is(getErr, kvstore.ErrNotFound)
	if err := r.put(ctx, KindScenario, s.Name, s); err != nil {
		return err
	}
	if r.seeder != nil && firstAdmission {
		if err := r.seeder.SeedIdle(ctx, s.Name); err != nil {
			return errors.Wrapf(err, "artifact: seed idle for scenario %q", s.Name)
		}
	}
	return nil
}

// GetScenario retrieves a Scenario artifact by name.
func (r *Registry) GetScenario(ctx context.Context, name string) (Scenario, error) {
	var s Scenario
	err := r.get(ctx, KindScenario, name, &s)
	return s, err
}

// PutPackage stores a Package artifact.
func (r *Registry) PutPackage(ctx context.Context, p Package) error {
	return r.put(ctx, KindPackage, p.Name, p)
}

// GetPackage retrieves a Package artifact by name.
func (r *Registry) GetPackage(ctx context.Context, name string) (Package, error) {
	var p Package
	err := r.get(ctx, KindPackage, name, &p)
	return p, err
}

// PutModel stores a Model artifact.
func (r *Registry) PutModel(ctx context.Context, m Model) error {
	return r.put(ctx, KindModel, m.Name, m)
}

// GetModel retrieves a Model artifact by name (spec invariant 1: every
// Model named in a Package must resolve here).
func (r *Registry) GetModel(ctx context.Context, name string) (Model, error) {
	var m Model
	err := r.get(ctx, KindModel, name, &m)
	return m, err
}

// Withdraw removes an artifact record of the given kind and name.
func (r *Registry) Withdraw(ctx context.Context, kind Kind, name string) error {
	return r.kv.Delete(ctx, key(kind, name))
}

// ListScenarios scans and returns every stored Scenario, used by the
// reconciler's periodic cron-driven sweep.
func (r *Registry) ListScenarios(ctx context.Context) ([]Scenario, error) {
	kvs, err := r.kv.Scan(ctx, string(KindScenario)+"/")
	if err != nil {
		return nil, errors.Wrap(err, "artifact: scan scenarios")
	}
	var out []Scenario
	for _, kv := range kvs {
		var s Scenario
		if err := json.Unmarshal([]byte(kv.Value), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// ScenariosTargeting scans every stored Scenario and returns those whose
// Target names packageName, used to resolve which scenarios need
// reconciliation when a Package's derived state turns Error (spec §2 data
// flow: "When C6 yields Error, C8 asks C9 to reconcile").
func (r *Registry) ScenariosTargeting(ctx context.Context, packageName string) ([]Scenario, error) {
	kvs, err := r.kv.Scan(ctx, string(KindScenario)+"/")
	if err != nil {
		return nil, errors.Wrap(err, "artifact: scan scenarios")
	}
	var out []Scenario
	for _, kv := range kvs {
		var s Scenario
		if err := json.Unmarshal([]byte(kv.Value), &s); err != nil {
			continue
		}
		if s.Target == packageName {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Registry) put(ctx context.Context, kind Kind, name string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "artifact: marshal %s/%s", kind, name)
	}
	if err := r.kv.Put(ctx, key(kind, name), string(b)); err != nil {
		return errors.Wrapf(err, "artifact: put %s/%s", kind, name)
	}
	return nil
}

func (r *Registry) get(ctx context.Context, kind Kind, name string, v interface{}) error {
	raw, err := r.kv.Get(ctx, key(kind, name))
	if err != nil {
		return errors.Wrapf(err, "artifact: get %s/%s", kind, name)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return errors.Wrapf(err, "artifact: unmarshal %s/%s", kind, name)
	}
	return nil
}
