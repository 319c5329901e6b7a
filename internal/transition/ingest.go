package transition

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/piccolo-project/piccolo/internal/evaluator"
	"github.com/piccolo-project/piccolo/internal/proto"
	"github.com/piccolo-project/piccolo/internal/statestore"
)

// PackageErrorHook is invoked once when a package's derived state
// transitions into Error (not on every subsequent ingestion cycle while it
// remains Error), so the caller can ask the reconciler to act (spec §2:
// "When C6 yields Error, C8 asks C9 to reconcile"). problematicModels names
// the Failed/CrashLoopBackOff models responsible (spec §7 item 3).
type PackageErrorHook func(ctx context.Context, packageName string, problematicModels []string)

// SetPackageErrorHook registers the hook. Nil disables the callback.
func (e *Engine) SetPackageErrorHook(h PackageErrorHook) {
	e.packageErrorHook = h
}

// IngestContainerList implements C10's periodic forward, routed through
// C4 (container state), C5 (model state), C6 (package state) and persisted
// via C3 (spec §2 data flow). It serves StateManagerConnection's
// SendChangedContainerList, the node agent's upload path, distinct from the
// command path modeled by NodeAgentServer.
func (e *Engine) IngestContainerList(ctx context.Context, list proto.ContainerList) proto.ReconcileResponse {
	modelStates := evaluator.EvaluateModelStates(list)
	for name, state := range modelStates {
		if err := e.store.PutModelState(ctx, name, state); err != nil {
			logrus.WithError(err).WithField("model", name).Error("ingest: failed to persist model state")
		}
	}

	pkgModels, err := e.store.AllPackageModels(ctx)
	if err != nil {
		return proto.ReconcileResponse{Status: 1, Desc: "failed to resolve affected packages"}
	}

	for pkgName, models := range pkgModels {
		affected := false
		for _, m := range models {
			if _, ok := modelStates[m]; ok {
				affected = true
				break
			}
		}
		if !affected {
			continue
		}
		e.recomputePackageState(ctx, pkgName, models)
	}

	return proto.ReconcileResponse{Status: 0, Desc: "ingested"}
}

func (e *Engine) recomputePackageState(ctx context.Context, pkgName string, models []string) {
	modelStateByName := make(map[string]statestore.ModelState, len(models))
	states := make([]statestore.ModelState, 0, len(models))
	for _, m := range models {
		state, ok := e.store.GetModelState(ctx, m)
		if !ok {
			// A model C3 has no record of is treated as Failed for
			// aggregation, not Unknown (spec §4.6, §8: "missing m counts
			// as Failed").
			state = statestore.ModelStateFailed
		}
		modelStateByName[m] = state
		states = append(states, state)
	}

	prevState, hadPrev := e.store.GetPackageState(ctx, pkgName)
	newState := evaluator.PackageState(states)
	if err := e.store.PutPackageState(ctx, pkgName, newState); err != nil {
		logrus.WithError(err).WithField("package", pkgName).Error("ingest: failed to persist package state")
		return
	}

	// Only an old != new transition into Error is notify-worthy; a package
	// that stays Error across repeated ingestion cycles must not refire the
	// hook every time (evaluator.NotifyPriorityFor's own contract: "only a
	// transition should enqueue a notification").
	transitioned := !hadPrev || prevState != newState
	if !transitioned || evaluator.NotifyPriorityFor(newState) != evaluator.PriorityHigh {
		return
	}
	if e.packageErrorHook != nil {
		e.packageErrorHook(ctx, pkgName, evaluator.ProblematicModels(modelStateByName))
	}
}
