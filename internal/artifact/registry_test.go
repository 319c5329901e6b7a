package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piccolo-project/piccolo/internal/kvstore"
)

type seederStub struct{ seeded []string }

func (s *seederStub) SeedIdle(_ context.Context, name string) error {
	s.seeded = append(s.seeded, name)
	return nil
}

func TestRegistry_PutGetPackage(t *testing.T) {
	r := New(kvstore.NewMemStore(), nil)
	ctx := context.Background()
	pkg := Package{Name: "pkg1", Models: []ModelRef{{Name: "m1", Node: "nodeA"}}}
	require.NoError(t, r.PutPackage(ctx, pkg))

	got, err := r.GetPackage(ctx, "pkg1")
	require.NoError(t, err)
	assert.Equal(t, pkg, got)
}

func TestRegistry_PutScenarioSeedsIdle(t *testing.T) {
	seeder := &seederStub{}
	r := New(kvstore.NewMemStore(), seeder)
	ctx := context.Background()
	s := Scenario{Name: "sc1", Action: ActionLaunch, Target: "pkg1"}
	require.NoError(t, r.PutScenario(ctx, s))
	assert.Equal(t, []string{"sc1"}, seeder.seeded)
}

func TestRegistry_GetModelMissing(t *testing.T) {
	r := New(kvstore.NewMemStore(), nil)
	_, err := r.GetModel(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestRegistry_Withdraw(t *testing.T) {
	r := New(kvstore.NewMemStore(), nil)
	ctx := context.Background()
	require.NoError(t, r.PutModel(ctx, Model{Name: "m1"}))
	require.NoError(t, r.Withdraw(ctx, KindModel, "m1"))
	_, err := r.GetModel(ctx, "m1")
	assert.Error(t, err)
}
