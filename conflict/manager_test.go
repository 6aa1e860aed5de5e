package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	synccore "github.com/c0deZ3R0/go-sync-core"
)

func TestManagerDetectPublishes(t *testing.T) {
	m := NewManager()
	defer m.Close()

	detected := make(chan *Conflict, 1)
	defer m.OnConflictDetected(func(c *Conflict) { detected <- c })()

	c := m.DetectConflict("1", "tasks",
		synccore.Record{"id": "1", "title": "a"},
		synccore.Record{"id": "1", "title": "b"}, 1, 2)
	require.NotNil(t, c)

	select {
	case got := <-detected:
		assert.Equal(t, "1", got.EntityID)
	case <-time.After(time.Second):
		t.Fatal("detected conflict was not published")
	}
}

func TestManagerDetectNoConflictNoPublish(t *testing.T) {
	m := NewManager()
	defer m.Close()

	detected := make(chan *Conflict, 1)
	defer m.OnConflictDetected(func(c *Conflict) { detected <- c })()

	c := m.DetectConflict("1", "tasks",
		synccore.Record{"id": "1", "title": "a"},
		synccore.Record{"id": "1", "title": "b"}, 2, 2)
	assert.Nil(t, c)

	select {
	case <-detected:
		t.Fatal("nothing should be published for equal versions")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManagerCollectionStrategyOverride(t *testing.T) {
	m := NewManager()
	defer m.Close()

	require.NoError(t, m.SetCollectionStrategy("tasks", StrategyLocalWins))
	assert.Error(t, m.SetCollectionStrategy("tasks", Strategy("bogus")))

	c := m.DetectConflict("1", "tasks",
		synccore.Record{"id": "1", "title": "local"},
		synccore.Record{"id": "1", "title": "remote"}, 1, 2)
	require.NotNil(t, c)

	res, err := m.ResolveConflict(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StrategyLocalWins, res.Strategy)
	assert.Equal(t, "local", res.ResolvedData["title"])

	// Removing the override restores the default (newestWins falls back to
	// version comparison here: remote is higher).
	m.RemoveCollectionResolver("tasks")
	res, err = m.ResolveConflict(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StrategyNewestWins, res.Strategy)
	assert.Equal(t, "remote", res.ResolvedData["title"])
}

type decliningResolver struct{}

func (decliningResolver) Resolve(ctx context.Context, c *Conflict) (*Resolution, error) {
	return (&LocalWinsResolver{}).Resolve(ctx, c)
}
func (decliningResolver) CanResolve(c *Conflict) bool { return false }
func (decliningResolver) Name() string                { return "declining" }

func TestManagerFallbackWhenOverrideDeclines(t *testing.T) {
	m := NewManager()
	defer m.Close()

	require.NoError(t, m.SetCollectionResolver("tasks", decliningResolver{}))

	c := m.DetectConflict("1", "tasks",
		synccore.Record{"id": "1", "title": "local"},
		synccore.Record{"id": "1", "title": "remote"}, 1, 2)
	require.NotNil(t, c)

	res, err := m.ResolveConflict(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StrategyNewestWins, res.Strategy, "declined override must fall back to default")
}

func TestManagerResolvePublishes(t *testing.T) {
	m := NewManager()
	defer m.Close()

	resolved := make(chan *Resolution, 1)
	defer m.OnConflictResolved(func(r *Resolution) { resolved <- r })()

	c := m.DetectConflict("1", "tasks",
		synccore.Record{"id": "1", "title": "a"},
		synccore.Record{"id": "1", "title": "b"}, 1, 2)
	require.NotNil(t, c)

	_, err := m.ResolveConflict(context.Background(), c)
	require.NoError(t, err)

	select {
	case <-resolved:
	case <-time.After(time.Second):
		t.Fatal("resolution was not published")
	}
}

func TestManagerResolveNilConflict(t *testing.T) {
	m := NewManager()
	defer m.Close()

	_, err := m.ResolveConflict(context.Background(), nil)
	assert.Error(t, err)
}
