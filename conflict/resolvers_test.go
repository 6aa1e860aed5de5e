package conflict

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	synccore "github.com/c0deZ3R0/go-sync-core"
)

func detect(t *testing.T, local, remote synccore.Record, lv, rv int64) *Conflict {
	t.Helper()
	c := NewDetector().Detect("e1", "tasks", local, remote, lv, rv)
	require.NotNil(t, c)
	return c
}

// assertWholeSide checks the side-resolution invariant: the winner
// contributes every conflicting field, the loser none.
func assertWholeSide(t *testing.T, c *Conflict, res *Resolution, local bool) {
	t.Helper()
	all := c.Fields()
	sort.Strings(all)
	if local {
		assert.Equal(t, all, res.FieldsUsedFromLocal)
		assert.Empty(t, res.FieldsUsedFromRemote)
		assert.Equal(t, c.LocalData, res.ResolvedData)
	} else {
		assert.Equal(t, all, res.FieldsUsedFromRemote)
		assert.Empty(t, res.FieldsUsedFromLocal)
		assert.Equal(t, c.RemoteData, res.ResolvedData)
	}
}

func TestResolverForTable(t *testing.T) {
	for _, s := range []Strategy{
		StrategyLocalWins, StrategyRemoteWins, StrategyNewestWins, StrategyTimestampWins,
		StrategyOldestWins, StrategyIntelligentMerge, StrategyManual, StrategyCustom, StrategyMergeOrPrompt,
	} {
		r, ok := ResolverFor(s)
		require.True(t, ok, "strategy %s", s)
		require.NotNil(t, r)
	}

	_, ok := ResolverFor(Strategy("bogus"))
	assert.False(t, ok)
}

func TestLocalAndRemoteWins(t *testing.T) {
	local := synccore.Record{"id": "1", "title": "local"}
	remote := synccore.Record{"id": "1", "title": "remote"}
	c := detect(t, local, remote, 1, 2)

	res, err := (&LocalWinsResolver{}).Resolve(context.Background(), c)
	require.NoError(t, err)
	assertWholeSide(t, c, res, true)

	res, err = (&RemoteWinsResolver{}).Resolve(context.Background(), c)
	require.NoError(t, err)
	assertWholeSide(t, c, res, false)
}

func TestNewestWinsByTimestamp(t *testing.T) {
	local := synccore.Record{"id": "1", "title": "local", "updatedAt": "2026-03-01T10:00:00Z"}
	remote := synccore.Record{"id": "1", "title": "remote", "updatedAt": "2026-03-01T09:00:00Z"}
	c := detect(t, local, remote, 1, 2)

	res, err := (&NewestWinsResolver{}).Resolve(context.Background(), c)
	require.NoError(t, err)
	assertWholeSide(t, c, res, true)
}

func TestNewestWinsTiePrefersRemote(t *testing.T) {
	ts := "2026-03-01T10:00:00Z"
	local := synccore.Record{"id": "1", "title": "local", "updatedAt": ts}
	remote := synccore.Record{"id": "1", "title": "remote", "updatedAt": ts}
	c := detect(t, local, remote, 1, 2)

	res, err := (&NewestWinsResolver{}).Resolve(context.Background(), c)
	require.NoError(t, err)
	assertWholeSide(t, c, res, false)
}

func TestNewestWinsVersionFallback(t *testing.T) {
	// No timestamps on either side: the higher version wins.
	local := synccore.Record{"id": "1", "title": "local"}
	remote := synccore.Record{"id": "1", "title": "remote"}
	c := detect(t, local, remote, 5, 2)

	res, err := (&NewestWinsResolver{}).Resolve(context.Background(), c)
	require.NoError(t, err)
	assertWholeSide(t, c, res, true)
}

func TestOldestWinsInverts(t *testing.T) {
	local := synccore.Record{"id": "1", "title": "local", "updatedAt": "2026-03-01T10:00:00Z"}
	remote := synccore.Record{"id": "1", "title": "remote", "updatedAt": "2026-03-01T09:00:00Z"}
	c := detect(t, local, remote, 1, 2)

	res, err := (&OldestWinsResolver{}).Resolve(context.Background(), c)
	require.NoError(t, err)
	assertWholeSide(t, c, res, false)
}

func TestManualResolverDefersEverything(t *testing.T) {
	local := synccore.Record{"id": "1", "title": "local", "status": "open"}
	remote := synccore.Record{"id": "1", "title": "remote", "status": "done"}
	c := detect(t, local, remote, 1, 2)

	res, err := (&ManualResolver{}).Resolve(context.Background(), c)
	require.NoError(t, err)

	assert.True(t, res.RequiresUserIntervention)
	assert.ElementsMatch(t, c.Fields(), res.FieldsRequiringManualReview)
	assert.Empty(t, res.FieldsUsedFromLocal)
	assert.Empty(t, res.FieldsUsedFromRemote)
}

func TestCustomResolverWithMergeFunc(t *testing.T) {
	local := synccore.Record{"id": "1", "title": "local", "notes": "keep"}
	remote := synccore.Record{"id": "1", "title": "remote", "notes": "drop"}
	c := detect(t, local, remote, 1, 2)

	r := &CustomResolver{
		Merge: func(ctx context.Context, c *Conflict) (synccore.Record, error) {
			merged := synccore.CloneRecord(c.RemoteData)
			merged["notes"] = c.LocalData["notes"]
			return merged, nil
		},
	}

	res, err := r.Resolve(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StrategyCustom, res.Strategy)
	assert.Equal(t, []string{"notes"}, res.FieldsUsedFromLocal)
	assert.Equal(t, []string{"title"}, res.FieldsUsedFromRemote)
	assert.Equal(t, "keep", res.ResolvedData["notes"])
}

func TestCustomResolverErrorPropagates(t *testing.T) {
	c := detect(t,
		synccore.Record{"id": "1", "title": "a"},
		synccore.Record{"id": "1", "title": "b"}, 1, 2)

	r := &CustomResolver{
		Merge: func(ctx context.Context, c *Conflict) (synccore.Record, error) {
			return nil, fmt.Errorf("merge declined")
		},
	}
	_, err := r.Resolve(context.Background(), c)
	assert.Error(t, err)
}

func TestCustomResolverNilMergeFallsBack(t *testing.T) {
	c := detect(t,
		synccore.Record{"id": "1", "title": "a"},
		synccore.Record{"id": "1", "title": "b"}, 1, 2)

	res, err := (&CustomResolver{}).Resolve(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StrategyCustom, res.Strategy)
	assert.NotEmpty(t, res.ResolvedData)
}

func TestMergeOrPromptUsesMerge(t *testing.T) {
	c := detect(t,
		synccore.Record{"id": "1", "title": "a"},
		synccore.Record{"id": "1", "title": "b"}, 1, 2)

	res, err := (&MergeOrPromptResolver{}).Resolve(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StrategyMergeOrPrompt, res.Strategy)
	assert.False(t, res.RequiresUserIntervention)
}
