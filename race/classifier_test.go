package race

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreezy/sloth-race-watcher/types"
)

func TestBands(t *testing.T) {
	cases := []struct {
		n, adultEnd, teenEnd int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{2, 1, 2},
		{3, 1, 2},
		{10, 4, 7},
		{100, 34, 67},
	}
	for _, c := range cases {
		adultEnd, teenEnd := Bands(c.n)
		assert.Equal(t, c.adultEnd, adultEnd, "adultEnd n=%d", c.n)
		assert.Equal(t, c.teenEnd, teenEnd, "teenEnd n=%d", c.n)
	}
}

func TestClassifyOnlyReturnsChanges(t *testing.T) {
	ranked := make([]Ranked, 10)
	for i := range ranked {
		ranked[i] = Ranked{ProfileID: int64(i + 1), Class: types.ClassBaby}
	}
	ranked[0].Class = types.ClassAdult
	ranked[9].Class = types.ClassAdult

	changes := Classify(ranked)
	got := map[int64]types.Class{}
	for _, c := range changes {
		got[c.ProfileID] = c.To
	}
	require.Equal(t, map[int64]types.Class{
		2:  types.ClassAdult,
		3:  types.ClassAdult,
		4:  types.ClassAdult,
		5:  types.ClassTeen,
		6:  types.ClassTeen,
		7:  types.ClassTeen,
		10: types.ClassBaby,
	}, got)

	counts := map[types.Class]int{}
	for i := range ranked {
		counts[ClassAt(i, len(ranked))]++
	}
	require.Equal(t, 4, counts[types.ClassAdult])
	require.Equal(t, 3, counts[types.ClassTeen])
	require.Equal(t, 3, counts[types.ClassBaby])
	require.Empty(t, Classify(nil))
}

func TestClassForRank(t *testing.T) {
	c := NewClassifier(DefaultConfig().Classes)

	_, ok := c.ClassForRank(0, 0)
	require.False(t, ok)

	cases := []struct {
		higher, total int64
		class         types.Class
	}{
		{0, 1, types.ClassAdult},
		{0, 3, types.ClassAdult},
		{1, 3, types.ClassTeen},
		{2, 3, types.ClassBaby},
		{3332, 10000, types.ClassAdult},
		{3333, 10000, types.ClassTeen},
		{6665, 10000, types.ClassTeen},
		{6666, 10000, types.ClassBaby},
		{9, 10, types.ClassBaby},
	}
	for _, tc := range cases {
		class, ok := c.ClassForRank(tc.higher, tc.total)
		require.True(t, ok)
		assert.Equal(t, tc.class, class, "higher=%d total=%d", tc.higher, tc.total)
	}
}

func TestPoolSplit(t *testing.T) {
	total := decimal.NewFromInt(1000)
	assert.True(t, ClassPool(total, 60).Equal(decimal.NewFromInt(600)))
	assert.True(t, ClassPool(total, 30).Equal(decimal.NewFromInt(300)))
	assert.True(t, ClassPool(total, 10).Equal(decimal.NewFromInt(100)))
	assert.True(t, PerParticipant(decimal.NewFromInt(600), 0).IsZero())
	assert.True(t, PerParticipant(decimal.NewFromInt(600), 4).Equal(decimal.NewFromInt(150)))

	pool := NewPool(DefaultConfig().Pool)
	b := pool.Split(total, map[types.Class]int64{types.ClassAdult: 3, types.ClassTeen: 0})
	require.Len(t, b.Shares, 3)
	assert.True(t, b.Share(types.ClassAdult).PerParticipant.Equal(decimal.NewFromInt(200)))
	assert.True(t, b.Share(types.ClassTeen).Pool.Equal(decimal.NewFromInt(300)))
	assert.True(t, b.Share(types.ClassTeen).PerParticipant.IsZero())
	assert.Equal(t, int64(10), b.Share(types.ClassBaby).Percent)
}
