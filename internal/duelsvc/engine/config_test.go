package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRewardTableRowsSumToHundred(t *testing.T) {
	table := DefaultRewardTable()
	for count := 2; count <= 10; count++ {
		row, ok := table[count]
		require.True(t, ok, "missing row for %d participants", count)
		require.Len(t, row, count)

		sum := 0
		for _, pct := range row {
			assert.GreaterOrEqual(t, pct, 0)
			sum += pct
		}
		assert.Equal(t, 100, sum, "row for %d participants", count)
	}
}

func TestSharesReassembleDistributableExactly(t *testing.T) {
	table := DefaultRewardTable()
	amounts := []int64{1, 7, 95, 100, 101, 499, 1000}

	for count := 2; count <= 10; count++ {
		for _, distributable := range amounts {
			shares := table.Shares(count, distributable)
			require.Len(t, shares, count)

			var sum int64
			for _, s := range shares {
				assert.GreaterOrEqual(t, s, int64(0))
				sum += s
			}
			assert.Equal(t, distributable, sum, "count=%d distributable=%d", count, distributable)
		}
	}
}

func TestSharesRemainderGoesToWinner(t *testing.T) {
	table := RewardTable{3: {70, 30, 0}}
	shares := table.Shares(3, 95)

	// 95*70/100=66 and 95*30/100=28 leave 1 over, credited to rank 1
	assert.Equal(t, []int64{67, 28, 0}, shares)
}

func TestSharesUnknownCountIsWinnerTakeAll(t *testing.T) {
	table := RewardTable{}
	shares := table.Shares(4, 120)
	assert.Equal(t, []int64{120, 0, 0, 0}, shares)
}

func TestParseRewardTable(t *testing.T) {
	table, err := ParseRewardTable(`{"2":[100,0],"3":[60,40,0]}`)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 0}, table[2])
	assert.Equal(t, []int{60, 40, 0}, table[3])

	cases := []string{
		`not json`,
		`{"1":[100]}`,          // below minimum room size
		`{"2":[100]}`,          // row length mismatch
		`{"2":[90,5]}`,         // does not sum to 100
		`{"2":[110,-10]}`,      // negative share
		`{"x":[100,0]}`,        // non-numeric count
	}
	for _, raw := range cases {
		_, err := ParseRewardTable(raw)
		assert.Error(t, err, "input %q", raw)
	}
}
