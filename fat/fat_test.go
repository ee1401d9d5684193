package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sv39os/kernel/blkcache"
	"github.com/sv39os/kernel/blkdev"
)

func newTestTable(t *testing.T) *Table_t {
	dev := blkdev.NewMemDisk(64)
	cache := blkcache.New(8, dev, 0, nil)
	return New(cache, 0, 32, blkdev.SectorSize, 512)
}

func TestSetNextWritesBothCopiesAndGetStripsReservedBits(t *testing.T) {
	tb := newTestTable(t)
	tb.SetNext(5, 0xF0000009)
	assert.Equal(t, uint32(9), tb.Get(5))
}

func TestSetEndMarksEndOfChain(t *testing.T) {
	tb := newTestTable(t)
	tb.SetEnd(5)
	assert.GreaterOrEqual(t, tb.Get(5), uint32(EndOfChain))
}

func TestNextFreeClusterSkipsReservedAndOccupied(t *testing.T) {
	tb := newTestTable(t)
	tb.SetNext(2, 3)
	tb.SetNext(3, 0x0FFFFFFF)
	free := tb.NextFreeCluster(0)
	assert.Equal(t, 4, free)
}

func TestCountChainAndChainAllWalkToTerminator(t *testing.T) {
	tb := newTestTable(t)
	tb.SetNext(2, 3)
	tb.SetNext(3, 4)
	tb.SetEnd(4)

	assert.Equal(t, 3, tb.CountChain(2))
	assert.Equal(t, []int{2, 3, 4}, tb.ChainAll(2))
}

func TestChainAllOnFreeClusterIsEmpty(t *testing.T) {
	tb := newTestTable(t)
	assert.Empty(t, tb.ChainAll(10))
}
