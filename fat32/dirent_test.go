package fat32

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatShortNameUppercasesPadsAndSplitsOnLastDot(t *testing.T) {
	sn := FormatShortName("readme.txt")
	assert.Equal(t, "README  ", string(sn.Base[:]))
	assert.Equal(t, "TXT", string(sn.Ext[:]))
	assert.Equal(t, "README.TXT", sn.String())
}

func TestFormatShortNameNoExtension(t *testing.T) {
	sn := FormatShortName("noext")
	assert.Equal(t, "NOEXT", sn.String())
}

func TestFormatShortNameTruncatesOverlongParts(t *testing.T) {
	sn := FormatShortName("averylongfilename.extra")
	assert.Len(t, sn.String(), len("AVERYLON")+1+len("EXT"))
}

func TestShortNameChecksumIsDeterministic(t *testing.T) {
	sn := FormatShortName("hello.txt")
	c1 := ShortNameChecksum(sn)
	c2 := ShortNameChecksum(sn)
	assert.Equal(t, c1, c2)

	other := FormatShortName("world.txt")
	assert.NotEqual(t, c1, ShortNameChecksum(other))
}

func TestSplitAndJoinLongNameRoundTrips(t *testing.T) {
	name := "a rather long file name that needs more than one fragment.txt"
	sn := FormatShortName("longname.txt")
	sum := ShortNameChecksum(sn)

	frags := SplitLongName(name, sum)
	assert.Greater(t, len(frags), 1)
	assert.True(t, IsLastLongEntry(frags[0].Order), "on-disk order 0 holds the last fragment")
	assert.Equal(t, 1, LongEntryIndex(frags[len(frags)-1].Order))

	got := JoinLongName(frags)
	assert.Equal(t, name, got)
}

func TestSplitLongNameShortNameFitsOneFragmentWithTerminator(t *testing.T) {
	frags := SplitLongName("short", 0)
	assert.Len(t, frags, 1)
	assert.Equal(t, "short", JoinLongName(frags))
}
