package accnt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUtaddAndSystaddAccumulate(t *testing.T) {
	var a Accnt_t
	a.Utadd(100)
	a.Utadd(50)
	a.Systadd(25)
	assert.EqualValues(t, 150, a.Userns)
	assert.EqualValues(t, 25, a.Sysns)
}

func TestAddMergesChildIntoParent(t *testing.T) {
	var parent, child Accnt_t
	parent.Utadd(10)
	child.Utadd(5)
	child.Systadd(3)

	parent.Add(&child)
	assert.EqualValues(t, 15, parent.Userns)
	assert.EqualValues(t, 3, parent.Sysns)
}

func TestToTmsConvertsNanosecondsToTicks(t *testing.T) {
	var a Accnt_t
	a.Utadd(int64(1e9)) // one second
	a.Systadd(int64(2e9))

	tms := a.ToTms(int64(5e8), int64(1e9))
	assert.EqualValues(t, 100, tms.Utime)
	assert.EqualValues(t, 200, tms.Stime)
	assert.EqualValues(t, 50, tms.Cutime)
	assert.EqualValues(t, 100, tms.Cstime)
}
