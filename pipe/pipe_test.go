package pipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv39os/kernel/defs"
)

func withNoopYield(fn func()) {
	old := Yield_f
	Yield_f = func() {}
	defer func() { Yield_f = old }()
	fn()
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	withNoopYield(func() {
		r, w := New()
		n, err := w.Write([]byte("hello"))
		require.Equal(t, defs.Err_t(0), err)
		assert.Equal(t, 5, n)

		buf := make([]byte, 5)
		n, err = r.Read(buf)
		require.Equal(t, defs.Err_t(0), err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "hello", string(buf))
	})
}

func TestReadReturnsEOFOnceEmptyAndAllWritersClosed(t *testing.T) {
	withNoopYield(func() {
		r, w := New()
		w.Close()

		n, err := r.Read(make([]byte, 4))
		assert.Equal(t, defs.Err_t(0), err)
		assert.Zero(t, n)
	})
}

func TestWriteFailsOnceAllReadersClosed(t *testing.T) {
	withNoopYield(func() {
		r, w := New()
		r.Close()

		_, err := w.Write([]byte("x"))
		assert.Equal(t, defs.EBADF, err)
	})
}

func TestWriteFillingBufferExactlySucceeds(t *testing.T) {
	withNoopYield(func() {
		_, w := New()
		payload := make([]byte, Size)
		n, err := w.Write(payload)
		require.Equal(t, defs.Err_t(0), err)
		assert.Equal(t, Size, n)
	})
}

func TestReadYieldsWhileEmptyThenReturnsWrittenData(t *testing.T) {
	r, w := New()
	yielded := 0
	Yield_f = func() {
		yielded++
		if yielded == 1 {
			w.Write([]byte("late"))
		}
	}
	defer func() { Yield_f = nil }()

	buf := make([]byte, 4)
	n, err := r.Read(buf)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "late", string(buf))
	assert.GreaterOrEqual(t, yielded, 1)
}

func TestReopenAndCloseTrackIndependentReferenceCounts(t *testing.T) {
	withNoopYield(func() {
		r, w := New()
		w.Reopen()
		assert.Equal(t, 2, w.r.writers)

		w.Close()
		assert.Equal(t, 1, w.r.writers, "one dup'd write end remains open")

		w.Close()
		assert.Equal(t, 0, w.r.writers)

		n, err := r.Read(make([]byte, 1))
		assert.Equal(t, defs.Err_t(0), err)
		assert.Zero(t, n)
	})
}
