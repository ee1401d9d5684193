// Package accnt tracks per-task CPU time accounting: nanosecond counters
// for user and system time, merged into a parent's accounting when a
// child is reaped.
package accnt

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accnt_t accumulates user and system time in nanoseconds. The embedded
// mutex lets callers take a consistent snapshot when exporting usage.
type Accnt_t struct {
	Userns int64
	Sysns  int64
	sync.Mutex
}

// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

// Now returns the current time in nanoseconds since the Unix epoch.
func (a *Accnt_t) Now() int64 {
	return time.Now().UnixNano()
}

// Add merges n's accumulated time into a.
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	a.Userns += atomic.LoadInt64(&n.Userns)
	a.Sysns += atomic.LoadInt64(&n.Sysns)
	a.Unlock()
}

// Tms is the four-field ticks structure the times(2) syscall returns.
type Tms struct {
	Utime, Stime, Cutime, Cstime int64
}

const clockTicksPerSec = 100

func toTicks(ns int64) int64 {
	return ns * clockTicksPerSec / int64(time.Second)
}

// ToTms snapshots a and its children's accounting as clock ticks.
func (a *Accnt_t) ToTms(childrenUser, childrenSys int64) Tms {
	a.Lock()
	defer a.Unlock()
	return Tms{
		Utime:  toTicks(a.Userns),
		Stime:  toTicks(a.Sysns),
		Cutime: toTicks(childrenUser),
		Cstime: toTicks(childrenSys),
	}
}
