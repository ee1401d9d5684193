// Package defs holds the identifiers and error codes shared across the
// kernel core: the pid and fd-number types, the Err_t error kind, and the syscall
// numbers the dispatcher uses to name core entry points.
package defs

// Err_t is the kernel's internal error type. It is a plain signed integer,
// not Go's error interface, because syscall handlers must return it
// directly as a negative value to user space.
type Err_t int

// Error kinds returned by core operations. Negated, these are the values
// a syscall handler hands back to user space.
const (
	EINVAL    Err_t = 1 /// invalid argument
	ENOENT    Err_t = 2 /// no such file or directory
	ENOMEM    Err_t = 3 /// out of memory / frames
	ENOSPC    Err_t = 4 /// no space on device (clusters exhausted)
	EFAULT    Err_t = 5 /// bad user pointer
	EEXIST    Err_t = 6 /// file exists
	ENOTDIR   Err_t = 7 /// not a directory
	EISDIR    Err_t = 8 /// is a directory
	ENOTEMPTY Err_t = 9 /// directory not empty
	EBADF     Err_t = 10 /// bad file descriptor
	EAGAIN    Err_t = 11 /// resource temporarily unavailable, try again
	ECHILD    Err_t = 12 /// no matching child
	ENAMETOOLONG Err_t = 13
)

// Pid_t identifies a process/task.
type Pid_t int

// Fdnum_t identifies an open file descriptor slot within a task.
type Fdnum_t int

// AT_FDCWD is the sentinel dirfd meaning "resolve relative to cwd".
const AT_FDCWD = -100

// Syscall numbers from the RISC-V Linux subset the dispatcher exposes.
const (
	SYS_GETCWD     = 17
	SYS_DUP        = 23
	SYS_DUP3       = 24
	SYS_MKDIRAT    = 34
	SYS_UNLINKAT   = 35
	SYS_UMOUNT2    = 39
	SYS_MOUNT      = 40
	SYS_CHDIR      = 49
	SYS_OPENAT     = 56
	SYS_CLOSE      = 57
	SYS_PIPE2      = 59
	SYS_GETDENTS64 = 61
	SYS_READ       = 63
	SYS_WRITE      = 64
	SYS_FSTAT      = 80
	SYS_EXIT       = 93
	SYS_NANOSLEEP  = 101
	SYS_YIELD      = 124
	SYS_SETPRIORITY = 140
	SYS_TIMES      = 153
	SYS_UNAME      = 160
	SYS_GETTIMEOFDAY = 169
	SYS_GETPID     = 172
	SYS_GETPPID    = 173
	SYS_BRK        = 214
	SYS_MUNMAP     = 215
	SYS_FORK       = 220
	SYS_EXECVE     = 221
	SYS_MMAP       = 222
	SYS_WAITPID    = 260
	SYS_SHUTDOWN   = 210
	SYS_SPAWN      = 400
)

// Open flags accepted by Openat.
const (
	O_RDONLY = 0x000
	O_WRONLY = 0x001
	O_RDWR   = 0x002
	O_CREAT  = 0x040
	O_TRUNC  = 0x200
)

// Directory entry attribute bits (FAT32 ATTR byte).
const (
	ATTR_READ_ONLY = 0x01
	ATTR_HIDDEN    = 0x02
	ATTR_SYSTEM    = 0x04
	ATTR_VOLUME_ID = 0x08
	ATTR_DIRECTORY = 0x10
	ATTR_ARCHIVE   = 0x20
	ATTR_LONG_NAME = ATTR_READ_ONLY | ATTR_HIDDEN | ATTR_SYSTEM | ATTR_VOLUME_ID
)
