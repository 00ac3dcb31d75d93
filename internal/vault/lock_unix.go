//go:build linux || darwin

package vault

import (
	"os"

	"golang.org/x/sys/unix"
)

// sessionLock is an advisory flock held for the duration of an unlocked
// session. It only guards against two processes racing on save's rename;
// concurrent multi-process access stays unsupported.
type sessionLock struct {
	f *os.File
}

func acquireLock(path string) (*sessionLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrBusy
		}
		return nil, err
	}
	return &sessionLock{f: f}, nil
}

func (l *sessionLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
	l.f = nil
}
