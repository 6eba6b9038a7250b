package pkg

import "sync"

// HasLocker is implemented by state a host must serialise access to.
type HasLocker interface{ GetLocker() *sync.RWMutex }

func LockWrap(i HasLocker, f func()) {
	i.GetLocker().Lock()
	defer i.GetLocker().Unlock()
	f()
}

func RLockWrap(i HasLocker, f func()) {
	i.GetLocker().RLock()
	defer i.GetLocker().RUnlock()
	f()
}

// LockResult runs f under the write lock and returns its results.
func LockResult[T any](i HasLocker, f func() (T, error)) (res T, err error) {
	LockWrap(i, func() { res, err = f() })
	return
}

// RLockResult runs f under the read lock and returns its results.
func RLockResult[T any](i HasLocker, f func() (T, error)) (res T, err error) {
	RLockWrap(i, func() { res, err = f() })
	return
}
