package utils

import (
	"sync"
)

// OptionalMutex is a mutex that can be switched off when the caller promises to serialize access
// itself
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}
