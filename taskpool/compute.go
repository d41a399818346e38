// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package taskpool

import "sync"

var (
	computeMu sync.Mutex
	compute   *Pool
)

// GetOrInit returns the process wide compute pool, creating it with f if
// it does not exist yet. Once created, later calls ignore f, so the first
// caller decides how the workers are built.
func GetOrInit(f func() *Pool) *Pool {
	computeMu.Lock()
	defer computeMu.Unlock()
	if compute == nil {
		compute = f()
	}
	return compute
}

// Get returns the process wide compute pool, or nil if none was created.
func Get() *Pool {
	computeMu.Lock()
	defer computeMu.Unlock()
	return compute
}

// ResetForTesting closes and forgets the process wide compute pool.
// It must only be used by tests.
func ResetForTesting() {
	computeMu.Lock()
	p := compute
	compute = nil
	computeMu.Unlock()

	if p != nil {
		p.Close()
	}
}
