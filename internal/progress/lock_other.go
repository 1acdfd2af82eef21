//go:build !unix

package progress

import "os"

// Advisory locking is unix-only; elsewhere updates fall back to
// last-writer-wins with atomic replacement.
func tryLock(f *os.File) error { return nil }

func unlock(f *os.File) error { return nil }
