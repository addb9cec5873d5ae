//go:build !unix

package flat

import "os"

// Record locks are not available, only the in-process lock table protects
// objects on these platforms.
func lockFile(*os.File, bool) error { return nil }

func unlockFile(*os.File) error { return nil }
