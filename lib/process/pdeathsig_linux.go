// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DieWithParent asks the kernel to send SIGTERM to this process when
// its parent exits. If the parent is already gone (the process was
// reparented before the call), it returns an error.
func DieWithParent() error {
	parent := os.Getppid()
	if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGTERM), 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_SET_PDEATHSIG): %w", err)
	}
	if os.Getppid() != parent {
		return fmt.Errorf("parent process %d exited during startup", parent)
	}
	return nil
}
