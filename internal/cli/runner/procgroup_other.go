//go:build !unix

package runner

import "os/exec"

// setProcessGroup is a no-op; cancellation kills the direct child and WaitDelay bounds the wait.
func setProcessGroup(cmd *exec.Cmd) {}
