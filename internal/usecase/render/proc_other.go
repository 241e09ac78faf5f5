//go:build !unix

package render

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func killProcessGroup(int) error { return nil }

func exitCode(state *os.ProcessState) int {
	return state.ExitCode()
}
