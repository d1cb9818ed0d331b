//go:build !unix

package worker

import "os/exec"

// setProcessGroup на платформах без групп процессов оставляет поведение exec по умолчанию:
// при отмене убивается только сам процесс.
func setProcessGroup(cmd *exec.Cmd) {}
