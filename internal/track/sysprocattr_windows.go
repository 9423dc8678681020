//go:build windows

package track

import "os/exec"

func configureCmdSysProcAttr(_ *exec.Cmd) {}
