//go:build linux

package reap

import (
	"bytes"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// listProcesses enumerates the process table by scanning /proc. Kernel
// threads (empty cmdline) are skipped; entries that vanish mid-scan are
// ignored, since the table is a moving target by nature.
func listProcesses() ([]Process, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	names := make(map[int]string)
	var procs []Process
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		cmdline, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "cmdline"))
		if err != nil || len(cmdline) == 0 {
			continue
		}
		command := strings.TrimRight(
			string(bytes.ReplaceAll(cmdline, []byte{0}, []byte{' '})), " ")

		info, err := os.Stat(filepath.Join("/proc", entry.Name()))
		if err != nil {
			continue
		}
		stat, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			continue
		}
		uid := int(stat.Uid)

		procs = append(procs, Process{
			PID:     pid,
			UID:     uid,
			User:    userName(names, uid),
			Command: command,
		})
	}
	return procs, nil
}

func userName(cache map[int]string, uid int) string {
	if name, ok := cache[uid]; ok {
		return name
	}
	name := strconv.Itoa(uid)
	if u, err := user.LookupId(strconv.Itoa(uid)); err == nil {
		name = u.Username
	}
	cache[uid] = name
	return name
}
