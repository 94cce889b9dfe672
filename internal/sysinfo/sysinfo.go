// Package sysinfo probes host facts the scheduler cares about. Today
// that is just the boot time, used to tell "the machine was off" apart
// from "the user ignored prompts" when a catch-up gap spans a reboot.
package sysinfo

import (
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// BootTime returns when the host last booted, or the zero time if the
// probe fails.
func BootTime() time.Time {
	secs, err := host.BootTime()
	if err != nil {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0)
}

// RebootedSince reports whether the host booted after t. A failed probe
// reports false; callers only use this to annotate catch-up prompts, so
// a missing answer is the same as "no reboot".
func RebootedSince(t time.Time) bool {
	boot := BootTime()
	if boot.IsZero() || t.IsZero() {
		return false
	}
	return boot.After(t)
}
