// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package watchdog

import (
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

const bytesPerMB = 1024 * 1024

// Memory is a point-in-time view of process memory, in bytes.
type Memory struct {
	HeapUsed  uint64
	HeapTotal uint64
	// RSS is zero when the platform cannot report it.
	RSS uint64
}

// Sample is the watchdog's rounded view of Memory, in megabytes.
type Sample struct {
	HeapUsedMB  uint64
	HeapTotalMB uint64
}

// Sample rounds m to the nearest megabyte.
func (m Memory) Sample() Sample {
	return Sample{
		HeapUsedMB:  toMB(m.HeapUsed),
		HeapTotalMB: toMB(m.HeapTotal),
	}
}

func toMB(b uint64) uint64 {
	return (b + bytesPerMB/2) / bytesPerMB
}

// ReadMemory samples the Go heap and the process resident set size.
//
// HeapUsed is the live heap (HeapAlloc); HeapTotal is the heap address space
// obtained from the OS (HeapSys).
func ReadMemory() Memory {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Memory{
		HeapUsed:  ms.HeapAlloc,
		HeapTotal: ms.HeapSys,
		RSS:       readRSS(),
	}
}

var self = sync.OnceValues(func() (*process.Process, error) {
	return process.NewProcess(int32(os.Getpid())) //nolint:gosec // pids fit in int32
})

func readRSS() uint64 {
	p, err := self()
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
