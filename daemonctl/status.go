package daemonctl

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Status is the result of a status inquiry: pidfile presence plus /proc
// introspection, grounded on the teacher's /proc-enumeration approach to
// process discovery (environment/bsd/procfind_bsd.go), narrowed from
// "every process under a chroot" to "the one process named by a pidfile".
type Status struct {
	App       string
	Running   bool
	PID       int
	MemoryKB  int64
	Threads   int
	CPUTime   time.Duration
	Tree      []int // pid chain from this process up through its ancestors, stopping at pid 1
}

// Status reports the current state of the app's process.
func (c *Controller) Status() (Status, error) {
	st := Status{App: c.App}
	pid, err := c.readPID()
	if err != nil {
		return st, err
	}
	if pid == 0 || !processAlive(pid) {
		return st, nil
	}
	st.Running = true
	st.PID = pid

	if mem, err := readVmRSS(pid); err == nil {
		st.MemoryKB = mem
	}
	if n, err := countThreads(pid); err == nil {
		st.Threads = n
	}
	if cpu, err := readCPUTime(pid); err == nil {
		st.CPUTime = cpu
	}
	st.Tree = processTree(pid)
	return st, nil
}

// readVmRSS parses /proc/<pid>/status for the VmRSS field, in kilobytes.
func readVmRSS(pid int) (int64, error) {
	f, err := os.Open(filepath.Join("/proc", strconv.Itoa(pid), "status"))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "VmRSS:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				return strconv.ParseInt(fields[1], 10, 64)
			}
		}
	}
	return 0, fmt.Errorf("VmRSS not found for pid %d", pid)
}

// countThreads counts entries under /proc/<pid>/task.
func countThreads(pid int) (int, error) {
	entries, err := os.ReadDir(filepath.Join("/proc", strconv.Itoa(pid), "task"))
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// readCPUTime sums utime+stime (fields 14 and 15 of /proc/<pid>/stat,
// in clock ticks) and converts to a duration using the system's
// configured clock tick rate.
func readCPUTime(pid int) (time.Duration, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, err
	}
	// Fields after the last ')' are space-separated and 1-indexed from
	// the pid; (2) is comm, so field 14/15 in the full record are at
	// offsets 11/12 here.
	idx := strings.LastIndexByte(string(data), ')')
	if idx < 0 || idx+2 >= len(data) {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	fields := strings.Fields(string(data[idx+2:]))
	if len(fields) < 13 {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	utime, err := strconv.ParseInt(fields[11], 10, 64)
	if err != nil {
		return 0, err
	}
	stime, err := strconv.ParseInt(fields[12], 10, 64)
	if err != nil {
		return 0, err
	}
	const clockTicksPerSec = 100 // sysconf(_SC_CLK_TCK) on Linux, almost universally 100
	ticks := utime + stime
	return time.Duration(ticks) * time.Second / clockTicksPerSec, nil
}

// processTree walks /proc/<pid>/stat's parent-pid field up to pid 1 (or
// until a read fails), returning the chain starting at pid itself.
func processTree(pid int) []int {
	chain := []int{pid}
	cur := pid
	for i := 0; i < 64; i++ { // bound the walk against any parent-pid cycle
		ppid, err := readPPID(cur)
		if err != nil || ppid <= 1 {
			break
		}
		chain = append(chain, ppid)
		cur = ppid
	}
	return chain
}

func readPPID(pid int) (int, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, err
	}
	idx := strings.LastIndexByte(string(data), ')')
	if idx < 0 || idx+2 >= len(data) {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	fields := strings.Fields(string(data[idx+2:]))
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	// fields[0] is state, fields[1] is ppid (field 4 of the full record).
	return strconv.Atoi(fields[1])
}
