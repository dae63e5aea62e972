// Package daemonctl is the on-target daemon controller façade: it maps a
// parsed conf.toml (config.AppConfig) to a concrete process invocation and
// implements the start/run/stop/restart/kill/status/logs command set
// against that invocation, grounded on the teacher's environment/bsd
// process-group and /proc conventions (procfind_bsd.go) generalized from
// "find everything in a chroot" to "find and control one named app".
package daemonctl

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	"appdeploy/config"
)

// Invocation is the fully-resolved argv/dir/env the controller execs,
// before any log-rotation wrapping is applied.
type Invocation struct {
	Argv []string
	Dir  string
	Env  []string
}

// Compose resolves cfg and runDir (the app's run/ directory, i.e. the
// symlink tree activate maintains) into an Invocation. The working
// directory defaults to runDir itself (the directory containing the run
// script); configuration may override it. Environment is layered
// inherited → env.sh (if present in runDir) → callerEnv, each later
// layer winning over the earlier ones on key collision. conf.toml sets
// no environment variables of its own.
func Compose(cfg config.AppConfig, runDir string, callerEnv []string) (Invocation, error) {
	script := cfg.Daemon.RunScript
	if script == "" {
		script = "run.sh"
	}
	scriptPath := script
	if !filepath.IsAbs(script) {
		scriptPath = filepath.Join(runDir, script)
	}

	dir := cfg.Daemon.WorkingDir
	if dir == "" {
		dir = filepath.Dir(scriptPath)
	}

	env := os.Environ()
	if sourced, err := sourceEnvScript(filepath.Join(runDir, "env.sh"), dir, env); err == nil {
		env = sourced
	}
	env = append(env, callerEnv...)

	return Invocation{Argv: []string{scriptPath}, Dir: dir, Env: env}, nil
}

// sourceEnvScript runs `. env.sh && env -0` in a throwaway shell and
// parses the resulting environment, the same approach the original
// reference tool uses to pick up shell-level exports without re-parsing
// shell syntax itself. A missing env.sh is not an error: base is returned
// unchanged.
func sourceEnvScript(path, dir string, base []string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, err
	}
	cmd := exec.Command("sh", "-c", ". "+shellquote.Join(path)+" && env -0")
	cmd.Dir = dir
	cmd.Env = base
	out, err := cmd.Output()
	if err != nil {
		return base, err
	}
	merged := map[string]string{}
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	for _, kv := range strings.Split(strings.TrimRight(string(out), "\x00"), "\x00") {
		if kv == "" {
			continue
		}
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	result := make([]string, 0, len(merged))
	for k, v := range merged {
		result = append(result, k+"="+v)
	}
	return result, nil
}

// OutputPaths resolves the default stdout/stderr destinations for an app:
// <logsDir>/<app>.log and <logsDir>/<app>.err, unless conf.toml overrides
// them.
func OutputPaths(cfg config.AppConfig, app, logsDir string) (stdout, stderr string) {
	stdout = cfg.Logging.File
	if stdout == "" {
		stdout = filepath.Join(logsDir, app+".log")
	}
	stderr = cfg.Logging.ErrFile
	if stderr == "" {
		stderr = filepath.Join(logsDir, app+".err")
	}
	return stdout, stderr
}
