// Package config loads and overlays the app configuration described by
// conf.toml: defaults, then the file, then environment variables — the
// same three-layer precedence the teacher's own config.LoadConfig
// applies (defaults first, then file, then profile/env), with
// BurntSushi/toml swapped in for the teacher's hand-rolled INI reader
// since conf.toml is the fixed wire format here.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/sys/unix"
)

// Daemon is the [daemon] section.
type Daemon struct {
	Name       string `toml:"name"`
	WorkingDir string `toml:"working_dir"`
	RunScript  string `toml:"run_script"`
}

// Process is the [process] section.
type Process struct {
	Supervise     bool   `toml:"supervise"`
	MaxAttempts   int    `toml:"max_attempts"`
	RestartDelay  int    `toml:"restart_delay_seconds"`
	CheckInterval int    `toml:"check_interval_seconds"`
	KillTimeout   int    `toml:"kill_timeout_seconds"`
	StopSignal    string `toml:"stop_signal"`
}

// Security is the [security] section.
type Security struct {
	User  string `toml:"user"`
	Group string `toml:"group"`
}

// Logging is the [logging] section.
type Logging struct {
	File       string `toml:"file"`
	ErrFile    string `toml:"err_file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxAgeDays int    `toml:"max_age_days"`
	MaxCount   int    `toml:"max_count"`
	Level      string `toml:"level"`
}

// PIDFile is the [pidfile] section.
type PIDFile struct {
	Path string `toml:"path"`
}

// Signals is the [signals] section.
type Signals struct {
	Stop   string `toml:"stop"`
	Reload string `toml:"reload"`
}

// Sandbox is the [sandbox] section.
type Sandbox struct {
	Enabled       bool     `toml:"enabled"`
	Chroot        string   `toml:"chroot"`
	ReadOnlyPaths []string `toml:"read_only_paths"`
}

// Limits is the [limits] section.
type Limits struct {
	MemoryLimitMB  int `toml:"memory_limit_mb"`
	CPULimit       int `toml:"cpu_limit_percent"`
	FileLimit      int `toml:"file_limit"`
	ProcessLimit   int `toml:"process_limit"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Monitoring is the [monitoring] section.
type Monitoring struct {
	Enabled          bool `toml:"enabled"`
	CheckInterval    int  `toml:"check_interval_seconds"`
	FailureThreshold int  `toml:"failure_threshold"`
}

// Package is the top-level [package] table.
type Package struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// AppConfig is the full parsed conf.toml: every §4.H section plus
// [package].
type AppConfig struct {
	Package    Package    `toml:"package"`
	Daemon     Daemon     `toml:"daemon"`
	Process    Process    `toml:"process"`
	Security   Security   `toml:"security"`
	Logging    Logging    `toml:"logging"`
	PIDFile    PIDFile    `toml:"pidfile"`
	Signals    Signals    `toml:"signals"`
	Sandbox    Sandbox    `toml:"sandbox"`
	Limits     Limits     `toml:"limits"`
	Monitoring Monitoring `toml:"monitoring"`
}

// Defaults returns the documented default for every known key, so the
// resolver never requires conf.toml to exist.
func Defaults() AppConfig {
	return AppConfig{
		Process: Process{
			MaxAttempts:   5,
			RestartDelay:  2,
			CheckInterval: 5,
			KillTimeout:   10,
			StopSignal:    "TERM",
		},
		Logging: Logging{Level: "info"},
		Signals: Signals{Stop: "TERM", Reload: "HUP"},
		Monitoring: Monitoring{
			CheckInterval:    5,
			FailureThreshold: 3,
		},
	}
}

// Load reads Defaults(), overlays confPath if it exists (absence is not
// an error), and returns the result. Unknown TOML keys are ignored.
func Load(confPath string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(confPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// CoreEnv is the APPDEPLOY_* environment variable set recognized by the
// deployer side of the core.
type CoreEnv struct {
	Target       string
	SSHOptions   string
	KeepVersions int
	OpTimeout    int
	NoColor      bool
}

// LoadCoreEnv reads the APPDEPLOY_* environment variables.
func LoadCoreEnv() CoreEnv {
	env := CoreEnv{
		Target:     os.Getenv("APPDEPLOY_TARGET"),
		SSHOptions: os.Getenv("APPDEPLOY_SSH_OPTIONS"),
		NoColor:    os.Getenv("APPDEPLOY_NO_COLOR") == "1",
	}
	if v, err := strconv.Atoi(os.Getenv("APPDEPLOY_KEEP_VERSIONS")); err == nil {
		env.KeepVersions = v
	}
	if v, err := strconv.Atoi(os.Getenv("APPDEPLOY_OP_TIMEOUT")); err == nil {
		env.OpTimeout = v
	}
	return env
}

// ControllerEnv is the DAEMONCTL_* environment variable set.
type ControllerEnv struct {
	Path      string
	LogLevel  string
	NoColor   bool
	OpTimeout int
}

// LoadControllerEnv reads the DAEMONCTL_* environment variables.
func LoadControllerEnv() ControllerEnv {
	env := ControllerEnv{
		Path:     os.Getenv("DAEMONCTL_PATH"),
		LogLevel: os.Getenv("DAEMONCTL_LOG_LEVEL"),
		NoColor:  os.Getenv("DAEMONCTL_NO_COLOR") == "1",
	}
	if v, err := strconv.Atoi(os.Getenv("DAEMONCTL_OP_TIMEOUT")); err == nil {
		env.OpTimeout = v
	}
	return env
}

// perAppOverrideKeys are the recognized DAEMONCTL_<APP>_<KEY> suffixes.
var perAppOverrideKeys = map[string]bool{
	"USER": true, "GROUP": true, "MEMORY_LIMIT": true, "CPU_LIMIT": true,
	"FILE_LIMIT": true, "PROCESS_LIMIT": true, "TIMEOUT": true, "SANDBOX": true,
	"LOG_LEVEL": true, "LOG_FILE": true, "MONITORING_ENABLED": true, "CHECK_INTERVAL": true,
}

// ApplyPerAppOverrides scans the environment for DAEMONCTL_<APP>_<KEY>
// variables matching app (upper-snake-cased) and overlays them onto
// cfg, so they win over both conf.toml and ControllerEnv.
func ApplyPerAppOverrides(cfg AppConfig, app string) AppConfig {
	prefix := "DAEMONCTL_" + strings.ToUpper(app) + "_"
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		suffix := strings.TrimPrefix(key, prefix)
		if !perAppOverrideKeys[suffix] {
			continue
		}
		applyOverride(&cfg, suffix, value)
	}
	return cfg
}

func applyOverride(cfg *AppConfig, key, value string) {
	switch key {
	case "USER":
		cfg.Security.User = value
	case "GROUP":
		cfg.Security.Group = value
	case "MEMORY_LIMIT":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Limits.MemoryLimitMB = v
		}
	case "CPU_LIMIT":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Limits.CPULimit = v
		}
	case "FILE_LIMIT":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Limits.FileLimit = v
		}
	case "PROCESS_LIMIT":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Limits.ProcessLimit = v
		}
	case "TIMEOUT":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Limits.TimeoutSeconds = v
		}
	case "SANDBOX":
		cfg.Sandbox.Enabled = value == "1" || strings.EqualFold(value, "true")
	case "LOG_LEVEL":
		cfg.Logging.Level = value
	case "LOG_FILE":
		cfg.Logging.File = value
	case "MONITORING_ENABLED":
		cfg.Monitoring.Enabled = value == "1" || strings.EqualFold(value, "true")
	case "CHECK_INTERVAL":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Monitoring.CheckInterval = v
		}
	}
}

// SystemInfo reports the host OS name, kernel release, machine
// architecture and CPU count of the machine it runs on.
func SystemInfo() (osname, osversion, arch string, ncpus int) {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err == nil {
		osname = cString(utsname.Sysname[:])
		osversion = cString(utsname.Release[:])
		arch = cString(utsname.Machine[:])
	}
	ncpus = runtime.NumCPU()
	return
}

func cString(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s
}
