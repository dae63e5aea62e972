package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 5, cfg.Process.MaxAttempts)
	assert.Equal(t, 2, cfg.Process.RestartDelay)
	assert.Equal(t, 5, cfg.Process.CheckInterval)
	assert.Equal(t, 10, cfg.Process.KillTimeout)
	assert.Equal(t, "TERM", cfg.Process.StopSignal)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "TERM", cfg.Signals.Stop)
	assert.Equal(t, "HUP", cfg.Signals.Reload)
	assert.Equal(t, 5, cfg.Monitoring.CheckInterval)
	assert.Equal(t, 3, cfg.Monitoring.FailureThreshold)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "conf.toml")
	content := `
[package]
name = "webapi"
version = "2.1.0"

[daemon]
name = "webapi"
working_dir = "/srv/webapi"
run_script = "run.sh"

[process]
max_attempts = 8
stop_signal = "INT"

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(confPath, []byte(content), 0o644))

	cfg, err := Load(confPath)
	require.NoError(t, err)

	assert.Equal(t, "webapi", cfg.Package.Name)
	assert.Equal(t, "2.1.0", cfg.Package.Version)
	assert.Equal(t, "/srv/webapi", cfg.Daemon.WorkingDir)
	assert.Equal(t, 8, cfg.Process.MaxAttempts)
	assert.Equal(t, "INT", cfg.Process.StopSignal)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Values left unset in the file keep their documented default.
	assert.Equal(t, 2, cfg.Process.RestartDelay)
	assert.Equal(t, 3, cfg.Monitoring.FailureThreshold)
}

func TestLoad_InvalidTomlReturnsError(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "conf.toml")
	require.NoError(t, os.WriteFile(confPath, []byte("not = [valid"), 0o644))

	_, err := Load(confPath)
	assert.Error(t, err)
}

func TestLoadCoreEnv(t *testing.T) {
	t.Setenv("APPDEPLOY_TARGET", "deploy@host.example.com")
	t.Setenv("APPDEPLOY_SSH_OPTIONS", "-p 2222")
	t.Setenv("APPDEPLOY_KEEP_VERSIONS", "3")
	t.Setenv("APPDEPLOY_OP_TIMEOUT", "120")
	t.Setenv("APPDEPLOY_NO_COLOR", "1")

	env := LoadCoreEnv()
	assert.Equal(t, "deploy@host.example.com", env.Target)
	assert.Equal(t, "-p 2222", env.SSHOptions)
	assert.Equal(t, 3, env.KeepVersions)
	assert.Equal(t, 120, env.OpTimeout)
	assert.True(t, env.NoColor)
}

func TestLoadCoreEnv_MissingVarsLeaveZeroValues(t *testing.T) {
	for _, key := range []string{
		"APPDEPLOY_TARGET", "APPDEPLOY_SSH_OPTIONS",
		"APPDEPLOY_KEEP_VERSIONS", "APPDEPLOY_OP_TIMEOUT", "APPDEPLOY_NO_COLOR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	env := LoadCoreEnv()
	assert.Zero(t, env.KeepVersions)
	assert.Zero(t, env.OpTimeout)
	assert.False(t, env.NoColor)
}

func TestLoadControllerEnv(t *testing.T) {
	t.Setenv("DAEMONCTL_PATH", "/opt/apps")
	t.Setenv("DAEMONCTL_LOG_LEVEL", "warn")
	t.Setenv("DAEMONCTL_NO_COLOR", "1")
	t.Setenv("DAEMONCTL_OP_TIMEOUT", "45")

	env := LoadControllerEnv()
	assert.Equal(t, "/opt/apps", env.Path)
	assert.Equal(t, "warn", env.LogLevel)
	assert.True(t, env.NoColor)
	assert.Equal(t, 45, env.OpTimeout)
}

func TestApplyPerAppOverrides(t *testing.T) {
	t.Setenv("DAEMONCTL_WEBAPI_USER", "svc-webapi")
	t.Setenv("DAEMONCTL_WEBAPI_MEMORY_LIMIT", "512")
	t.Setenv("DAEMONCTL_WEBAPI_SANDBOX", "true")
	t.Setenv("DAEMONCTL_WEBAPI_LOG_LEVEL", "debug")
	t.Setenv("DAEMONCTL_OTHERAPP_USER", "svc-otherapp")

	cfg := ApplyPerAppOverrides(Defaults(), "webapi")

	assert.Equal(t, "svc-webapi", cfg.Security.User)
	assert.Equal(t, 512, cfg.Limits.MemoryLimitMB)
	assert.True(t, cfg.Sandbox.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Another app's override must not leak through.
	assert.NotEqual(t, "svc-otherapp", cfg.Security.User)
}

func TestApplyPerAppOverrides_UnknownKeyIgnored(t *testing.T) {
	t.Setenv("DAEMONCTL_WEBAPI_NOT_A_REAL_KEY", "whatever")
	cfg := ApplyPerAppOverrides(Defaults(), "webapi")
	assert.Equal(t, Defaults(), cfg)
}

func TestSystemInfo(t *testing.T) {
	osname, osversion, arch, ncpus := SystemInfo()
	assert.NotEmpty(t, osname)
	assert.NotEmpty(t, osversion)
	assert.NotEmpty(t, arch)
	assert.Greater(t, ncpus, 0)
}

func TestCString(t *testing.T) {
	assert.Equal(t, "linux", cString([]byte("linux\x00\x00\x00")))
	assert.Equal(t, "", cString([]byte{0, 0, 0}))
	assert.Equal(t, "abc", cString([]byte("abc")))
}
