package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appdeploy/deployerr"
)

func TestSupervisor_RunsToCleanExitWithoutRestart(t *testing.T) {
	s := New(Options{
		Command: []string{"sh", "-c", "exit 0"},
		Dir:     t.TempDir(),
		Env:     os.Environ(),
	})
	err := s.Run(context.Background())
	require.NoError(t, err)
}

func TestSupervisor_WritesAndRemovesPIDFile(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, ".pid")
	s := New(Options{
		Command: []string{"sh", "-c", "sleep 0.2"},
		Dir:     dir,
		Env:     os.Environ(),
		PIDFile: pidFile,
	})
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(pidFile)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, <-done)
	_, err := os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err))
}

func TestSupervisor_ExhaustsRestartBudget(t *testing.T) {
	s := New(Options{
		Command:        []string{"sh", "-c", "exit 1"},
		Dir:            t.TempDir(),
		Env:            os.Environ(),
		MaxRestarts:    2,
		RestartWindow:  time.Minute,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	})
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, deployerr.IsSupervisorExhaustion(err))
}

func TestSupervisor_RunsOnStartAndOnStopHooks(t *testing.T) {
	dir := t.TempDir()
	startMarker := filepath.Join(dir, "started")
	stopMarker := filepath.Join(dir, "stopped")
	s := New(Options{
		Command:     []string{"sh", "-c", "exit 0"},
		Dir:         dir,
		Env:         os.Environ(),
		OnStartHook: "touch " + startMarker,
		OnStopHook:  "touch " + stopMarker,
	})
	require.NoError(t, s.Run(context.Background()))

	assert.FileExists(t, startMarker)
	assert.FileExists(t, stopMarker)
}

func TestSupervisor_TerminatesAfterSustainedHealthCheckFailure(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{
		Command:          []string{"sh", "-c", "sleep 5"},
		Dir:              dir,
		Env:              os.Environ(),
		CheckCmd:         "exit 1",
		CheckInterval:    20 * time.Millisecond,
		FailureThreshold: 2,
		KillTimeout:      10 * time.Millisecond,
	})
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, deployerr.IsTimeout(err))
}

func TestSupervisor_HealthyChildIsNotTerminated(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{
		Command:          []string{"sh", "-c", "sleep 0.2"},
		Dir:              dir,
		Env:              os.Environ(),
		CheckCmd:         "exit 0",
		CheckInterval:    20 * time.Millisecond,
		FailureThreshold: 2,
	})
	err := s.Run(context.Background())
	assert.NoError(t, err)
}
