package daemonctl

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSignal(t *testing.T) {
	tests := []struct {
		name string
		want syscall.Signal
	}{
		{"TERM", syscall.SIGTERM},
		{"term", syscall.SIGTERM},
		{"SIGTERM", syscall.SIGTERM},
		{"HUP", syscall.SIGHUP},
		{"KILL", syscall.SIGKILL},
		{"usr1", syscall.SIGUSR1},
	}
	for _, tt := range tests {
		got, err := ParseSignal(tt.name)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseSignal_Unknown(t *testing.T) {
	_, err := ParseSignal("BOGUS")
	assert.Error(t, err)
}
