package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group0-recovery/internal/errs"
)

func TestRunSuccess(t *testing.T) {
	exec := ExecutorFunc(func(_ context.Context, addr, command string) (Result, error) {
		return Result{Stdout: addr + ":" + command}, nil
	})

	res, err := Run(context.Background(), exec, "10.0.0.1", "true")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:true", res.Stdout)
}

func TestRunNonZeroExit(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, string, string) (Result, error) {
		return Result{ExitStatus: 3, Stderr: "permission denied\n"}, nil
	})

	res, err := Run(context.Background(), exec, "10.0.0.1", "sudo tee /x")
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitStatus)
	assert.ErrorIs(t, err, errs.ErrTransport)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "10.0.0.1", cmdErr.Addr)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestRunTransportFailure(t *testing.T) {
	cause := errors.New("connection refused")
	exec := ExecutorFunc(func(context.Context, string, string) (Result, error) {
		return Result{}, cause
	})

	_, err := Run(context.Background(), exec, "10.0.0.1", "true")
	assert.ErrorIs(t, err, errs.ErrTransport)
	assert.ErrorIs(t, err, cause)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, Quote("plain"))
	assert.Equal(t, `'it'\''s'`, Quote("it's"))
}

func TestNewSSHValidation(t *testing.T) {
	_, err := NewSSH(SSHConfig{})
	assert.Error(t, err)

	_, err = NewSSH(SSHConfig{User: "scylla"})
	assert.Error(t, err)

	_, err = NewSSH(SSHConfig{User: "scylla", KeyPath: "/nonexistent/key"})
	assert.Error(t, err)

	s, err := NewSSH(SSHConfig{User: "scylla", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, 22, s.config.Port)
}
