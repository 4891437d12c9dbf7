package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestGELUCommand(t *testing.T) {
	t.Setenv("GPURT_NUM_WORKERS", "2")
	out := run(t, "gelu", "--device", "cpu", "--n", "100")

	assert.Contains(t, out, "  gelu(0.00) = 0.00\n")
	assert.Contains(t, out, "  gelu(1.00) = 0.84\n")
	assert.Contains(t, out, "  gelu(1.10) = 0.95\n")
	assert.NotContains(t, out, "gelu(1.20)")
	assert.Contains(t, out, "Computed 100 values of GELU(x) on CPU (2 workers)")
}

func TestGELUCommandErrors(t *testing.T) {
	cmd := NewCLI()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"gelu", "--device", "cpu", "--n", "0"})
	assert.Error(t, cmd.Execute())

	cmd = NewCLI()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"gelu", "--device", "nope"})
	assert.Error(t, cmd.Execute())

	for _, wg := range []string{"0", "-8"} {
		cmd = NewCLI()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"gelu", "--device", "cpu", "--n", "10", "--workgroup-size=" + wg})
		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--workgroup-size must be positive")
	}
}

func TestInfoCommand(t *testing.T) {
	out := run(t, "info", "--device", "cpu")
	assert.Contains(t, out, "DEVICE")
	assert.Contains(t, out, "Selected: cpu")
	for _, k := range []string{"add", "gelu", "scale", "sub"} {
		assert.Contains(t, out, k)
	}
}

func TestEnvCommand(t *testing.T) {
	t.Setenv("GPURT_DEVICE", "CPU")
	out := run(t, "env")
	assert.Contains(t, out, "GPURT_DEVICE")
	assert.Contains(t, out, "cpu")
	assert.Contains(t, out, "GPURT_DISPATCH_TIMEOUT")
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, "gpurt version "+version+"\n", run(t, "version"))
	assert.Equal(t, "gpurt version "+version+"\n", run(t, "--version"))
}
