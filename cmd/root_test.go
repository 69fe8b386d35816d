package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/empire-server/internal/config"
	"github.com/JakeFAU/empire-server/internal/probe"
)

type fakeRunner struct {
	runErr   error
	statuses []probe.DependencyStatus
	ran      bool
	closed   bool
	cfg      config.Config
}

func (f *fakeRunner) Run(context.Context) error {
	f.ran = true
	return f.runErr
}

func (f *fakeRunner) ProbeOnce(context.Context) []probe.DependencyStatus { return f.statuses }

func (f *fakeRunner) Close() { f.closed = true }

func withFakeRunner(t *testing.T, fake *fakeRunner) {
	t.Helper()
	original := newRunner
	newRunner = func(_ context.Context, cfg config.Config) (Runner, error) {
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() {
		newRunner = original
		cfgFile = ""
	})
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8123\n  mode: production\n"), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootDefaultsToServe(t *testing.T) {
	fake := &fakeRunner{}
	withFakeRunner(t, fake)

	_, err := execute(t, "--config", writeConfig(t))
	require.NoError(t, err)
	require.True(t, fake.ran)
	require.True(t, fake.closed)
	require.Equal(t, 8123, fake.cfg.Server.Port)
}

func TestServePropagatesRunError(t *testing.T) {
	fake := &fakeRunner{runErr: errors.New("bind: address already in use")}
	withFakeRunner(t, fake)

	_, err := execute(t, "serve", "--config", writeConfig(t))
	require.ErrorContains(t, err, "address already in use")
	require.True(t, fake.closed)
}

func TestServeRejectsBadConfig(t *testing.T) {
	fake := &fakeRunner{}
	withFakeRunner(t, fake)

	_, err := execute(t, "serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "load config")
	require.False(t, fake.ran)
}

func TestProbeReportsUnreachable(t *testing.T) {
	fake := &fakeRunner{statuses: []probe.DependencyStatus{
		{Name: probe.Database, Reachable: false, Error: "connection refused"},
	}}
	withFakeRunner(t, fake)

	out, err := execute(t, "probe", "--config", writeConfig(t))
	require.ErrorContains(t, err, "unreachable dependencies: [database]")
	require.Contains(t, out, `"name": "database"`)
	require.False(t, fake.ran)
}

func TestProbeSucceedsWhenAllReachable(t *testing.T) {
	fake := &fakeRunner{statuses: []probe.DependencyStatus{{Name: probe.Database, Reachable: true}}}
	withFakeRunner(t, fake)

	out, err := execute(t, "probe", "--config", writeConfig(t))
	require.NoError(t, err)
	require.Contains(t, out, `"reachable": true`)
}
