package launch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/guseggert/osinthub/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLauncher(t *testing.T, descs ...tool.Descriptor) *Launcher {
	t.Helper()
	table, err := tool.NewTable(descs)
	require.NoError(t, err)
	return &Launcher{Tools: table}
}

func TestCLI(t *testing.T) {
	l := newLauncher(t, tool.Defaults("/opt/osint")...)

	cmd, err := l.CLI("sherlock", "alice")
	require.NoError(t, err)

	assert.Equal(t, []string{"python3", "-m", "sherlock_project", "alice", "--timeout", "5"}, cmd.Args)
	assert.Equal(t, "/opt/osint/sherlock", cmd.Dir)
	assert.Contains(t, cmd.Env, "PYTHONUNBUFFERED=1")
	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setpgid)
}

func TestCLIErrors(t *testing.T) {
	l := newLauncher(t, tool.Defaults("/opt/osint")...)

	_, err := l.CLI("nope", "alice")
	assert.ErrorIs(t, err, tool.ErrUnknownTool)

	_, err = l.CLI("spiderfoot", "alice")
	assert.ErrorIs(t, err, tool.ErrUnknownTool)

	_, err = l.CLI("sherlock", "")
	assert.ErrorIs(t, err, tool.ErrInvalidArgument)
}

func TestService(t *testing.T) {
	l := newLauncher(t, tool.Defaults("/opt/osint")...)

	cmd, err := l.Service("spiderfoot")
	require.NoError(t, err)
	assert.Equal(t, []string{"python3", "sf.py", "-l", "127.0.0.1:5001"}, cmd.Args)
	assert.Equal(t, "/opt/osint/spiderfoot", cmd.Dir)
	assert.Nil(t, cmd.Stdout)
	assert.Nil(t, cmd.Stderr)

	_, err = l.Service("sherlock")
	assert.ErrorIs(t, err, tool.ErrUnknownTool)
}

func TestInjectionIsLiteral(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	canary := filepath.Join(dir, "canary")
	require.NoError(t, os.WriteFile(canary, []byte("x"), 0644))
	// blackbird runs "<command> blackbird.py -u <target>", so with sh the script sees the target as $2
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blackbird.py"), []byte(`printf '%s' "$2" > out`), 0644))

	l := newLauncher(t, tool.Descriptor{ID: "blackbird", Kind: tool.KindCLI, Dir: dir, Command: "sh"})

	target := "alice; rm -f canary"
	cmd, err := l.CLI("blackbird", target)
	require.NoError(t, err)
	require.NoError(t, cmd.Run())

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, target, string(b))
	assert.FileExists(t, canary)
}

func TestStartSpawnError(t *testing.T) {
	l := newLauncher(t, tool.Descriptor{ID: "holehe", Kind: tool.KindCLI, Dir: t.TempDir(), Command: "/nonexistent/holehe"})

	cmd, err := l.CLI("holehe", "alice@example.com")
	require.NoError(t, err)

	err = Start("holehe", cmd)
	var spawnErr *SpawnError
	require.True(t, errors.As(err, &spawnErr))
	assert.Equal(t, "holehe", spawnErr.ToolID)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
