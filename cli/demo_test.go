package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/acctwatch/server/config"
	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"PORT", "AUTH_TOKEN", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE"} {
		t.Setenv(name, "")
	}
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestDemo_Text(t *testing.T) {
	clearEnv(t)

	out, err := executeCommand(t, "demo")
	require.NoError(t, err, out)

	assert.Contains(t, out, "Account #1: 3")
	assert.Contains(t, out, "Account #2: 4")
	assert.Contains(t, out, "Program   : 6")
	assert.Contains(t, out, "Shutting down... Please wait...")
}

func TestDemo_JSON(t *testing.T) {
	clearEnv(t)

	out, err := executeCommand(t, "demo", "--format", "json", "-n", "2")
	require.NoError(t, err, out)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Account1 int `json:"account1"`
			Account2 int `json:"account2"`
			Program  int `json:"program"`
			Leaked   int `json:"leaked"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Account1)
	assert.Equal(t, 3, resp.Data.Account2)
	assert.Equal(t, 4, resp.Data.Program)
	assert.Zero(t, resp.Data.Leaked)
}

func TestDemo_ExternalValidator(t *testing.T) {
	clearEnv(t)

	keys := []ledger.Key{ledger.NewKey(), ledger.NewKey()}
	v, err := validator.Start(context.Background(), validator.Config{Keys: keys})
	require.NoError(t, err)
	defer v.Close(context.Background())

	out, err := executeCommand(t, "demo", "--url", v.PubsubURL(), "--key", keys[0].String(), "--key", keys[1].String())
	require.NoError(t, err, out)
	assert.Contains(t, out, "Account #2 found: false")
	assert.NotContains(t, out, "Shutting down")
}

func TestDemo_ExternalRequiresTwoKeys(t *testing.T) {
	clearEnv(t)

	_, err := executeCommand(t, "demo", "--url", "ws://127.0.0.1:1/ws", "--key", ledger.NewKey().String())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDemo_ExternalUnreachable(t *testing.T) {
	clearEnv(t)

	out, err := executeCommand(t, "demo", "--url", "ws://127.0.0.1:1/ws",
		"--key", ledger.NewKey().String(), "--key", ledger.NewKey().String())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.NotContains(t, out, "Error:", "text mode leaves error reporting to main")
}

func TestGenesisKeys(t *testing.T) {
	fixed := ledger.NewKey()
	cfg := config.Default()
	cfg.Keys = []string{fixed.String()}
	cfg.Accounts = 2

	keys, err := genesisKeys(cfg)
	require.NoError(t, err)
	require.Len(t, keys, 3)
	assert.Equal(t, fixed, keys[0])
	assert.NotEqual(t, keys[1], keys[2])

	cfg.Keys = []string{"not-a-key"}
	_, err = genesisKeys(cfg)
	assert.Error(t, err)
}
