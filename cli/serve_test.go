package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/mutator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe(t *testing.T) {
	clearEnv(t)

	fixed := ledger.NewKey()
	path := filepath.Join(t.TempDir(), "acctwatch.yaml")
	cfg := "addr: 127.0.0.1:0\naccounts: 1\nkeys:\n  - " + fixed.String() + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pr, pw := io.Pipe()
	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(pr)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"serve", "--config", path})
	cmd.SetOut(pw)
	cmd.SetErr(&bytes.Buffer{})

	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
		pw.Close()
	}()

	var got []string
	timeout := time.After(10 * time.Second)
	for len(got) < 3 {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "serve exited early: %v", got)
			got = append(got, line)
		case <-timeout:
			t.Fatalf("timeout waiting for serve output, got %v", got)
		}
	}

	url, ok := strings.CutPrefix(got[0], "Pubsub URL: ")
	require.True(t, ok, "unexpected first line %q", got[0])
	assert.Equal(t, "Counter #1: "+fixed.String(), got[1])
	assert.True(t, strings.HasPrefix(got[2], "Counter #2: "))

	client, err := mutator.Dial(ctx, url, mutator.Options{})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Increment(ctx, fixed)
	require.NoError(t, err)
	value, err := client.Counter(ctx, fixed)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), value)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("timeout waiting for serve to shut down")
	}
}
