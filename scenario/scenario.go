// Package scenario runs the closure-detection walkthrough: two counters are
// incremented, the second is closed, and only its account subscription sees
// the close.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/mutator"
	"github.com/acctwatch/server/pubsub"
	"github.com/acctwatch/server/validator"
)

type Config struct {
	// URL of a running pubsub server. Empty starts a private validator.
	URL string
	// Keys of two provisioned counters. Required with URL; generated otherwise.
	Keys [2]ledger.Key
	// Increments per account. Defaults to 3.
	Increments int
	// Out receives progress lines. Nil discards them.
	Out io.Writer
}

// Result holds the log length of each subscription at the end of the run.
type Result struct {
	Account1 int `json:"account1"`
	Account2 int `json:"account2"`
	Program  int `json:"program"`
	// Leaked counts endpoints still open after shutdown.
	Leaked int `json:"leaked"`
}

// Expected is the result a conforming run produces for k increments.
func Expected(k int) Result {
	return Result{Account1: k, Account2: k + 1, Program: 2 * k}
}

// Run executes the scenario and verifies the counts.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.Increments <= 0 {
		cfg.Increments = 3
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}

	url, keys := cfg.URL, cfg.Keys
	if url == "" {
		keys = [2]ledger.Key{ledger.NewKey(), ledger.NewKey()}
		v, err := validator.Start(ctx, validator.Config{Keys: keys[:]})
		if err != nil {
			return Result{}, err
		}
		defer func() {
			fmt.Fprintln(out, "Shutting down... Please wait...")
			v.Close(context.WithoutCancel(ctx))
		}()
		url = v.PubsubURL()
	} else if keys[0] == "" || keys[1] == "" {
		return Result{}, errors.New("scenario: two counter keys are required with an external server")
	}

	m, err := mutator.Dial(ctx, url, mutator.Options{})
	if err != nil {
		return Result{}, err
	}
	defer m.Close()

	reg := pubsub.NewRegistry(url, pubsub.Options{})
	result, runErr := run(ctx, out, reg, m, keys, cfg.Increments)

	shutdownErr := reg.ShutdownAll(context.WithoutCancel(ctx))
	result.Leaked = len(reg.Leaked())
	if result.Leaked > 0 {
		shutdownErr = errors.Join(shutdownErr, fmt.Errorf("scenario: %d subscriptions leaked", result.Leaked))
	}
	return result, errors.Join(runErr, shutdownErr)
}

func run(ctx context.Context, out io.Writer, reg *pubsub.Registry, m *mutator.Client, keys [2]ledger.Key, k int) (Result, error) {
	account1, err := reg.Open(ctx, pubsub.KindAccount, keys[0].String())
	if err != nil {
		return Result{}, err
	}
	account2, err := reg.Open(ctx, pubsub.KindAccount, keys[1].String())
	if err != nil {
		return Result{}, err
	}
	program, err := reg.Open(ctx, pubsub.KindProgram, ledger.CounterProgram.String())
	if err != nil {
		return Result{}, err
	}

	for range k {
		for i, key := range keys {
			fmt.Fprintf(out, "Incrementing account #%d...\n", i+1)
			if _, err := m.Increment(ctx, key); err != nil {
				return Result{}, fmt.Errorf("increment account #%d: %w", i+1, err)
			}
			counter, err := m.Counter(ctx, key)
			if err != nil {
				return Result{}, fmt.Errorf("read account #%d: %w", i+1, err)
			}
			fmt.Fprintf(out, "Counter #%d: %d\n", i+1, counter)
		}
	}

	fmt.Fprintln(out, "Closing account #2...")
	if _, err := m.CloseAccount(ctx, keys[1]); err != nil {
		return Result{}, fmt.Errorf("close account #2: %w", err)
	}
	_, found, err := m.GetAccount(ctx, keys[1])
	if err != nil {
		return Result{}, fmt.Errorf("read account #2: %w", err)
	}
	fmt.Fprintf(out, "Account #2 found: %v\n", found)
	if found {
		return Result{}, errors.New("account #2 still exists after close")
	}

	for _, ep := range []*pubsub.Endpoint{account1, account2, program} {
		if err := ep.Sync(ctx); err != nil {
			return Result{}, err
		}
	}

	result := Result{Account1: account1.Len(), Account2: account2.Len(), Program: program.Len()}
	fmt.Fprintln(out, "Messages:")
	fmt.Fprintf(out, "Account #1: %d\n", result.Account1)
	fmt.Fprintf(out, "Account #2: %d\n", result.Account2)
	fmt.Fprintf(out, "Program   : %d\n", result.Program)

	if want := Expected(k); result != want {
		return result, fmt.Errorf("scenario: got %+v, want %+v", result, want)
	}
	return result, nil
}
