package watch

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
)

// DataFilter is a predicate over account data.
type DataFilter func(data []byte) bool

func DataSize(n int) DataFilter {
	return func(data []byte) bool { return len(data) == n }
}

func Memcmp(offset int, want []byte) DataFilter {
	want = bytes.Clone(want)
	return func(data []byte) bool {
		if offset < 0 || offset+len(want) > len(data) {
			return false
		}
		return bytes.Equal(data[offset:offset+len(want)], want)
	}
}

// FiltersFromWire compiles program subscription filters.
func FiltersFromWire(filters []rpc.Filter) ([]DataFilter, error) {
	out := make([]DataFilter, 0, len(filters))
	for i, f := range filters {
		switch {
		case f.DataSize != nil && f.Memcmp == nil:
			if *f.DataSize < 0 {
				return nil, fmt.Errorf("filter %d: negative dataSize", i)
			}
			out = append(out, DataSize(*f.DataSize))
		case f.Memcmp != nil && f.DataSize == nil:
			if f.Memcmp.Offset < 0 {
				return nil, fmt.Errorf("filter %d: negative memcmp offset", i)
			}
			b, err := base64.StdEncoding.DecodeString(f.Memcmp.Bytes)
			if err != nil {
				return nil, fmt.Errorf("filter %d: decode memcmp bytes: %w", i, err)
			}
			out = append(out, Memcmp(f.Memcmp.Offset, b))
		default:
			return nil, fmt.Errorf("filter %d: exactly one of dataSize or memcmp is required", i)
		}
	}
	return out, nil
}

// matchesAccount reports whether an update is for the subscribed key.
// Ownership is irrelevant: the close of the account is delivered too.
func matchesAccount(sub *Subscription, u ledger.AccountUpdate) bool {
	return u.Account.Key == sub.Target
}

// matchesProgram evaluates the program filter against the post-commit state.
// An account whose owner was just reassigned away from the program (close)
// no longer matches, so program subscribers never see the close.
func matchesProgram(sub *Subscription, u ledger.AccountUpdate) bool {
	if u.Account.Owner != sub.Target {
		return false
	}
	for _, f := range sub.Filters {
		if !f(u.Account.Data) {
			return false
		}
	}
	return true
}
