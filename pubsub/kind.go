package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
)

// Kind selects what a subscription is bound to.
type Kind int

const (
	// KindAccount follows one account key regardless of its owner.
	KindAccount Kind = iota
	// KindProgram follows every account whose post-commit owner is the target.
	KindProgram
)

func (k Kind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindProgram:
		return "program"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) valid() bool {
	return k == KindAccount || k == KindProgram
}

func (k Kind) subscribeMethod() string {
	if k == KindProgram {
		return rpc.MethodProgramSubscribe
	}
	return rpc.MethodAccountSubscribe
}

func (k Kind) unsubscribeMethod() string {
	if k == KindProgram {
		return rpc.MethodProgramUnsubscribe
	}
	return rpc.MethodAccountUnsubscribe
}

func (k Kind) notificationMethod() string {
	if k == KindProgram {
		return rpc.MethodProgramNotification
	}
	return rpc.MethodAccountNotification
}

func (k Kind) subscribeParams(target ledger.Key, opts Options) any {
	if k == KindProgram {
		return rpc.ProgramSubscribeParams{
			ProgramID:  target.String(),
			Commitment: opts.Commitment,
			Encoding:   rpc.EncodingBase64,
			Filters:    opts.Filters,
		}
	}
	return rpc.AccountSubscribeParams{
		Pubkey:     target.String(),
		Commitment: opts.Commitment,
		Encoding:   rpc.EncodingBase64,
	}
}

// decode turns a notification payload into a Notification. Account
// notifications carry no pubkey, so the subscribed target is used.
func (k Kind) decode(target ledger.Key, params *json.RawMessage) (Notification, error) {
	if params == nil {
		return Notification{}, errors.New("notification without params")
	}

	if k == KindProgram {
		var p rpc.ProgramNotificationParams
		if err := json.Unmarshal(*params, &p); err != nil {
			return Notification{}, err
		}
		key, err := ledger.ParseKey(p.Result.Value.Pubkey)
		if err != nil {
			return Notification{}, err
		}
		acc, err := p.Result.Value.Account.Decode(key)
		if err != nil {
			return Notification{}, err
		}
		return Notification{Subscription: p.Subscription, Slot: p.Result.Context.Slot, Account: acc}, nil
	}

	var p rpc.AccountNotificationParams
	if err := json.Unmarshal(*params, &p); err != nil {
		return Notification{}, err
	}
	acc, err := p.Result.Value.Decode(target)
	if err != nil {
		return Notification{}, err
	}
	return Notification{Subscription: p.Subscription, Slot: p.Result.Context.Slot, Account: acc}, nil
}
