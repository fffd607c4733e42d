package ledger

import (
	"fmt"
	"math"
)

// runCounter executes the counter program: opcode 0 increments data[0]
// (saturating), opcode 1 closes the account into the sink.
func runCounter(tx *txn, ins Instruction) error {
	if len(ins.Data) == 0 {
		return fmt.Errorf("%w: empty instruction data", ErrInvalidInstruction)
	}

	switch ins.Data[0] {
	case OpIncrement:
		if len(ins.Accounts) < 1 {
			return fmt.Errorf("%w: increment needs 1 account", ErrInvalidInstruction)
		}
		key := ins.Accounts[0]
		acc, err := loadOwned(tx, "increment", key, ins.ProgramID)
		if err != nil {
			return err
		}
		if len(acc.Data) == 0 {
			return &AccountError{Op: "increment", Key: key, Err: ErrMalformedData}
		}
		if acc.Data[0] < math.MaxUint8 {
			acc.Data[0]++
		}
		tx.write(key)
		return nil

	case OpClose:
		if len(ins.Accounts) < 2 {
			return fmt.Errorf("%w: close needs 2 accounts", ErrInvalidInstruction)
		}
		key, sinkKey := ins.Accounts[0], ins.Accounts[1]
		if key == sinkKey {
			return fmt.Errorf("%w: close into itself", ErrInvalidInstruction)
		}
		acc, err := loadOwned(tx, "close", key, ins.ProgramID)
		if err != nil {
			return err
		}
		sink := tx.loadOrCreate(sinkKey, SystemProgram)

		sink.Lamports = saturatingAdd(sink.Lamports, acc.Lamports)
		acc.Lamports = 0
		acc.Data = []byte{}
		acc.Owner = SystemProgram

		tx.remove(key)
		tx.write(sinkKey)
		return nil

	default:
		return fmt.Errorf("%w: unknown opcode %d", ErrInvalidInstruction, ins.Data[0])
	}
}

func loadOwned(tx *txn, op string, key, program Key) (*Account, error) {
	acc, ok := tx.load(key)
	if !ok {
		return nil, &AccountError{Op: op, Key: key, Err: ErrMissingAccount}
	}
	if acc.Owner != program {
		return nil, &AccountError{Op: op, Key: key, Err: ErrIllegalOwner}
	}
	return acc, nil
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
