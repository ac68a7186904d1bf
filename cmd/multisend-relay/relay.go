package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/bigint"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/actor"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/nspcc-dev/multisend-contract/contracts/multisend/multisendconst"
	"github.com/nspcc-dev/multisend-contract/rpc/multisend"
	"go.uber.org/zap"
)

// pendingBatchLimit caps the number of pending records fetched per poll. The
// rest is picked up on the next tick.
const pendingBatchLimit = 128

// relay wraps the Neo RPC connection and the Multisend contract binding with
// the relay account loaded for signing. Connection and all requests are done
// within 15s timeout.
type relay struct {
	rpc      *rpcclient.Client
	act      *actor.Actor
	contract *multisend.Contract
	log      *zap.Logger
}

func newRelay(endpoint, walletPath, password string, contractHash util.Uint160, l *zap.Logger) (*relay, error) {
	w, err := wallet.NewWalletFromFile(walletPath)
	if err != nil {
		return nil, fmt.Errorf("open wallet: %w", err)
	}

	if len(w.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts in wallet '%s'", walletPath)
	}

	acc := w.Accounts[0]
	err = acc.Decrypt(password, w.Scrypt)
	if err != nil {
		return nil, fmt.Errorf("decrypt relay account: %w", err)
	}

	c, err := rpcclient.New(context.Background(), endpoint, rpcclient.Options{
		DialTimeout:    15 * time.Second,
		RequestTimeout: 15 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("RPC client dial: %w", err)
	}

	act, err := actor.NewSimple(c, acc)
	if err != nil {
		return nil, fmt.Errorf("init actor: %w", err)
	}

	return &relay{
		rpc:      c,
		act:      act,
		contract: multisend.New(act, contractHash),
		log:      l,
	}, nil
}

func (r *relay) close() {
	r.rpc.Close()
}

// completePending fetches currently pending transfer records and invokes the
// matching completion method for each of them, waiting for every transaction
// to persist. A failure on one record does not stop the others.
func (r *relay) completePending() error {
	items, err := r.contract.IteratePendingTransfersExpanded(pendingBatchLimit)
	if err != nil {
		return fmt.Errorf("fetch pending transfers: %w", err)
	}

	for i := range items {
		id, p, err := parsePendingItem(items[i])
		if err != nil {
			r.log.Warn("skip malformed pending record", zap.Error(err))
			continue
		}

		err = r.complete(id, p)
		if err != nil {
			r.log.Error("completion failed",
				zap.String("id", id.String()),
				zap.Error(err))
		}
	}

	return nil
}

func (r *relay) complete(id *big.Int, p *multisend.MultisendPendingTransfer) error {
	var (
		txHash util.Uint256
		vub    uint32
		err    error
	)

	switch p.Kind.Int64() {
	case multisendconst.KindTransfer:
		txHash, vub, err = r.contract.CompleteTransfer(id)
	case multisendconst.KindWithdraw:
		txHash, vub, err = r.contract.CompleteWithdraw(id)
	default:
		return fmt.Errorf("unexpected pending record kind %d", p.Kind.Int64())
	}

	res, err := r.act.Wait(txHash, vub, err)
	if err != nil {
		return fmt.Errorf("wait for transaction persist: %w", err)
	}
	if res.VMState != vmstate.Halt {
		return fmt.Errorf("transaction %s finished in %s state: %s",
			txHash.StringLE(), res.VMState, res.FaultException)
	}

	r.log.Info("pending transfer completed",
		zap.String("id", id.String()),
		zap.String("token", p.Token.StringLE()),
		zap.String("recipient", p.Recipient.StringLE()),
		zap.String("amount", p.Amount.String()),
		zap.String("tx", txHash.StringLE()))

	return nil
}

// parsePendingItem splits a storage key-value pair produced by the
// iteratePendingTransfers method into the record id taken from the key and
// the record itself.
func parsePendingItem(item stackitem.Item) (*big.Int, *multisend.MultisendPendingTransfer, error) {
	kv, ok := item.Value().([]stackitem.Item)
	if !ok || len(kv) != 2 {
		return nil, nil, fmt.Errorf("not a key-value pair")
	}

	key, err := kv[0].TryBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("key: %w", err)
	}
	if len(key) < 2 {
		return nil, nil, fmt.Errorf("key is too short")
	}

	p := new(multisend.MultisendPendingTransfer)
	err = p.FromStackItem(kv[1])
	if err != nil {
		return nil, nil, fmt.Errorf("value: %w", err)
	}

	// the first key byte is the storage prefix, the rest is the id
	return bigint.FromBytes(key[1:]), p, nil
}
