// Package token implements a minimal NEP-17-like token used to test the
// multisend contract. Transfers to refused accounts return false, which
// stands in for any external transfer failure.
package token

import (
	"github.com/nspcc-dev/neo-go/pkg/interop"
	"github.com/nspcc-dev/neo-go/pkg/interop/contract"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/management"
	"github.com/nspcc-dev/neo-go/pkg/interop/runtime"
	"github.com/nspcc-dev/neo-go/pkg/interop/storage"
)

const (
	balancePrefix    = 'b'
	refusedPrefix    = 'f'
	registeredPrefix = 'g'

	totalSupplyKey = 's'
)

func Symbol() string {
	return "TST"
}

func Decimals() int {
	return 8
}

func TotalSupply() int {
	return getInt(storage.GetReadOnlyContext(), []byte{totalSupplyKey})
}

func BalanceOf(account interop.Hash160) int {
	return getInt(storage.GetReadOnlyContext(), balanceKey(account))
}

// Mint creates amount of tokens on the account. Test-only, unrestricted.
func Mint(to interop.Hash160, amount int) {
	ctx := storage.GetContext()
	storage.Put(ctx, balanceKey(to), getInt(ctx, balanceKey(to))+amount)
	storage.Put(ctx, []byte{totalSupplyKey}, getInt(ctx, []byte{totalSupplyKey})+amount)

	var minted interop.Hash160
	runtime.Notify("Transfer", minted, to, amount)
}

// Refuse makes every following transfer to the account return false.
func Refuse(account interop.Hash160) {
	storage.Put(storage.GetContext(), refusedKey(account), []byte{1})
}

// Accept removes the transfer refusal from the account.
func Accept(account interop.Hash160) {
	storage.Delete(storage.GetContext(), refusedKey(account))
}

// Register marks the account as registered with the token. The multisend
// contract calls it for the pool account on whitelisting and for recipients
// on RegisterRecipients.
func Register(account interop.Hash160) {
	if len(account) != interop.Hash160Len {
		panic("incorrect account script hash")
	}
	storage.Put(storage.GetContext(), registeredKey(account), []byte{1})
}

// IsRegistered returns true if the account was registered via Register.
func IsRegistered(account interop.Hash160) bool {
	return storage.Get(storage.GetReadOnlyContext(), registeredKey(account)) != nil
}

// Transfer moves tokens between accounts following NEP-17 rules. The sender
// must either witness the transaction or be the calling contract. Transfers
// to refused accounts return false.
func Transfer(from, to interop.Hash160, amount int, data any) bool {
	if amount < 0 {
		panic("negative amount")
	}
	if len(from) != interop.Hash160Len || len(to) != interop.Hash160Len {
		panic("bad script hashes")
	}

	if !runtime.CheckWitness(from) && !runtime.GetCallingScriptHash().Equals(from) {
		return false
	}

	ctx := storage.GetContext()

	if storage.Get(ctx, refusedKey(to)) != nil {
		return false
	}

	fromBalance := getInt(ctx, balanceKey(from))
	if fromBalance < amount {
		return false
	}

	storage.Put(ctx, balanceKey(from), fromBalance-amount)
	storage.Put(ctx, balanceKey(to), getInt(ctx, balanceKey(to))+amount)

	runtime.Notify("Transfer", from, to, amount)

	if management.GetContract(to) != nil {
		contract.Call(to, "onNEP17Payment", contract.All, from, amount, data)
	}

	return true
}

func getInt(ctx storage.Context, key []byte) int {
	data := storage.Get(ctx, key)
	if data != nil {
		return data.(int)
	}

	return 0
}

func balanceKey(account interop.Hash160) []byte {
	return append([]byte{balancePrefix}, account...)
}

func refusedKey(account interop.Hash160) []byte {
	return append([]byte{refusedPrefix}, account...)
}

func registeredKey(account interop.Hash160) []byte {
	return append([]byte{registeredPrefix}, account...)
}
