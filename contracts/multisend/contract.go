package multisend

import (
	"github.com/nspcc-dev/neo-go/pkg/interop"
	"github.com/nspcc-dev/neo-go/pkg/interop/contract"
	"github.com/nspcc-dev/neo-go/pkg/interop/convert"
	"github.com/nspcc-dev/neo-go/pkg/interop/iterator"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/gas"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/management"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/std"
	"github.com/nspcc-dev/neo-go/pkg/interop/runtime"
	"github.com/nspcc-dev/neo-go/pkg/interop/storage"
	"github.com/nspcc-dev/multisend-contract/common"
	"github.com/nspcc-dev/multisend-contract/contracts/multisend/multisendconst"
)

type (
	// Operation is one batch entry: a recipient and the amount it should
	// receive. Zero amounts pass through, duplicate recipients are
	// processed independently.
	Operation struct {
		Recipient interop.Hash160
		Amount    int
	}

	// PendingTransfer carries everything needed to finish or compensate
	// one dispatched transfer. It is stored until the relay reports the
	// outcome via CompleteTransfer or CompleteWithdraw.
	PendingTransfer struct {
		Sender    interop.Hash160
		Token     interop.Hash160
		Recipient interop.Hash160
		Amount    int
		Kind      int
	}

	// UserStats holds lifetime counters of one account for one token.
	UserStats struct {
		Deposited   int
		Transferred int
	}

	// Metadata is token metadata reported by a whitelisted token contract.
	Metadata struct {
		Symbol   string
		Decimals int
	}
)

// versionedUserStats wraps UserStats with a schema discriminant so that the
// stored format can evolve without breaking existing entries.
type versionedUserStats struct {
	Schema int
	Stats  UserStats
}

const (
	ownerKey   = 'o'
	relayKey   = 'r'
	counterKey = 'c'

	whitelistPrefix = 'w'
	balancePrefix   = 'b'
	statsPrefix     = 's'
	pendingPrefix   = 'p'

	statsSchema = 1

	// hardcoded value to ignore bond movements in OnNEP17Payment.
	bondMarker = "\x6d\x73"
)

// nolint:deadcode,unused
func _deploy(data any, isUpdate bool) {
	ctx := storage.GetContext()
	if isUpdate {
		args := data.([]any)
		common.CheckVersion(args[len(args)-1].(int))
		return
	}

	args := data.(struct {
		owner interop.Hash160
		relay interop.Hash160
	})

	if len(args.owner) != interop.Hash160Len {
		panic("incorrect owner script hash")
	}

	relay := args.relay
	if len(relay) == 0 {
		relay = args.owner
	}
	if len(relay) != interop.Hash160Len {
		panic("incorrect relay script hash")
	}

	storage.Put(ctx, ownerKey, args.owner)
	storage.Put(ctx, relayKey, relay)

	runtime.Log("multisend contract initialized")
}

// Update method updates contract source code and manifest. It can be invoked
// only by the contract owner.
func Update(nefFile, manifest []byte, data any) {
	common.CheckOwnerWitness(getOwner(storage.GetReadOnlyContext()))

	contract.Call(interop.Hash160(management.Hash), "update",
		contract.All, nefFile, manifest, common.AppendVersion(data))
	runtime.Log("multisend contract updated")
}

// Owner returns the script hash of the contract owner.
func Owner() interop.Hash160 {
	return getOwner(storage.GetReadOnlyContext())
}

// Relay returns the script hash of the account authorized to invoke
// CompleteTransfer and CompleteWithdraw.
func Relay() interop.Hash160 {
	return getRelay(storage.GetReadOnlyContext())
}

// TransferOwnership transfers contract ownership to another account. It can
// be invoked only by the current owner.
//
// It produces OwnershipTransferred notification.
func TransferOwnership(newOwner interop.Hash160) {
	ctx := storage.GetContext()
	owner := getOwner(ctx)
	common.CheckOwnerWitness(owner)

	if len(newOwner) != interop.Hash160Len {
		panic("incorrect owner script hash")
	}

	storage.Put(ctx, ownerKey, newOwner)
	runtime.Notify("OwnershipTransferred", owner, newOwner)
	runtime.Log("contract ownership transferred")
}

// SetRelay replaces the account authorized to complete pending transfers.
// It can be invoked only by the contract owner.
func SetRelay(newRelay interop.Hash160) {
	ctx := storage.GetContext()
	common.CheckOwnerWitness(getOwner(ctx))

	if len(newRelay) != interop.Hash160Len {
		panic("incorrect relay script hash")
	}

	storage.Put(ctx, relayKey, newRelay)
	runtime.Log("relay account updated")
}

// WhitelistToken adds a token contract to the whitelist and registers the
// multisend account with the token service. It can be invoked only by the
// contract owner. Whitelisting is append-only, there is no removal method.
//
// It produces TokenWhitelisted notification.
func WhitelistToken(token interop.Hash160) {
	ctx := storage.GetContext()
	common.CheckOwnerWitness(getOwner(ctx))

	if len(token) != interop.Hash160Len {
		panic("incorrect token script hash")
	}

	key := whitelistKey(token)
	if storage.Get(ctx, key) != nil {
		panic(multisendconst.ErrTokenAlreadyWhitelisted)
	}

	storage.Put(ctx, key, []byte{1})

	contract.Call(token, "register", contract.All, runtime.GetExecutingScriptHash())

	runtime.Notify("TokenWhitelisted", token)
	runtime.Log("token whitelisted")
}

// IsTokenWhitelisted returns true if the token contract has been whitelisted.
func IsTokenWhitelisted(token interop.Hash160) bool {
	return storage.Get(storage.GetReadOnlyContext(), whitelistKey(token)) != nil
}

// WhitelistedTokens returns an iterator over script hashes of all
// whitelisted token contracts.
func WhitelistedTokens() iterator.Iterator {
	return storage.Find(storage.GetReadOnlyContext(), []byte{whitelistPrefix},
		storage.KeysOnly|storage.RemovePrefix)
}

// OnNEP17Payment is a callback for NEP-17 compatible token contracts. An
// incoming transfer from a whitelisted token contract with empty data is
// absorbed as a deposit to the sender's multisend balance. Transfers with
// non-empty data and transfers of non-whitelisted tokens are aborted, which
// returns the full amount to the sender. GAS movements marked as
// registration bonds are ignored.
//
// It produces Deposit notification.
func OnNEP17Payment(from interop.Hash160, amount int, data any) {
	token := runtime.GetCallingScriptHash()

	msg := data.(interop.Hash160)
	if token.Equals(gas.Hash) && msg.Equals(bondMarker) {
		return
	}

	ctx := storage.GetContext()

	if storage.Get(ctx, whitelistKey(token)) == nil {
		common.AbortWithMessage(multisendconst.ErrTokenNotWhitelisted)
	}

	if amount <= 0 {
		common.AbortWithMessage("amount must be positive")
	} else if amount > multisendconst.MaxAmount {
		common.AbortWithMessage("out of max amount limit")
	}

	if len(msg) > 0 {
		common.AbortWithMessage(multisendconst.ErrFailedDepositTransfer)
	}

	key := balanceKey(token, from)
	balance := common.GetInt(ctx, key) + amount
	if balance > multisendconst.MaxAmount {
		common.AbortWithMessage("out of max amount limit")
	}
	storage.Put(ctx, key, balance)

	addDeposited(ctx, token, from, amount)

	runtime.Notify("Deposit", token, from, amount)
	runtime.Log("funds have been deposited")
}

// BalanceOf returns the deposited multisend balance of the account for the
// given token. Unknown accounts have zero balance.
func BalanceOf(account, token interop.Hash160) int {
	return common.GetInt(storage.GetReadOnlyContext(), balanceKey(token, account))
}

// Stats returns lifetime deposited and transferred counters of the account
// for the given token.
func Stats(account, token interop.Hash160) UserStats {
	return getStats(storage.GetReadOnlyContext(), token, account)
}

// TokenMetadata returns symbol and decimals of a whitelisted token contract.
func TokenMetadata(token interop.Hash160) Metadata {
	if !IsTokenWhitelisted(token) {
		panic(multisendconst.ErrTokenNotWhitelisted)
	}

	return Metadata{
		Symbol:   contract.Call(token, "symbol", contract.ReadOnly).(string),
		Decimals: contract.Call(token, "decimals", contract.ReadOnly).(int),
	}
}

// RegisterRecipients registers the accounts with the token service so they
// can receive the token. The registration bond for the whole batch is pulled
// in GAS from the payer, RegistrationBond per account. The batch is limited
// by MaxBatchSize accounts.
//
// It produces RecipientRegistered notification per account.
func RegisterRecipients(payer, token interop.Hash160, accounts []interop.Hash160) {
	ctx := storage.GetReadOnlyContext()
	requireWhitelisted(ctx, token)

	if len(accounts) > multisendconst.MaxBatchSize {
		panic(multisendconst.ErrTooManyAccounts)
	}

	bond := multisendconst.RegistrationBond * len(accounts)
	self := runtime.GetExecutingScriptHash()

	transferred := gas.Transfer(payer, self, bond, []byte(bondMarker))
	if !transferred {
		panic("failed to transfer bond, aborting")
	}

	for i := range accounts {
		account := accounts[i]
		if len(account) != interop.Hash160Len {
			panic("incorrect account script hash")
		}

		contract.Call(token, "register", contract.All, account)

		runtime.Notify("RecipientRegistered", token, account)
		runtime.Log("registered storage for account")
	}
}

// MultiSend debits the sender's deposited balance and dispatches one
// transfer per operation. The batch is admitted only if the sender has a
// ledger entry for the token and the sum of all amounts does not exceed the
// deposited balance; an admission failure leaves the ledger untouched. Each
// admitted entry debits the balance immediately and records a pending
// transfer to be finished by the relay via CompleteTransfer. It can be
// invoked only by the sender.
//
// It produces TransferRequest notification per operation.
func MultiSend(from, token interop.Hash160, operations []Operation) {
	common.CheckWitness(from)

	ctx := storage.GetContext()
	requireWhitelisted(ctx, token)

	balance, _, key := admitBatch(ctx, from, token, operations)

	for i := range operations {
		op := operations[i]

		balance -= op.Amount
		storage.Put(ctx, key, balance)

		id := nextPendingID(ctx)
		common.SetSerialized(ctx, pendingKey(id), PendingTransfer{
			Sender:    from,
			Token:     token,
			Recipient: op.Recipient,
			Amount:    op.Amount,
			Kind:      multisendconst.KindTransfer,
		})

		runtime.Notify("TransferRequest", id, token, from, op.Recipient, op.Amount)
	}
}

// MultiSendUnsafe is a degraded variant of MultiSend: the token transfers
// are performed right away and their results are not checked. A failed
// transfer silently forfeits the debited amount. It is cheaper than
// MultiSend and kept for senders that accept the trade-off.
func MultiSendUnsafe(from, token interop.Hash160, operations []Operation) {
	common.CheckWitness(from)

	ctx := storage.GetContext()
	requireWhitelisted(ctx, token)

	balance, total, key := admitBatch(ctx, from, token, operations)

	// the token calls below hand control to recipient contracts, the full
	// debit must be on the ledger before the first of them
	storage.Put(ctx, key, balance-total)
	addTransferred(ctx, token, from, total)

	self := runtime.GetExecutingScriptHash()
	for i := range operations {
		op := operations[i]

		contract.Call(token, "transfer", contract.All, self, op.Recipient, op.Amount, nil)

		runtime.Log("sending unsafe")
	}

	runtime.Log("unsafe chunk done")
}

// CompleteTransfer finishes one pending transfer dispatched by MultiSend:
// it performs the token transfer to the recipient and, if the token reports
// failure, credits the amount back to the sender's deposit. The pending
// record is removed either way, so the outcome of every dispatched transfer
// is applied exactly once. It can be invoked only by the relay account.
//
// It produces either TransferCompleted or TransferReturned notification.
func CompleteTransfer(id int) {
	ctx := storage.GetContext()
	common.CheckRelayWitness(getRelay(ctx))

	p := takePending(ctx, id, multisendconst.KindTransfer)

	self := runtime.GetExecutingScriptHash()
	ok := contract.Call(p.Token, "transfer", contract.All, self, p.Recipient, p.Amount, nil).(bool)
	if ok {
		addTransferred(ctx, p.Token, p.Sender, p.Amount)
		runtime.Notify("TransferCompleted", id, p.Token, p.Recipient, p.Amount)
		return
	}

	credit(ctx, p.Token, p.Sender, p.Amount)
	runtime.Notify("TransferReturned", id, p.Token, p.Sender, p.Amount)
	runtime.Log("transfer failed, amount kept on the sender deposit")
}

// WithdrawAll moves the whole deposited balance of the user for the given
// token back to the user. The balance is zeroed right away and a pending
// withdrawal is recorded to be finished by the relay via CompleteWithdraw.
// It can be invoked only by the user.
//
// It produces WithdrawRequest notification.
func WithdrawAll(from, token interop.Hash160) {
	common.CheckWitness(from)

	ctx := storage.GetContext()
	key := balanceKey(token, from)

	data := storage.Get(ctx, key)
	if data == nil {
		panic(multisendconst.ErrUnknownUser)
	}

	amount := data.(int)
	if amount == 0 {
		panic(multisendconst.ErrNothingToWithdraw)
	}

	storage.Put(ctx, key, 0)

	id := nextPendingID(ctx)
	common.SetSerialized(ctx, pendingKey(id), PendingTransfer{
		Sender:    from,
		Token:     token,
		Recipient: from,
		Amount:    amount,
		Kind:      multisendconst.KindWithdraw,
	})

	runtime.Notify("WithdrawRequest", id, token, from, amount)
}

// CompleteWithdraw finishes one pending withdrawal dispatched by
// WithdrawAll. On token transfer failure the full amount is returned to the
// user's deposit, on success the balance stays zeroed. It can be invoked
// only by the relay account.
//
// It produces either WithdrawCompleted or WithdrawReturned notification.
func CompleteWithdraw(id int) {
	ctx := storage.GetContext()
	common.CheckRelayWitness(getRelay(ctx))

	p := takePending(ctx, id, multisendconst.KindWithdraw)

	self := runtime.GetExecutingScriptHash()
	ok := contract.Call(p.Token, "transfer", contract.All, self, p.Recipient, p.Amount, nil).(bool)
	if ok {
		runtime.Notify("WithdrawCompleted", id, p.Token, p.Sender, p.Amount)
		return
	}

	credit(ctx, p.Token, p.Sender, p.Amount)
	runtime.Notify("WithdrawReturned", id, p.Token, p.Sender, p.Amount)
	runtime.Log("withdraw failed, amount kept on the user deposit")
}

// PendingTransferInfo returns the stored pending record for the id. It
// panics if the id is unknown or already completed.
func PendingTransferInfo(id int) PendingTransfer {
	data := storage.Get(storage.GetReadOnlyContext(), pendingKey(id))
	if data == nil {
		panic(multisendconst.ErrUnknownTransfer)
	}

	return std.Deserialize(data.([]byte)).(PendingTransfer)
}

// IteratePendingTransfers returns an iterator over all pending transfer
// records. Iteration is through key-value pairs, where value is a serialized
// PendingTransfer.
func IteratePendingTransfers() iterator.Iterator {
	return storage.Find(storage.GetReadOnlyContext(), []byte{pendingPrefix},
		storage.DeserializeValues)
}

// Version returns the version of the contract.
func Version() int {
	return common.Version
}

// admitBatch checks the batch against size cap, ledger entry presence and
// deposited balance. It must be evaluated strictly before any dispatch so
// that two batches cannot both pass on the same funds.
func admitBatch(ctx storage.Context, from, token interop.Hash160, operations []Operation) (int, int, []byte) {
	if len(operations) > multisendconst.MaxBatchSize {
		panic(multisendconst.ErrTooManyAccounts)
	}

	key := balanceKey(token, from)
	data := storage.Get(ctx, key)
	if data == nil {
		panic(multisendconst.ErrUnknownUser)
	}
	balance := data.(int)

	total := 0
	for i := range operations {
		amount := operations[i].Amount
		if amount < 0 {
			panic("negative amount")
		}
		if amount > multisendconst.MaxAmount {
			panic("out of max amount limit")
		}
		if len(operations[i].Recipient) != interop.Hash160Len {
			panic("incorrect recipient script hash")
		}

		total += amount
	}

	if total > balance {
		panic(multisendconst.ErrInsufficientBalance)
	}

	return balance, total, key
}

// takePending loads and removes the pending record. Removal before the token
// call makes re-completion of the same id impossible, including re-entrant
// attempts from the token contract.
func takePending(ctx storage.Context, id int, kind int) PendingTransfer {
	key := pendingKey(id)

	data := storage.Get(ctx, key)
	if data == nil {
		panic(multisendconst.ErrUnknownTransfer)
	}

	p := std.Deserialize(data.([]byte)).(PendingTransfer)
	if p.Kind != kind {
		panic(multisendconst.ErrUnknownTransfer)
	}

	storage.Delete(ctx, key)

	return p
}

func credit(ctx storage.Context, token, account interop.Hash160, amount int) {
	if amount < 0 {
		panic("negative amount")
	}

	key := balanceKey(token, account)
	storage.Put(ctx, key, common.GetInt(ctx, key)+amount)
}

func addDeposited(ctx storage.Context, token, account interop.Hash160, amount int) {
	stats := getStats(ctx, token, account)
	stats.Deposited += amount
	putStats(ctx, token, account, stats)
}

func addTransferred(ctx storage.Context, token, account interop.Hash160, amount int) {
	stats := getStats(ctx, token, account)
	stats.Transferred += amount
	putStats(ctx, token, account, stats)
}

func getStats(ctx storage.Context, token, account interop.Hash160) UserStats {
	data := storage.Get(ctx, statsKey(token, account))
	if data == nil {
		return UserStats{}
	}

	v := std.Deserialize(data.([]byte)).(versionedUserStats)
	if v.Schema != statsSchema {
		panic("unsupported stats schema")
	}

	return v.Stats
}

func putStats(ctx storage.Context, token, account interop.Hash160, stats UserStats) {
	common.SetSerialized(ctx, statsKey(token, account), versionedUserStats{
		Schema: statsSchema,
		Stats:  stats,
	})
}

func nextPendingID(ctx storage.Context) int {
	id := common.GetInt(ctx, counterKey) + 1
	storage.Put(ctx, counterKey, id)
	return id
}

func requireWhitelisted(ctx storage.Context, token interop.Hash160) {
	if storage.Get(ctx, whitelistKey(token)) == nil {
		panic(multisendconst.ErrTokenNotWhitelisted)
	}
}

func getOwner(ctx storage.Context) interop.Hash160 {
	return storage.Get(ctx, ownerKey).(interop.Hash160)
}

func getRelay(ctx storage.Context) interop.Hash160 {
	return storage.Get(ctx, relayKey).(interop.Hash160)
}

func whitelistKey(token interop.Hash160) []byte {
	return append([]byte{whitelistPrefix}, token...)
}

func balanceKey(token, account interop.Hash160) []byte {
	return append(append([]byte{balancePrefix}, token...), account...)
}

func statsKey(token, account interop.Hash160) []byte {
	return append(append([]byte{statsPrefix}, token...), account...)
}

func pendingKey(id int) []byte {
	return append([]byte{pendingPrefix}, convert.ToBytes(id)...)
}
