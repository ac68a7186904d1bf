// Package multisend contains RPC wrappers for Multisend contract.
package multisend

import (
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/unwrap"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"math/big"
	"unicode/utf8"
)

// MultisendMetadata is a contract-specific multisend.Metadata type used by its methods.
type MultisendMetadata struct {
	Symbol string
	Decimals *big.Int
}

// MultisendPendingTransfer is a contract-specific multisend.PendingTransfer type used by its methods.
type MultisendPendingTransfer struct {
	Sender util.Uint160
	Token util.Uint160
	Recipient util.Uint160
	Amount *big.Int
	Kind *big.Int
}

// MultisendUserStats is a contract-specific multisend.UserStats type used by its methods.
type MultisendUserStats struct {
	Deposited *big.Int
	Transferred *big.Int
}

// DepositEvent represents "Deposit" event emitted by the contract.
type DepositEvent struct {
	Token util.Uint160
	From util.Uint160
	Amount *big.Int
}

// TransferRequestEvent represents "TransferRequest" event emitted by the contract.
type TransferRequestEvent struct {
	ID *big.Int
	Token util.Uint160
	From util.Uint160
	To util.Uint160
	Amount *big.Int
}

// TransferCompletedEvent represents "TransferCompleted" event emitted by the contract.
type TransferCompletedEvent struct {
	ID *big.Int
	Token util.Uint160
	To util.Uint160
	Amount *big.Int
}

// TransferReturnedEvent represents "TransferReturned" event emitted by the contract.
type TransferReturnedEvent struct {
	ID *big.Int
	Token util.Uint160
	From util.Uint160
	Amount *big.Int
}

// WithdrawRequestEvent represents "WithdrawRequest" event emitted by the contract.
type WithdrawRequestEvent struct {
	ID *big.Int
	Token util.Uint160
	From util.Uint160
	Amount *big.Int
}

// WithdrawCompletedEvent represents "WithdrawCompleted" event emitted by the contract.
type WithdrawCompletedEvent struct {
	ID *big.Int
	Token util.Uint160
	From util.Uint160
	Amount *big.Int
}

// WithdrawReturnedEvent represents "WithdrawReturned" event emitted by the contract.
type WithdrawReturnedEvent struct {
	ID *big.Int
	Token util.Uint160
	From util.Uint160
	Amount *big.Int
}

// TokenWhitelistedEvent represents "TokenWhitelisted" event emitted by the contract.
type TokenWhitelistedEvent struct {
	Token util.Uint160
}

// RecipientRegisteredEvent represents "RecipientRegistered" event emitted by the contract.
type RecipientRegisteredEvent struct {
	Token util.Uint160
	Account util.Uint160
}

// OwnershipTransferredEvent represents "OwnershipTransferred" event emitted by the contract.
type OwnershipTransferredEvent struct {
	From util.Uint160
	To util.Uint160
}

// Invoker is used by ContractReader to call various safe methods.
type Invoker interface {
	Call(contract util.Uint160, operation string, params ...any) (*result.Invoke, error)
	CallAndExpandIterator(contract util.Uint160, method string, maxItems int, params ...any) (*result.Invoke, error)
	TerminateSession(sessionID uuid.UUID) error
	TraverseIterator(sessionID uuid.UUID, iterator *result.Iterator, num int) ([]stackitem.Item, error)
}

// Actor is used by Contract to call state-changing methods.
type Actor interface {
	Invoker

	MakeCall(contract util.Uint160, method string, params ...any) (*transaction.Transaction, error)
	MakeRun(script []byte) (*transaction.Transaction, error)
	MakeUnsignedCall(contract util.Uint160, method string, attrs []transaction.Attribute, params ...any) (*transaction.Transaction, error)
	MakeUnsignedRun(script []byte, attrs []transaction.Attribute) (*transaction.Transaction, error)
	SendCall(contract util.Uint160, method string, params ...any) (util.Uint256, uint32, error)
	SendRun(script []byte) (util.Uint256, uint32, error)
}

// ContractReader implements safe contract methods.
type ContractReader struct {
	invoker Invoker
	hash util.Uint160
}

// Contract implements all contract methods.
type Contract struct {
	ContractReader
	actor Actor
	hash util.Uint160
}

// NewReader creates an instance of ContractReader using provided contract hash and the given Invoker.
func NewReader(invoker Invoker, hash util.Uint160) *ContractReader {
	return &ContractReader{invoker, hash}
}

// New creates an instance of Contract using provided contract hash and the given Actor.
func New(actor Actor, hash util.Uint160) *Contract {
	return &Contract{ContractReader{actor, hash}, actor, hash}
}

// BalanceOf invokes `balanceOf` method of contract.
func (c *ContractReader) BalanceOf(account util.Uint160, token util.Uint160) (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, "balanceOf", account, token))
}

// IsTokenWhitelisted invokes `isTokenWhitelisted` method of contract.
func (c *ContractReader) IsTokenWhitelisted(token util.Uint160) (bool, error) {
	return unwrap.Bool(c.invoker.Call(c.hash, "isTokenWhitelisted", token))
}

// IteratePendingTransfers invokes `iteratePendingTransfers` method of contract.
func (c *ContractReader) IteratePendingTransfers() (uuid.UUID, result.Iterator, error) {
	return unwrap.SessionIterator(c.invoker.Call(c.hash, "iteratePendingTransfers"))
}

// IteratePendingTransfersExpanded is similar to IteratePendingTransfers (uses the same contract
// method), but can be useful if the server used doesn't support sessions and
// doesn't expand iterators. It creates a script that will get the specified
// number of result items from the iterator right in the VM and return them to
// you. It's only limited by VM stack and GAS available for RPC invocations.
func (c *ContractReader) IteratePendingTransfersExpanded(_numOfIteratorItems int) ([]stackitem.Item, error) {
	return unwrap.Array(c.invoker.CallAndExpandIterator(c.hash, "iteratePendingTransfers", _numOfIteratorItems))
}

// Owner invokes `owner` method of contract.
func (c *ContractReader) Owner() (util.Uint160, error) {
	return unwrap.Uint160(c.invoker.Call(c.hash, "owner"))
}

// PendingTransferInfo invokes `pendingTransferInfo` method of contract.
func (c *ContractReader) PendingTransferInfo(id *big.Int) (*MultisendPendingTransfer, error) {
	return itemToMultisendPendingTransfer(unwrap.Item(c.invoker.Call(c.hash, "pendingTransferInfo", id)))
}

// Relay invokes `relay` method of contract.
func (c *ContractReader) Relay() (util.Uint160, error) {
	return unwrap.Uint160(c.invoker.Call(c.hash, "relay"))
}

// Stats invokes `stats` method of contract.
func (c *ContractReader) Stats(account util.Uint160, token util.Uint160) (*MultisendUserStats, error) {
	return itemToMultisendUserStats(unwrap.Item(c.invoker.Call(c.hash, "stats", account, token)))
}

// TokenMetadata invokes `tokenMetadata` method of contract.
func (c *ContractReader) TokenMetadata(token util.Uint160) (*MultisendMetadata, error) {
	return itemToMultisendMetadata(unwrap.Item(c.invoker.Call(c.hash, "tokenMetadata", token)))
}

// Version invokes `version` method of contract.
func (c *ContractReader) Version() (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, "version"))
}

// WhitelistedTokens invokes `whitelistedTokens` method of contract.
func (c *ContractReader) WhitelistedTokens() (uuid.UUID, result.Iterator, error) {
	return unwrap.SessionIterator(c.invoker.Call(c.hash, "whitelistedTokens"))
}

// WhitelistedTokensExpanded is similar to WhitelistedTokens (uses the same contract
// method), but can be useful if the server used doesn't support sessions and
// doesn't expand iterators. It creates a script that will get the specified
// number of result items from the iterator right in the VM and return them to
// you. It's only limited by VM stack and GAS available for RPC invocations.
func (c *ContractReader) WhitelistedTokensExpanded(_numOfIteratorItems int) ([]stackitem.Item, error) {
	return unwrap.Array(c.invoker.CallAndExpandIterator(c.hash, "whitelistedTokens", _numOfIteratorItems))
}

// CompleteTransfer creates a transaction invoking `completeTransfer` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) CompleteTransfer(id *big.Int) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "completeTransfer", id)
}

// CompleteTransferTransaction creates a transaction invoking `completeTransfer` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) CompleteTransferTransaction(id *big.Int) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "completeTransfer", id)
}

// CompleteTransferUnsigned creates a transaction invoking `completeTransfer` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) CompleteTransferUnsigned(id *big.Int) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "completeTransfer", nil, id)
}

// CompleteWithdraw creates a transaction invoking `completeWithdraw` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) CompleteWithdraw(id *big.Int) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "completeWithdraw", id)
}

// CompleteWithdrawTransaction creates a transaction invoking `completeWithdraw` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) CompleteWithdrawTransaction(id *big.Int) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "completeWithdraw", id)
}

// CompleteWithdrawUnsigned creates a transaction invoking `completeWithdraw` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) CompleteWithdrawUnsigned(id *big.Int) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "completeWithdraw", nil, id)
}

// MultiSend creates a transaction invoking `multiSend` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) MultiSend(from util.Uint160, token util.Uint160, operations []any) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "multiSend", from, token, operations)
}

// MultiSendTransaction creates a transaction invoking `multiSend` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) MultiSendTransaction(from util.Uint160, token util.Uint160, operations []any) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "multiSend", from, token, operations)
}

// MultiSendUnsigned creates a transaction invoking `multiSend` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) MultiSendUnsigned(from util.Uint160, token util.Uint160, operations []any) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "multiSend", nil, from, token, operations)
}

// MultiSendUnsafe creates a transaction invoking `multiSendUnsafe` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) MultiSendUnsafe(from util.Uint160, token util.Uint160, operations []any) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "multiSendUnsafe", from, token, operations)
}

// MultiSendUnsafeTransaction creates a transaction invoking `multiSendUnsafe` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) MultiSendUnsafeTransaction(from util.Uint160, token util.Uint160, operations []any) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "multiSendUnsafe", from, token, operations)
}

// MultiSendUnsafeUnsigned creates a transaction invoking `multiSendUnsafe` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) MultiSendUnsafeUnsigned(from util.Uint160, token util.Uint160, operations []any) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "multiSendUnsafe", nil, from, token, operations)
}

// RegisterRecipients creates a transaction invoking `registerRecipients` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) RegisterRecipients(payer util.Uint160, token util.Uint160, accounts []util.Uint160) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "registerRecipients", payer, token, accounts)
}

// RegisterRecipientsTransaction creates a transaction invoking `registerRecipients` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) RegisterRecipientsTransaction(payer util.Uint160, token util.Uint160, accounts []util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "registerRecipients", payer, token, accounts)
}

// RegisterRecipientsUnsigned creates a transaction invoking `registerRecipients` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) RegisterRecipientsUnsigned(payer util.Uint160, token util.Uint160, accounts []util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "registerRecipients", nil, payer, token, accounts)
}

// SetRelay creates a transaction invoking `setRelay` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) SetRelay(relay util.Uint160) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "setRelay", relay)
}

// SetRelayTransaction creates a transaction invoking `setRelay` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) SetRelayTransaction(relay util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "setRelay", relay)
}

// SetRelayUnsigned creates a transaction invoking `setRelay` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) SetRelayUnsigned(relay util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "setRelay", nil, relay)
}

// TransferOwnership creates a transaction invoking `transferOwnership` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) TransferOwnership(newOwner util.Uint160) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "transferOwnership", newOwner)
}

// TransferOwnershipTransaction creates a transaction invoking `transferOwnership` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) TransferOwnershipTransaction(newOwner util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "transferOwnership", newOwner)
}

// TransferOwnershipUnsigned creates a transaction invoking `transferOwnership` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) TransferOwnershipUnsigned(newOwner util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "transferOwnership", nil, newOwner)
}

// Update creates a transaction invoking `update` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) Update(script []byte, manifest []byte, data any) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "update", script, manifest, data)
}

// UpdateTransaction creates a transaction invoking `update` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) UpdateTransaction(script []byte, manifest []byte, data any) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "update", script, manifest, data)
}

// UpdateUnsigned creates a transaction invoking `update` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) UpdateUnsigned(script []byte, manifest []byte, data any) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "update", nil, script, manifest, data)
}

// WhitelistToken creates a transaction invoking `whitelistToken` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) WhitelistToken(token util.Uint160) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "whitelistToken", token)
}

// WhitelistTokenTransaction creates a transaction invoking `whitelistToken` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) WhitelistTokenTransaction(token util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "whitelistToken", token)
}

// WhitelistTokenUnsigned creates a transaction invoking `whitelistToken` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) WhitelistTokenUnsigned(token util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "whitelistToken", nil, token)
}

// WithdrawAll creates a transaction invoking `withdrawAll` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) WithdrawAll(from util.Uint160, token util.Uint160) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "withdrawAll", from, token)
}

// WithdrawAllTransaction creates a transaction invoking `withdrawAll` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) WithdrawAllTransaction(from util.Uint160, token util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "withdrawAll", from, token)
}

// WithdrawAllUnsigned creates a transaction invoking `withdrawAll` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) WithdrawAllUnsigned(from util.Uint160, token util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "withdrawAll", nil, from, token)
}

// itemToMultisendMetadata converts stack item into *MultisendMetadata.
func itemToMultisendMetadata(item stackitem.Item, err error) (*MultisendMetadata, error) {
	if err != nil {
		return nil, err
	}
	var res = new(MultisendMetadata)
	err = res.FromStackItem(item)
	return res, err
}

// FromStackItem retrieves fields of MultisendMetadata from the given
// [stackitem.Item] or returns an error if it's not possible to do to so.
func (res *MultisendMetadata) FromStackItem(item stackitem.Item) error {
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 2 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	res.Symbol, err = func (item stackitem.Item) (string, error) {
		b, err := item.TryBytes()
		if err != nil {
			return "", err
		}
		if !utf8.Valid(b) {
			return "", errors.New("not a UTF-8 string")
		}
		return string(b), nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Symbol: %w", err)
	}

	index++
	res.Decimals, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Decimals: %w", err)
	}

	return nil
}

// itemToMultisendPendingTransfer converts stack item into *MultisendPendingTransfer.
func itemToMultisendPendingTransfer(item stackitem.Item, err error) (*MultisendPendingTransfer, error) {
	if err != nil {
		return nil, err
	}
	var res = new(MultisendPendingTransfer)
	err = res.FromStackItem(item)
	return res, err
}

// FromStackItem retrieves fields of MultisendPendingTransfer from the given
// [stackitem.Item] or returns an error if it's not possible to do to so.
func (res *MultisendPendingTransfer) FromStackItem(item stackitem.Item) error {
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 5 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	res.Sender, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Sender: %w", err)
	}

	index++
	res.Token, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Token: %w", err)
	}

	index++
	res.Recipient, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Recipient: %w", err)
	}

	index++
	res.Amount, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Amount: %w", err)
	}

	index++
	res.Kind, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Kind: %w", err)
	}

	return nil
}

// itemToMultisendUserStats converts stack item into *MultisendUserStats.
func itemToMultisendUserStats(item stackitem.Item, err error) (*MultisendUserStats, error) {
	if err != nil {
		return nil, err
	}
	var res = new(MultisendUserStats)
	err = res.FromStackItem(item)
	return res, err
}

// FromStackItem retrieves fields of MultisendUserStats from the given
// [stackitem.Item] or returns an error if it's not possible to do to so.
func (res *MultisendUserStats) FromStackItem(item stackitem.Item) error {
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 2 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	res.Deposited, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Deposited: %w", err)
	}

	index++
	res.Transferred, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Transferred: %w", err)
	}

	return nil
}

// DepositEventsFromApplicationLog retrieves a set of all emitted events
// with "Deposit" name from the provided [result.ApplicationLog].
func DepositEventsFromApplicationLog(log *result.ApplicationLog) ([]*DepositEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*DepositEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "Deposit" {
				continue
			}
			event := new(DepositEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize DepositEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to DepositEvent or
// returns an error if it's not possible to do to so.
func (e *DepositEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 3 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.Token, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Token: %w", err)
	}

	index++
	e.From, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field From: %w", err)
	}

	index++
	e.Amount, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Amount: %w", err)
	}

	return nil
}

// TransferRequestEventsFromApplicationLog retrieves a set of all emitted events
// with "TransferRequest" name from the provided [result.ApplicationLog].
func TransferRequestEventsFromApplicationLog(log *result.ApplicationLog) ([]*TransferRequestEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*TransferRequestEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "TransferRequest" {
				continue
			}
			event := new(TransferRequestEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize TransferRequestEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to TransferRequestEvent or
// returns an error if it's not possible to do to so.
func (e *TransferRequestEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 5 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.ID, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field ID: %w", err)
	}

	index++
	e.Token, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Token: %w", err)
	}

	index++
	e.From, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field From: %w", err)
	}

	index++
	e.To, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field To: %w", err)
	}

	index++
	e.Amount, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Amount: %w", err)
	}

	return nil
}

// TransferCompletedEventsFromApplicationLog retrieves a set of all emitted events
// with "TransferCompleted" name from the provided [result.ApplicationLog].
func TransferCompletedEventsFromApplicationLog(log *result.ApplicationLog) ([]*TransferCompletedEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*TransferCompletedEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "TransferCompleted" {
				continue
			}
			event := new(TransferCompletedEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize TransferCompletedEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to TransferCompletedEvent or
// returns an error if it's not possible to do to so.
func (e *TransferCompletedEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 4 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.ID, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field ID: %w", err)
	}

	index++
	e.Token, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Token: %w", err)
	}

	index++
	e.To, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field To: %w", err)
	}

	index++
	e.Amount, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Amount: %w", err)
	}

	return nil
}

// TransferReturnedEventsFromApplicationLog retrieves a set of all emitted events
// with "TransferReturned" name from the provided [result.ApplicationLog].
func TransferReturnedEventsFromApplicationLog(log *result.ApplicationLog) ([]*TransferReturnedEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*TransferReturnedEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "TransferReturned" {
				continue
			}
			event := new(TransferReturnedEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize TransferReturnedEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to TransferReturnedEvent or
// returns an error if it's not possible to do to so.
func (e *TransferReturnedEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 4 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.ID, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field ID: %w", err)
	}

	index++
	e.Token, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Token: %w", err)
	}

	index++
	e.From, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field From: %w", err)
	}

	index++
	e.Amount, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Amount: %w", err)
	}

	return nil
}

// WithdrawRequestEventsFromApplicationLog retrieves a set of all emitted events
// with "WithdrawRequest" name from the provided [result.ApplicationLog].
func WithdrawRequestEventsFromApplicationLog(log *result.ApplicationLog) ([]*WithdrawRequestEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*WithdrawRequestEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "WithdrawRequest" {
				continue
			}
			event := new(WithdrawRequestEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize WithdrawRequestEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to WithdrawRequestEvent or
// returns an error if it's not possible to do to so.
func (e *WithdrawRequestEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 4 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.ID, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field ID: %w", err)
	}

	index++
	e.Token, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Token: %w", err)
	}

	index++
	e.From, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field From: %w", err)
	}

	index++
	e.Amount, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Amount: %w", err)
	}

	return nil
}

// WithdrawCompletedEventsFromApplicationLog retrieves a set of all emitted events
// with "WithdrawCompleted" name from the provided [result.ApplicationLog].
func WithdrawCompletedEventsFromApplicationLog(log *result.ApplicationLog) ([]*WithdrawCompletedEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*WithdrawCompletedEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "WithdrawCompleted" {
				continue
			}
			event := new(WithdrawCompletedEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize WithdrawCompletedEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to WithdrawCompletedEvent or
// returns an error if it's not possible to do to so.
func (e *WithdrawCompletedEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 4 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.ID, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field ID: %w", err)
	}

	index++
	e.Token, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Token: %w", err)
	}

	index++
	e.From, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field From: %w", err)
	}

	index++
	e.Amount, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Amount: %w", err)
	}

	return nil
}

// WithdrawReturnedEventsFromApplicationLog retrieves a set of all emitted events
// with "WithdrawReturned" name from the provided [result.ApplicationLog].
func WithdrawReturnedEventsFromApplicationLog(log *result.ApplicationLog) ([]*WithdrawReturnedEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*WithdrawReturnedEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "WithdrawReturned" {
				continue
			}
			event := new(WithdrawReturnedEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize WithdrawReturnedEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to WithdrawReturnedEvent or
// returns an error if it's not possible to do to so.
func (e *WithdrawReturnedEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 4 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.ID, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field ID: %w", err)
	}

	index++
	e.Token, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Token: %w", err)
	}

	index++
	e.From, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field From: %w", err)
	}

	index++
	e.Amount, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Amount: %w", err)
	}

	return nil
}

// TokenWhitelistedEventsFromApplicationLog retrieves a set of all emitted events
// with "TokenWhitelisted" name from the provided [result.ApplicationLog].
func TokenWhitelistedEventsFromApplicationLog(log *result.ApplicationLog) ([]*TokenWhitelistedEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*TokenWhitelistedEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "TokenWhitelisted" {
				continue
			}
			event := new(TokenWhitelistedEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize TokenWhitelistedEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to TokenWhitelistedEvent or
// returns an error if it's not possible to do to so.
func (e *TokenWhitelistedEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 1 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.Token, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Token: %w", err)
	}

	return nil
}

// RecipientRegisteredEventsFromApplicationLog retrieves a set of all emitted events
// with "RecipientRegistered" name from the provided [result.ApplicationLog].
func RecipientRegisteredEventsFromApplicationLog(log *result.ApplicationLog) ([]*RecipientRegisteredEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*RecipientRegisteredEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "RecipientRegistered" {
				continue
			}
			event := new(RecipientRegisteredEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize RecipientRegisteredEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to RecipientRegisteredEvent or
// returns an error if it's not possible to do to so.
func (e *RecipientRegisteredEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 2 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.Token, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Token: %w", err)
	}

	index++
	e.Account, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Account: %w", err)
	}

	return nil
}

// OwnershipTransferredEventsFromApplicationLog retrieves a set of all emitted events
// with "OwnershipTransferred" name from the provided [result.ApplicationLog].
func OwnershipTransferredEventsFromApplicationLog(log *result.ApplicationLog) ([]*OwnershipTransferredEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*OwnershipTransferredEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "OwnershipTransferred" {
				continue
			}
			event := new(OwnershipTransferredEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize OwnershipTransferredEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to OwnershipTransferredEvent or
// returns an error if it's not possible to do to so.
func (e *OwnershipTransferredEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 2 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.From, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field From: %w", err)
	}

	index++
	e.To, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field To: %w", err)
	}

	return nil
}
