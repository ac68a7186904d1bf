/*
Package multisend implements Multisend contract deployed to Neo chains.

Multisend contract custodies deposits of whitelisted NEP-17 compatible
tokens and dispatches them to many recipients in one call. Users deposit by
transferring a whitelisted token to the contract account with empty data.
The deposited balance can then be split between up to 50 recipients with
MultiSend or moved back in full with WithdrawAll.

Every dispatched transfer debits the deposited balance first and is finished
later by the relay account: the relay invokes a completion method which
performs the actual token transfer and, if the token reports failure,
returns the debited amount to the sender's deposit. Completions for entries
of the same batch may arrive in any order and interleave with new deposits
and batches, each completion only applies the amount recorded at dispatch
time. A transfer that is never completed keeps its debit, so the relay is
expected to drain IteratePendingTransfers.

# Contract notifications

Deposit notification. This notification is produced when a whitelisted
token transfer to the contract account is absorbed as a deposit.

	Deposit:
	  - name: token
	    type: Hash160
	  - name: from
	    type: Hash160
	  - name: amount
	    type: Integer

TransferRequest notification. This notification is produced for every entry
admitted by MultiSend. The relay catches the notification and invokes
CompleteTransfer with the same id.

	TransferRequest:
	  - name: id
	    type: Integer
	  - name: token
	    type: Hash160
	  - name: from
	    type: Hash160
	  - name: recipient
	    type: Hash160
	  - name: amount
	    type: Integer

TransferCompleted notification. This notification is produced when the
relay finishes a pending transfer and the token reports success.

	TransferCompleted:
	  - name: id
	    type: Integer
	  - name: token
	    type: Hash160
	  - name: recipient
	    type: Hash160
	  - name: amount
	    type: Integer

TransferReturned notification. This notification is produced when the token
reports failure and the amount is credited back to the sender's deposit.

	TransferReturned:
	  - name: id
	    type: Integer
	  - name: token
	    type: Hash160
	  - name: sender
	    type: Hash160
	  - name: amount
	    type: Integer

WithdrawRequest notification. This notification is produced by WithdrawAll
after the user's balance has been zeroed. The relay catches the
notification and invokes CompleteWithdraw with the same id.

	WithdrawRequest:
	  - name: id
	    type: Integer
	  - name: token
	    type: Hash160
	  - name: user
	    type: Hash160
	  - name: amount
	    type: Integer

WithdrawCompleted and WithdrawReturned notifications mirror
TransferCompleted and TransferReturned for withdrawals.

TokenWhitelisted notification. This notification is produced when the owner
adds a token contract to the whitelist.

	TokenWhitelisted:
	  - name: token
	    type: Hash160

RecipientRegistered notification. This notification is produced for every
account registered with a token service by RegisterRecipients.

	RecipientRegistered:
	  - name: token
	    type: Hash160
	  - name: account
	    type: Hash160

OwnershipTransferred notification. This notification is produced when the
contract owner is changed.

	OwnershipTransferred:
	  - name: previousOwner
	    type: Hash160
	  - name: newOwner
	    type: Hash160
*/
package multisend

/*
Contract storage model.

# Summary
Key-value storage format:
 - 'o' -> interop.Hash160
   contract owner
 - 'r' -> interop.Hash160
   relay account authorized to complete pending transfers
 - 'c' -> int
   pending transfer id counter
 - 'w<tokenID>' -> 1
   whitelisted token contracts
 - 'b<tokenID><accountID>' -> int
   deposited balance sheet of all multisend users
 - 's<tokenID><accountID>' -> std.Serialize(versionedUserStats)
   lifetime deposited/transferred counters
 - 'p<id>' -> std.Serialize(PendingTransfer)
   transfers dispatched but not yet completed by the relay

# Accounting
Contract stores deposited balances of all multisend users per token. A
balance key is never removed once written, zero is a valid resting state.
*/
