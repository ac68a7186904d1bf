package multisendconst

const (
	// MaxBatchSize is the maximum number of entries accepted by a single
	// multiSend, multiSendUnsafe or registerRecipients call. The limit
	// keeps dispatch within the per-transaction resource budget.
	MaxBatchSize = 50

	// AccountStorageSize is the token-side storage, in bytes, reserved per
	// registered recipient account.
	AccountStorageSize = 125
	// StoragePricePerByte is the GAS price (Fixed8) of one byte of
	// token-side recipient storage.
	StoragePricePerByte = 100_000
	// RegistrationBond is the GAS amount (Fixed8) pulled from the caller
	// for every account passed to registerRecipients.
	RegistrationBond = AccountStorageSize * StoragePricePerByte

	// MaxAmount is the biggest single amount accepted for deposits and
	// transfers (2**53-1, JSON bound for integers). Keeping every amount
	// below it makes ledger arithmetic overflow unreachable.
	MaxAmount = 9007199254740991

	// KindTransfer marks a pending record produced by multiSend.
	KindTransfer = 1
	// KindWithdraw marks a pending record produced by withdrawAll.
	KindWithdraw = 2

	// ErrUnknownUser is returned when the sender has no ledger entry for
	// the token.
	ErrUnknownUser = "user has no deposited tokens"
	// ErrTokenNotWhitelisted is returned on any operation with a token
	// missing from the whitelist.
	ErrTokenNotWhitelisted = "token is not whitelisted"
	// ErrTokenAlreadyWhitelisted is returned on repeated whitelisting.
	ErrTokenAlreadyWhitelisted = "token is already whitelisted"
	// ErrNothingToWithdraw is returned by withdrawAll on zero balance.
	ErrNothingToWithdraw = "nothing to withdraw"
	// ErrTooManyAccounts is returned when a batch exceeds MaxBatchSize.
	ErrTooManyAccounts = "too many accounts in one call"
	// ErrInsufficientBalance is returned when the batch total exceeds the
	// sender's deposited balance.
	ErrInsufficientBalance = "not enough deposited tokens"
	// ErrUnknownTransfer is returned by completion methods for an id
	// without a pending record.
	ErrUnknownTransfer = "unknown pending transfer"
	// ErrFailedDepositTransfer is logged when an inbound transfer carries
	// a non-empty message and is returned to the sender.
	ErrFailedDepositTransfer = "deposit with non-empty message returned to sender"
)
