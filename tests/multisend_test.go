package tests

import (
	"path"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/core/interop/storage"
	"github.com/nspcc-dev/neo-go/pkg/core/native/nativenames"
	"github.com/nspcc-dev/neo-go/pkg/neotest"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/multisend-contract/common"
	"github.com/nspcc-dev/multisend-contract/contracts/multisend/multisendconst"
	"github.com/stretchr/testify/require"
)

const (
	multisendPath = "../contracts/multisend"
	tokenPath     = "../internal/testcontracts/token"
	reentrantPath = "../internal/testcontracts/reentrant"
)

type multisendEnv struct {
	e         *neotest.Executor
	contract  *neotest.ContractInvoker
	token     *neotest.ContractInvoker
	hash      util.Uint160
	tokenHash util.Uint160
}

// newMultisendEnv deploys the test token and the multisend contract with the
// committee acting as both owner and relay.
func newMultisendEnv(t *testing.T) *multisendEnv {
	e := newExecutor(t)

	tokenCtr := neotest.CompileFile(t, e.CommitteeHash, tokenPath, path.Join(tokenPath, "config.yml"))
	e.DeployContract(t, tokenCtr, nil)

	msCtr := neotest.CompileFile(t, e.CommitteeHash, multisendPath, path.Join(multisendPath, "config.yml"))
	e.DeployContract(t, msCtr, []any{e.CommitteeHash, e.CommitteeHash})

	return &multisendEnv{
		e:         e,
		contract:  e.CommitteeInvoker(msCtr.Hash),
		token:     e.CommitteeInvoker(tokenCtr.Hash),
		hash:      msCtr.Hash,
		tokenHash: tokenCtr.Hash,
	}
}

func (env *multisendEnv) whitelist(t *testing.T) {
	env.contract.Invoke(t, stackitem.Null{}, "whitelistToken", env.tokenHash)
}

// newDepositor creates an account, mints amount of the test token to it and
// deposits the whole amount to the multisend contract.
func (env *multisendEnv) newDepositor(t *testing.T, amount int64) (neotest.Signer, util.Uint160) {
	acc := env.contract.NewAccount(t)
	h := acc.ScriptHash()

	env.token.Invoke(t, stackitem.Null{}, "mint", h, amount)
	env.token.WithSigners(acc).Invoke(t, true, "transfer", h, env.hash, amount, nil)

	return acc, h
}

func (env *multisendEnv) balanceOf(t *testing.T, account util.Uint160, expected int64) {
	env.contract.Invoke(t, expected, "balanceOf", account, env.tokenHash)
}

func (env *multisendEnv) tokenBalanceOf(t *testing.T, account util.Uint160, expected int64) {
	env.token.Invoke(t, expected, "balanceOf", account)
}

func TestTransferOwnership(t *testing.T) {
	env := newMultisendEnv(t)
	c := env.contract

	c.Invoke(t, stackitem.NewBuffer(c.CommitteeHash.BytesBE()), "owner")

	acc := c.NewAccount(t)
	c.WithSigners(acc).InvokeFail(t, common.ErrOwnerWitnessFailed, "transferOwnership", acc.ScriptHash())

	c.Invoke(t, stackitem.Null{}, "transferOwnership", acc.ScriptHash())
	c.Invoke(t, stackitem.NewBuffer(acc.ScriptHash().BytesBE()), "owner")

	// the previous owner lost control
	c.InvokeFail(t, common.ErrOwnerWitnessFailed, "transferOwnership", c.CommitteeHash)
}

func TestSetRelay(t *testing.T) {
	env := newMultisendEnv(t)
	c := env.contract

	c.Invoke(t, stackitem.NewBuffer(c.CommitteeHash.BytesBE()), "relay")

	acc := c.NewAccount(t)
	c.WithSigners(acc).InvokeFail(t, common.ErrOwnerWitnessFailed, "setRelay", acc.ScriptHash())

	c.Invoke(t, stackitem.Null{}, "setRelay", acc.ScriptHash())
	c.Invoke(t, stackitem.NewBuffer(acc.ScriptHash().BytesBE()), "relay")
}

func TestWhitelistToken(t *testing.T) {
	env := newMultisendEnv(t)
	c := env.contract

	c.Invoke(t, false, "isTokenWhitelisted", env.tokenHash)

	acc := c.NewAccount(t)
	c.WithSigners(acc).InvokeFail(t, common.ErrOwnerWitnessFailed, "whitelistToken", env.tokenHash)

	c.Invoke(t, stackitem.Null{}, "whitelistToken", env.tokenHash)
	c.Invoke(t, true, "isTokenWhitelisted", env.tokenHash)

	// whitelisting registered the contract account with the token service
	env.token.Invoke(t, true, "isRegistered", env.hash)

	c.InvokeFail(t, multisendconst.ErrTokenAlreadyWhitelisted, "whitelistToken", env.tokenHash)

	s, err := c.TestInvoke(t, "whitelistedTokens")
	require.NoError(t, err)

	iter := s.Pop().Value().(*storage.Iterator)
	items := iteratorToArray(iter)
	require.Len(t, items, 1)

	b, err := items[0].TryBytes()
	require.NoError(t, err)
	require.Equal(t, env.tokenHash.BytesBE(), b)
}

func TestDeposit(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)

	acc, h := env.newDepositor(t, 1000)
	env.balanceOf(t, h, 1000)
	env.tokenBalanceOf(t, h, 0)

	// deposits accumulate
	env.token.Invoke(t, stackitem.Null{}, "mint", h, 500)
	env.token.WithSigners(acc).Invoke(t, true, "transfer", h, env.hash, 500, nil)
	env.balanceOf(t, h, 1500)

	env.contract.Invoke(t, stackitem.NewStruct([]stackitem.Item{
		stackitem.Make(1500),
		stackitem.Make(0),
	}), "stats", h, env.tokenHash)
}

func TestDepositWithMessage(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)

	acc := env.contract.NewAccount(t)
	h := acc.ScriptHash()
	env.token.Invoke(t, stackitem.Null{}, "mint", h, 1000)

	// non-empty data is a malformed deposit, the whole transfer is aborted
	// and the amount stays with the sender
	env.token.WithSigners(acc).InvokeFail(t, "ABORT", "transfer", h, env.hash, 1000, []byte("msg"))

	env.tokenBalanceOf(t, h, 1000)
	env.balanceOf(t, h, 0)

	// the bond marker only has meaning for GAS movements, for token
	// transfers it is an ordinary non-empty message
	env.token.WithSigners(acc).InvokeFail(t, "ABORT", "transfer", h, env.hash, 1000, []byte{0x6d, 0x73})

	env.tokenBalanceOf(t, h, 1000)
	env.balanceOf(t, h, 0)
}

func TestDepositNotWhitelisted(t *testing.T) {
	env := newMultisendEnv(t)

	acc := env.contract.NewAccount(t)
	h := acc.ScriptHash()
	env.token.Invoke(t, stackitem.Null{}, "mint", h, 1000)

	env.token.WithSigners(acc).InvokeFail(t, "ABORT", "transfer", h, env.hash, 1000, nil)

	env.tokenBalanceOf(t, h, 1000)
	env.balanceOf(t, h, 0)
}

func TestMultiSendAdmission(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)
	c := env.contract

	acc, h := env.newDepositor(t, 1000)
	cAcc := c.WithSigners(acc)

	recipient := c.NewAccount(t).ScriptHash()

	t.Run("unknown user", func(t *testing.T) {
		stranger := c.NewAccount(t)
		c.WithSigners(stranger).InvokeFail(t, multisendconst.ErrUnknownUser, "multiSend",
			stranger.ScriptHash(), env.tokenHash, []any{[]any{recipient, 1}})
	})

	t.Run("not whitelisted", func(t *testing.T) {
		cAcc.InvokeFail(t, multisendconst.ErrTokenNotWhitelisted, "multiSend",
			h, util.Uint160{1, 2, 3}, []any{[]any{recipient, 1}})
	})

	t.Run("insufficient balance", func(t *testing.T) {
		cAcc.InvokeFail(t, multisendconst.ErrInsufficientBalance, "multiSend",
			h, env.tokenHash, []any{[]any{recipient, 500}, []any{recipient, 501}})

		// nothing was dispatched, balance untouched
		env.balanceOf(t, h, 1000)
		c.InvokeFail(t, multisendconst.ErrUnknownTransfer, "pendingTransferInfo", 1)
	})

	t.Run("too many accounts", func(t *testing.T) {
		ops := make([]any, multisendconst.MaxBatchSize+1)
		for i := range ops {
			ops[i] = []any{recipient, 0}
		}
		cAcc.InvokeFail(t, multisendconst.ErrTooManyAccounts, "multiSend", h, env.tokenHash, ops)
	})

	t.Run("negative amount", func(t *testing.T) {
		cAcc.InvokeFail(t, "negative amount", "multiSend",
			h, env.tokenHash, []any{[]any{recipient, -1}})
	})

	t.Run("empty batch", func(t *testing.T) {
		cAcc.Invoke(t, stackitem.Null{}, "multiSend", h, env.tokenHash, []any{})
		env.balanceOf(t, h, 1000)
	})
}

func TestMultiSend(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)
	c := env.contract

	acc, h := env.newDepositor(t, 1000)

	b := c.NewAccount(t).ScriptHash()
	cRecip := c.NewAccount(t).ScriptHash()

	c.WithSigners(acc).Invoke(t, stackitem.Null{}, "multiSend", h, env.tokenHash,
		[]any{[]any{b, 300}, []any{cRecip, 700}})

	// the whole batch is debited at dispatch time
	env.balanceOf(t, h, 0)

	// completions are relay-only
	c.WithSigners(acc).InvokeFail(t, common.ErrRelayWitnessFailed, "completeTransfer", 1)

	// b's transfer fails, c's succeeds
	env.token.Invoke(t, stackitem.Null{}, "refuse", b)

	c.Invoke(t, stackitem.Null{}, "completeTransfer", 1)
	c.Invoke(t, stackitem.Null{}, "completeTransfer", 2)

	env.balanceOf(t, h, 300)
	env.tokenBalanceOf(t, b, 0)
	env.tokenBalanceOf(t, cRecip, 700)

	// a completed id cannot be completed again
	c.InvokeFail(t, multisendconst.ErrUnknownTransfer, "completeTransfer", 1)
	c.InvokeFail(t, multisendconst.ErrUnknownTransfer, "completeTransfer", 2)

	// only the successful entry counts as transferred
	c.Invoke(t, stackitem.NewStruct([]stackitem.Item{
		stackitem.Make(1000),
		stackitem.Make(700),
	}), "stats", h, env.tokenHash)
}

func TestMultiSendConservation(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)
	c := env.contract

	acc, h := env.newDepositor(t, 1000)

	r1 := c.NewAccount(t).ScriptHash()
	r2 := c.NewAccount(t).ScriptHash()

	t.Run("all transfers fail", func(t *testing.T) {
		env.token.Invoke(t, stackitem.Null{}, "refuse", r1)
		env.token.Invoke(t, stackitem.Null{}, "refuse", r2)

		c.WithSigners(acc).Invoke(t, stackitem.Null{}, "multiSend", h, env.tokenHash,
			[]any{[]any{r1, 400}, []any{r2, 600}})
		env.balanceOf(t, h, 0)

		c.Invoke(t, stackitem.Null{}, "completeTransfer", 1)
		c.Invoke(t, stackitem.Null{}, "completeTransfer", 2)

		// every amount was credited back exactly once
		env.balanceOf(t, h, 1000)
	})

	t.Run("all transfers succeed", func(t *testing.T) {
		env.token.Invoke(t, stackitem.Null{}, "accept", r1)
		env.token.Invoke(t, stackitem.Null{}, "accept", r2)

		c.WithSigners(acc).Invoke(t, stackitem.Null{}, "multiSend", h, env.tokenHash,
			[]any{[]any{r1, 400}, []any{r2, 600}})

		c.Invoke(t, stackitem.Null{}, "completeTransfer", 3)
		c.Invoke(t, stackitem.Null{}, "completeTransfer", 4)

		env.balanceOf(t, h, 0)
		env.tokenBalanceOf(t, r1, 400)
		env.tokenBalanceOf(t, r2, 600)
	})
}

func TestMultiSendDuplicateRecipients(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)
	c := env.contract

	acc, h := env.newDepositor(t, 1000)
	r := c.NewAccount(t).ScriptHash()

	// duplicates and zero amounts are processed independently
	c.WithSigners(acc).Invoke(t, stackitem.Null{}, "multiSend", h, env.tokenHash,
		[]any{[]any{r, 100}, []any{r, 100}, []any{r, 0}})

	c.Invoke(t, stackitem.Null{}, "completeTransfer", 1)
	c.Invoke(t, stackitem.Null{}, "completeTransfer", 2)
	c.Invoke(t, stackitem.Null{}, "completeTransfer", 3)

	env.balanceOf(t, h, 800)
	env.tokenBalanceOf(t, r, 200)
}

func TestMultiSendUnsafe(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)
	c := env.contract

	acc, h := env.newDepositor(t, 1000)

	b := c.NewAccount(t).ScriptHash()
	cRecip := c.NewAccount(t).ScriptHash()

	env.token.Invoke(t, stackitem.Null{}, "refuse", b)

	c.WithSigners(acc).Invoke(t, stackitem.Null{}, "multiSendUnsafe", h, env.tokenHash,
		[]any{[]any{b, 300}, []any{cRecip, 700}})

	// the failed entry is forfeited, nothing to complete
	env.balanceOf(t, h, 0)
	env.tokenBalanceOf(t, b, 0)
	env.tokenBalanceOf(t, cRecip, 700)
	c.InvokeFail(t, multisendconst.ErrUnknownTransfer, "completeTransfer", 1)
}

func TestMultiSendUnsafeReentrancy(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)
	c := env.contract

	recvCtr := neotest.CompileFile(t, env.e.CommitteeHash, reentrantPath, path.Join(reentrantPath, "config.yml"))
	env.e.DeployContract(t, recvCtr, nil)

	_, victim := env.newDepositor(t, 100)
	acc, h := env.newDepositor(t, 100)

	env.e.CommitteeInvoker(recvCtr.Hash).Invoke(t, stackitem.Null{}, "prime",
		env.hash, h, env.tokenHash)

	// the recipient's callback re-enters withdrawAll, but the batch total
	// is already off the ledger, so the nested withdrawal has nothing to
	// take and the whole call fails
	c.WithSigners(acc).InvokeFail(t, multisendconst.ErrNothingToWithdraw, "multiSendUnsafe",
		h, env.tokenHash, []any{[]any{recvCtr.Hash, 100}})

	// everything rolled back, the victim's deposit is still backed
	env.balanceOf(t, h, 100)
	env.balanceOf(t, victim, 100)
	env.tokenBalanceOf(t, recvCtr.Hash, 0)
	env.tokenBalanceOf(t, env.hash, 200)
	c.InvokeFail(t, multisendconst.ErrUnknownTransfer, "pendingTransferInfo", 1)
}

func TestWithdrawAll(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)
	c := env.contract

	t.Run("unknown user", func(t *testing.T) {
		stranger := c.NewAccount(t)
		c.WithSigners(stranger).InvokeFail(t, multisendconst.ErrUnknownUser, "withdrawAll",
			stranger.ScriptHash(), env.tokenHash)
	})

	acc, h := env.newDepositor(t, 500)
	cAcc := c.WithSigners(acc)

	cAcc.Invoke(t, stackitem.Null{}, "withdrawAll", h, env.tokenHash)
	env.balanceOf(t, h, 0)

	// the entry exists but holds nothing now
	cAcc.InvokeFail(t, multisendconst.ErrNothingToWithdraw, "withdrawAll", h, env.tokenHash)

	// completions are relay-only
	cAcc.InvokeFail(t, common.ErrRelayWitnessFailed, "completeWithdraw", 1)

	c.Invoke(t, stackitem.Null{}, "completeWithdraw", 1)
	env.tokenBalanceOf(t, h, 500)
	env.balanceOf(t, h, 0)

	c.InvokeFail(t, multisendconst.ErrUnknownTransfer, "completeWithdraw", 1)
}

func TestWithdrawAllReturned(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)
	c := env.contract

	acc, h := env.newDepositor(t, 500)

	c.WithSigners(acc).Invoke(t, stackitem.Null{}, "withdrawAll", h, env.tokenHash)
	env.balanceOf(t, h, 0)

	// the transfer back fails, the deposit is restored
	env.token.Invoke(t, stackitem.Null{}, "refuse", h)
	c.Invoke(t, stackitem.Null{}, "completeWithdraw", 1)

	env.balanceOf(t, h, 500)
	env.tokenBalanceOf(t, h, 0)
}

func TestCompletionKindMismatch(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)
	c := env.contract

	acc, h := env.newDepositor(t, 500)
	r := c.NewAccount(t).ScriptHash()

	c.WithSigners(acc).Invoke(t, stackitem.Null{}, "multiSend", h, env.tokenHash,
		[]any{[]any{r, 100}})
	c.WithSigners(acc).Invoke(t, stackitem.Null{}, "withdrawAll", h, env.tokenHash)

	// id 1 is a transfer, id 2 is a withdrawal
	c.InvokeFail(t, multisendconst.ErrUnknownTransfer, "completeWithdraw", 1)
	c.InvokeFail(t, multisendconst.ErrUnknownTransfer, "completeTransfer", 2)

	c.Invoke(t, stackitem.Null{}, "completeTransfer", 1)
	c.Invoke(t, stackitem.Null{}, "completeWithdraw", 2)

	env.tokenBalanceOf(t, r, 100)
	env.tokenBalanceOf(t, h, 400)
}

func TestPendingTransferViews(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)
	c := env.contract

	acc, h := env.newDepositor(t, 1000)
	r := c.NewAccount(t).ScriptHash()

	c.WithSigners(acc).Invoke(t, stackitem.Null{}, "multiSend", h, env.tokenHash,
		[]any{[]any{r, 300}, []any{r, 200}})

	c.Invoke(t, stackitem.NewStruct([]stackitem.Item{
		stackitem.Make(h.BytesBE()),
		stackitem.Make(env.tokenHash.BytesBE()),
		stackitem.Make(r.BytesBE()),
		stackitem.Make(300),
		stackitem.Make(multisendconst.KindTransfer),
	}), "pendingTransferInfo", 1)

	s, err := c.TestInvoke(t, "iteratePendingTransfers")
	require.NoError(t, err)

	iter := s.Pop().Value().(*storage.Iterator)
	require.Len(t, iteratorToArray(iter), 2)

	c.Invoke(t, stackitem.Null{}, "completeTransfer", 1)
	c.Invoke(t, stackitem.Null{}, "completeTransfer", 2)

	s, err = c.TestInvoke(t, "iteratePendingTransfers")
	require.NoError(t, err)

	iter = s.Pop().Value().(*storage.Iterator)
	require.Len(t, iteratorToArray(iter), 0)
}

func TestRegisterRecipients(t *testing.T) {
	env := newMultisendEnv(t)
	env.whitelist(t)
	c := env.contract

	user := c.NewAccount(t)
	cUser := c.WithSigners(user)

	a := c.NewAccount(t).ScriptHash()
	b := c.NewAccount(t).ScriptHash()

	t.Run("not whitelisted", func(t *testing.T) {
		cUser.InvokeFail(t, multisendconst.ErrTokenNotWhitelisted, "registerRecipients",
			user.ScriptHash(), util.Uint160{1, 2, 3}, []any{a})
	})

	t.Run("too many accounts", func(t *testing.T) {
		accounts := make([]any, multisendconst.MaxBatchSize+1)
		for i := range accounts {
			accounts[i] = a
		}
		cUser.InvokeFail(t, multisendconst.ErrTooManyAccounts, "registerRecipients",
			user.ScriptHash(), env.tokenHash, accounts)
	})

	t.Run("unpaid bond", func(t *testing.T) {
		// the payer did not witness the transaction, the bond cannot be pulled
		other := c.NewAccount(t)
		cUser.InvokeFail(t, "failed to transfer bond", "registerRecipients",
			other.ScriptHash(), env.tokenHash, []any{a})
	})

	cUser.Invoke(t, stackitem.Null{}, "registerRecipients", user.ScriptHash(), env.tokenHash, []any{a, b})

	env.token.Invoke(t, true, "isRegistered", a)
	env.token.Invoke(t, true, "isRegistered", b)

	// the bond settled on the contract account
	gasHash, err := env.e.Chain.GetNativeContractScriptHash(nativenames.Gas)
	require.NoError(t, err)
	env.e.CommitteeInvoker(gasHash).Invoke(t, 2*multisendconst.RegistrationBond, "balanceOf", env.hash)
}

func TestTokenMetadata(t *testing.T) {
	env := newMultisendEnv(t)
	c := env.contract

	c.InvokeFail(t, multisendconst.ErrTokenNotWhitelisted, "tokenMetadata", env.tokenHash)

	env.whitelist(t)
	c.Invoke(t, stackitem.NewStruct([]stackitem.Item{
		stackitem.Make("TST"),
		stackitem.Make(8),
	}), "tokenMetadata", env.tokenHash)
}

func TestVersionMultisend(t *testing.T) {
	env := newMultisendEnv(t)
	env.contract.Invoke(t, common.Version, "version")
}
