package witness

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-merkletree"

	"github.com/rollup-prover/prover-server/common"
)

// The apply functions mutate the builder's ledger snapshot and tree for one
// operation and return its tree witness.  Committed blocks have already
// been validated upstream, so a failed lookup or a negative balance here
// means the replay has diverged from the commit pipeline.

func (b *Builder) account(idx common.Idx) (*common.Account, error) {
	account, ok := b.accounts[idx]
	if !ok {
		return nil, common.Wrap(fmt.Errorf("account %d not present in snapshot", idx))
	}
	return account, nil
}

func (b *Builder) subBalance(account *common.Account, token common.TokenID,
	amount *big.Int) error {
	balance := account.Balance(token)
	if balance.Cmp(amount) < 0 {
		return common.Wrap(fmt.Errorf(
			"account %d balance of token %d is %s, can not spend %s",
			account.Idx, token, balance, amount))
	}
	account.SetBalance(token, balance.Sub(balance, amount))
	return nil
}

func (b *Builder) applyDeposit(op *common.Deposit) (*OpWitness, error) {
	w := &OpWitness{Type: op.Type(), RootBefore: b.tree.Root()}

	account, ok := b.accounts[op.Account]
	if !ok {
		account = common.NewAccount(op.Account)
		account.PubKey = op.PubKey
		account.EthAddr = op.EthAddr
		b.accounts[op.Account] = account
	}
	account.AddBalance(op.Token, op.Amount)

	proof, err := b.tree.Set(account)
	if err != nil {
		return nil, common.Wrap(err)
	}
	w.Proofs = []*merkletree.CircomProcessorProof{proof}
	w.RootAfter = b.tree.Root()
	return w, nil
}

func (b *Builder) applyFullExit(op *common.FullExit) (*OpWitness, error) {
	success := op.WithdrawAmount != nil
	w := &OpWitness{Type: op.Type(), RootBefore: b.tree.Root(), Success: success}

	if !success {
		// failed exit leaves the tree untouched
		w.RootAfter = w.RootBefore
		return w, nil
	}

	account, err := b.account(op.Account)
	if err != nil {
		return nil, common.Wrap(err)
	}
	account.SetBalance(op.Token, big.NewInt(0))

	proof, err := b.tree.Set(account)
	if err != nil {
		return nil, common.Wrap(err)
	}
	w.Proofs = []*merkletree.CircomProcessorProof{proof}
	w.RootAfter = b.tree.Root()
	return w, nil
}

func (b *Builder) applyTransfer(op *common.Transfer) (*OpWitness, error) {
	w := &OpWitness{Type: op.Type(), RootBefore: b.tree.Root()}

	from, err := b.account(op.From)
	if err != nil {
		return nil, common.Wrap(err)
	}
	if err := b.subBalance(from, op.Token, totalSpent(op.Amount, op.FeeAmount)); err != nil {
		return nil, common.Wrap(err)
	}
	from.Nonce++
	fromProof, err := b.tree.Set(from)
	if err != nil {
		return nil, common.Wrap(err)
	}

	to, err := b.account(op.To)
	if err != nil {
		return nil, common.Wrap(err)
	}
	to.AddBalance(op.Token, op.Amount)
	toProof, err := b.tree.Set(to)
	if err != nil {
		return nil, common.Wrap(err)
	}

	w.Proofs = []*merkletree.CircomProcessorProof{fromProof, toProof}
	w.RootAfter = b.tree.Root()
	return w, nil
}

func (b *Builder) applyTransferToNew(op *common.TransferToNew) (*OpWitness, error) {
	w := &OpWitness{Type: op.Type(), RootBefore: b.tree.Root()}

	from, err := b.account(op.From)
	if err != nil {
		return nil, common.Wrap(err)
	}
	if err := b.subBalance(from, op.Token, totalSpent(op.Amount, op.FeeAmount)); err != nil {
		return nil, common.Wrap(err)
	}
	from.Nonce++
	fromProof, err := b.tree.Set(from)
	if err != nil {
		return nil, common.Wrap(err)
	}

	if _, exists := b.accounts[op.To]; exists {
		return nil, common.Wrap(fmt.Errorf(
			"transfer to new: account %d already exists", op.To))
	}
	to := common.NewAccount(op.To)
	to.PubKey = op.ToPubKey
	to.EthAddr = op.ToEthAddr
	to.AddBalance(op.Token, op.Amount)
	b.accounts[op.To] = to
	toProof, err := b.tree.Set(to)
	if err != nil {
		return nil, common.Wrap(err)
	}

	w.Proofs = []*merkletree.CircomProcessorProof{fromProof, toProof}
	w.RootAfter = b.tree.Root()
	return w, nil
}

func (b *Builder) applyWithdraw(op *common.Withdraw) (*OpWitness, error) {
	w := &OpWitness{Type: op.Type(), RootBefore: b.tree.Root()}

	from, err := b.account(op.From)
	if err != nil {
		return nil, common.Wrap(err)
	}
	if err := b.subBalance(from, op.Token, totalSpent(op.Amount, op.FeeAmount)); err != nil {
		return nil, common.Wrap(err)
	}
	from.Nonce++
	proof, err := b.tree.Set(from)
	if err != nil {
		return nil, common.Wrap(err)
	}

	w.Proofs = []*merkletree.CircomProcessorProof{proof}
	w.RootAfter = b.tree.Root()
	return w, nil
}

func (b *Builder) applyClose(op *common.Close) (*OpWitness, error) {
	w := &OpWitness{Type: op.Type(), RootBefore: b.tree.Root()}

	if _, err := b.account(op.Account); err != nil {
		return nil, common.Wrap(err)
	}
	// the leaf slot survives, zeroed
	closed := common.NewAccount(op.Account)
	b.accounts[op.Account] = closed
	proof, err := b.tree.Set(closed)
	if err != nil {
		return nil, common.Wrap(err)
	}

	w.Proofs = []*merkletree.CircomProcessorProof{proof}
	w.RootAfter = b.tree.Root()
	return w, nil
}

func (b *Builder) applyChangePubKey(op *common.ChangePubKey) (*OpWitness, error) {
	w := &OpWitness{Type: op.Type(), RootBefore: b.tree.Root()}

	account, err := b.account(op.Account)
	if err != nil {
		return nil, common.Wrap(err)
	}
	account.PubKey = op.NewPubKey
	account.Nonce = op.Nonce + 1
	proof, err := b.tree.Set(account)
	if err != nil {
		return nil, common.Wrap(err)
	}

	w.Proofs = []*merkletree.CircomProcessorProof{proof}
	w.RootAfter = b.tree.Root()
	return w, nil
}

func totalSpent(amount, fee *big.Int) *big.Int {
	total := new(big.Int)
	if amount != nil {
		total.Add(total, amount)
	}
	if fee != nil {
		total.Add(total, fee)
	}
	return total
}
