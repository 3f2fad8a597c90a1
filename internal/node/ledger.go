package node

import (
	"fmt"

	"github.com/roach88/nodal/internal/hook"
	"github.com/roach88/nodal/internal/ledger"
)

// Reserved data keys carrying the embedded ledgers.
const (
	TransactionsKey      = "_transactions"
	StateTransactionsKey = "_state_transactions"
	TxIndexKey           = "_tx_index"
)

// LedgerAppend adds a cumulative transaction to the named scheme and
// persists the node. An empty period defaults to the clock's current
// YYYY-MM-DD. Returns the new transaction uid.
func (n *Node) LedgerAppend(ctx *hook.Context, scheme, period string, keys []string, values []float64, meta map[string]any) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	data, err := n.dataLocked()
	if err != nil {
		return "", err
	}
	book, err := ledger.DecodeBook(data[TransactionsKey])
	if err != nil {
		return "", err
	}

	chain, tx, err := ledger.Append(book[scheme], n.env.NewID(), n.defaultPeriod(period), keys, values, meta)
	if err != nil {
		return "", err
	}
	book[scheme] = chain
	data[TransactionsKey] = ledger.EncodeBook(book)

	if err := n.saveLocked(ctx); err != nil {
		return "", err
	}
	return tx.UID, nil
}

// LedgerAppendUnique appends idempotently on uniqueKey: if the scheme
// already carries the marker, the existing transaction uid is returned
// and nothing is written. The dedup index under "_tx_index" is kept
// current either way.
func (n *Node) LedgerAppendUnique(ctx *hook.Context, scheme, uniqueKey, period string, keys []string, values []float64, meta map[string]any) (string, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	data, err := n.dataLocked()
	if err != nil {
		return "", false, err
	}
	book, err := ledger.DecodeBook(data[TransactionsKey])
	if err != nil {
		return "", false, err
	}

	chain, tx, inserted, err := ledger.AppendUnique(book[scheme], n.env.NewID(), uniqueKey, n.defaultPeriod(period), keys, values, meta)
	if err != nil {
		return "", false, err
	}
	if !inserted {
		return tx.UID, false, nil
	}

	book[scheme] = chain
	data[TransactionsKey] = ledger.EncodeBook(book)

	index, err := ledger.DecodeIndex(data[TxIndexKey])
	if err != nil {
		return "", false, err
	}
	if index[scheme] == nil {
		index[scheme] = map[string]string{}
	}
	index[scheme][uniqueKey] = tx.UID
	data[TxIndexKey] = index

	if err := n.saveLocked(ctx); err != nil {
		return "", false, err
	}
	return tx.UID, true, nil
}

// LedgerRemoveUnique removes the transaction carrying uniqueKey and
// rebuilds the remaining chain. Returns false when the marker was not
// present; nothing is written then.
func (n *Node) LedgerRemoveUnique(ctx *hook.Context, scheme, uniqueKey string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	data, err := n.dataLocked()
	if err != nil {
		return false, err
	}
	book, err := ledger.DecodeBook(data[TransactionsKey])
	if err != nil {
		return false, err
	}

	rebuilt, schemeIndex, removed, err := ledger.RemoveUnique(book[scheme], scheme, n.sourceUID(data), uniqueKey)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}

	book[scheme] = rebuilt
	data[TransactionsKey] = ledger.EncodeBook(book)
	if err := n.setSchemeIndex(data, scheme, schemeIndex); err != nil {
		return false, err
	}

	if err := n.saveLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// LedgerRebuild recomputes the named scheme's chain from scratch:
// balances, linkage, hashes, and the dedup index. The node lock is
// held for the whole recompute.
func (n *Node) LedgerRebuild(ctx *hook.Context, scheme string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	data, err := n.dataLocked()
	if err != nil {
		return err
	}
	book, err := ledger.DecodeBook(data[TransactionsKey])
	if err != nil {
		return err
	}

	rebuilt, schemeIndex, err := ledger.Rebuild(book[scheme], scheme, n.sourceUID(data))
	if err != nil {
		return err
	}

	book[scheme] = rebuilt
	data[TransactionsKey] = ledger.EncodeBook(book)
	if err := n.setSchemeIndex(data, scheme, schemeIndex); err != nil {
		return err
	}
	return n.saveLocked(ctx)
}

// StateAppend adds a state snapshot to the named scheme and persists
// the node.
func (n *Node) StateAppend(ctx *hook.Context, scheme, period string, keys []string, values []float64, meta map[string]any) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	data, err := n.dataLocked()
	if err != nil {
		return "", err
	}
	book, err := ledger.DecodeBook(data[StateTransactionsKey])
	if err != nil {
		return "", err
	}

	chain, tx, err := ledger.StateAppend(book[scheme], n.env.NewID(), n.defaultPeriod(period), keys, values, meta)
	if err != nil {
		return "", err
	}
	book[scheme] = chain
	data[StateTransactionsKey] = ledger.EncodeBook(book)

	if err := n.saveLocked(ctx); err != nil {
		return "", err
	}
	return tx.UID, nil
}

// Balance returns the scheme's current balances (the last entry's
// vector map), or an empty map for an empty chain.
func (n *Node) Balance(scheme string) (map[string][]float64, error) {
	chain, err := n.Transactions(scheme)
	if err != nil {
		return nil, err
	}
	return ledger.CurrentBalance(chain), nil
}

// State returns the scheme's current state snapshot.
func (n *Node) State(scheme string) (map[string][]float64, error) {
	chain, err := n.StateTransactions(scheme)
	if err != nil {
		return nil, err
	}
	return ledger.CurrentState(chain), nil
}

// Transactions returns the full cumulative chain for the scheme.
func (n *Node) Transactions(scheme string) (ledger.Chain, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.chainLocked(TransactionsKey, scheme)
}

// StateTransactions returns the full state chain for the scheme.
func (n *Node) StateTransactions(scheme string) (ledger.Chain, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.chainLocked(StateTransactionsKey, scheme)
}

func (n *Node) chainLocked(key, scheme string) (ledger.Chain, error) {
	data, err := n.dataLocked()
	if err != nil {
		return nil, err
	}
	book, err := ledger.DecodeBook(data[key])
	if err != nil {
		return nil, err
	}
	return book[scheme], nil
}

func (n *Node) setSchemeIndex(data map[string]any, scheme string, schemeIndex map[string]string) error {
	index, err := ledger.DecodeIndex(data[TxIndexKey])
	if err != nil {
		return fmt.Errorf("update tx index: %w", err)
	}
	if schemeIndex == nil {
		schemeIndex = map[string]string{}
	}
	index[scheme] = schemeIndex
	data[TxIndexKey] = index
	return nil
}

func (n *Node) defaultPeriod(period string) string {
	if period != "" {
		return period
	}
	return n.env.Clock().Format("2006-01-02")
}

func (n *Node) sourceUID(data map[string]any) string {
	if s, ok := data["_id"].(string); ok && s != "" {
		return s
	}
	return n.id
}
