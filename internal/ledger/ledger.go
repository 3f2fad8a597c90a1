// Package ledger implements append-only, hash-chained transaction
// lists. A node keeps one chain per scheme name; cumulative chains
// carry running balance vectors, state chains carry point-in-time
// snapshots. All operations here are pure in-memory transforms; the
// node layer owns locking and persistence.
package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/nodal/internal/canon"
)

// KeySeparator joins analytics keys into the balance-map key.
const KeySeparator = "::"

// Transaction is one chain entry. Cumulative entries populate
// Balances; state entries populate State. The linkage fields form a
// singly linked ordered list: Parent/PrevHash point backward, Child
// points forward, and the tail's Child is empty.
type Transaction struct {
	UID      string               `json:"uid"`
	DedupKey string               `json:"uk,omitempty"`
	Parent   string               `json:"parent,omitempty"`
	Child    string               `json:"child,omitempty"`
	Period   string               `json:"period"`
	Keys     []string             `json:"keys"`
	Values   []float64            `json:"values"`
	Balances map[string][]float64 `json:"balances,omitempty"`
	State    map[string][]float64 `json:"state,omitempty"`
	Hash     string               `json:"hash"`
	PrevHash string               `json:"prev_hash,omitempty"`
	Meta     map[string]any       `json:"meta,omitempty"`
}

// Chain is an ordered transaction list; the tail is the last element.
type Chain []*Transaction

// ChainError reports a broken chain invariant found by Verify.
type ChainError struct {
	Index  int
	UID    string
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain entry %d (%s): %s", e.Index, e.UID, e.Reason)
}

// KeyString builds the analytics key from the entry's key list.
func KeyString(keys []string) string {
	return strings.Join(keys, KeySeparator)
}

// Append adds a cumulative transaction to the chain and returns the
// extended chain and the new entry.
//
// The balance vector for the analytics key is copied from the previous
// entry (zero-initialized to len(values) if the key is new) and summed
// elementwise; on a length mismatch the shorter vector is
// zero-extended. The previous tail's Child pointer is updated in
// place.
func Append(chain Chain, txUID, period string, keys []string, values []float64, meta map[string]any) (Chain, *Transaction, error) {
	var last *Transaction
	if len(chain) > 0 {
		last = chain[len(chain)-1]
	}

	balances := copyBalances(currentBalances(last))
	key := KeyString(keys)
	base, ok := balances[key]
	if !ok {
		base = make([]float64, len(values))
	}
	balances[key] = accumulate(base, values)

	tx := &Transaction{
		UID:      txUID,
		Period:   period,
		Keys:     append([]string(nil), keys...),
		Values:   append([]float64(nil), values...),
		Balances: balances,
		Meta:     copyMeta(meta),
	}
	if last != nil {
		tx.Parent = last.UID
		tx.PrevHash = last.Hash
	}

	hash, err := hashTransaction(tx)
	if err != nil {
		return chain, nil, fmt.Errorf("append %s: %w", txUID, err)
	}
	tx.Hash = hash

	if last != nil {
		last.Child = tx.UID
	}
	return append(chain, tx), tx, nil
}

// AppendUnique behaves as Append but is idempotent on dedupKey: if an
// entry already carries the marker, it is returned unchanged and the
// chain does not grow. The returned bool reports whether a new entry
// was appended.
func AppendUnique(chain Chain, txUID, dedupKey, period string, keys []string, values []float64, meta map[string]any) (Chain, *Transaction, bool, error) {
	if dedupKey == "" {
		return chain, nil, false, fmt.Errorf("append unique: dedup key is required")
	}

	if existing := FindDedup(chain, dedupKey); existing != nil {
		return chain, existing, false, nil
	}

	out, tx, err := Append(chain, txUID, period, keys, values, meta)
	if err != nil {
		return chain, nil, false, err
	}
	tx.DedupKey = dedupKey
	return out, tx, true, nil
}

// FindDedup returns the entry carrying the dedup marker, or nil.
func FindDedup(chain Chain, dedupKey string) *Transaction {
	for _, tx := range chain {
		if tx.DedupKey == dedupKey {
			return tx
		}
	}
	return nil
}

// RemoveUnique filters out the entry whose dedup marker equals
// dedupKey and rebuilds the remaining chain. Returns the rebuilt chain,
// the rebuilt dedup index, and whether anything was removed.
func RemoveUnique(chain Chain, scheme, sourceUID, dedupKey string) (Chain, map[string]string, bool, error) {
	filtered := make(Chain, 0, len(chain))
	for _, tx := range chain {
		if tx.DedupKey != dedupKey {
			filtered = append(filtered, tx)
		}
	}
	if len(filtered) == len(chain) {
		return chain, nil, false, nil
	}

	rebuilt, index, err := Rebuild(filtered, scheme, sourceUID)
	if err != nil {
		return chain, nil, false, err
	}
	return rebuilt, index, true, nil
}

// Rebuild recomputes the whole chain in original order: balances from
// scratch, parent/child linkage, prev_hash/hash, and the dedup index.
// Entries lacking a dedup marker get one synthesized from
// (scheme, period, keys, sourceUID). An empty chain yields an empty
// index.
func Rebuild(chain Chain, scheme, sourceUID string) (Chain, map[string]string, error) {
	index := make(map[string]string, len(chain))
	balances := map[string][]float64{}

	var prev *Transaction
	for i, tx := range chain {
		if prev != nil {
			tx.Parent = prev.UID
			tx.PrevHash = prev.Hash
			prev.Child = tx.UID
		} else {
			tx.Parent = ""
			tx.PrevHash = ""
		}
		tx.Child = ""

		key := KeyString(tx.Keys)
		base, ok := balances[key]
		if !ok {
			base = make([]float64, len(tx.Values))
		}
		balances[key] = accumulate(base, tx.Values)
		tx.Balances = copyBalances(balances)

		hash, err := hashTransaction(tx)
		if err != nil {
			return chain, nil, fmt.Errorf("rebuild entry %d: %w", i, err)
		}
		tx.Hash = hash

		if tx.DedupKey == "" {
			dk, err := SynthDedupKey(scheme, tx.Period, tx.Keys, sourceUID)
			if err != nil {
				return chain, nil, fmt.Errorf("rebuild entry %d: %w", i, err)
			}
			tx.DedupKey = dk
		}
		index[tx.DedupKey] = tx.UID

		prev = tx
	}

	return chain, index, nil
}

// StateAppend adds a state transaction: identical linkage and hashing
// mechanics, but the entry stores an independent snapshot
// {key: values} and nothing accumulates.
func StateAppend(chain Chain, txUID, period string, keys []string, values []float64, meta map[string]any) (Chain, *Transaction, error) {
	var last *Transaction
	if len(chain) > 0 {
		last = chain[len(chain)-1]
	}

	state := map[string][]float64{
		KeyString(keys): append([]float64(nil), values...),
	}

	tx := &Transaction{
		UID:    txUID,
		Period: period,
		Keys:   append([]string(nil), keys...),
		Values: append([]float64(nil), values...),
		State:  state,
		Meta:   copyMeta(meta),
	}
	if last != nil {
		tx.Parent = last.UID
		tx.PrevHash = last.Hash
	}

	hash, err := hashTransaction(tx)
	if err != nil {
		return chain, nil, fmt.Errorf("state append %s: %w", txUID, err)
	}
	tx.Hash = hash

	if last != nil {
		last.Child = tx.UID
	}
	return append(chain, tx), tx, nil
}

// CurrentBalance returns the last entry's balances, or an empty map.
func CurrentBalance(chain Chain) map[string][]float64 {
	if len(chain) == 0 {
		return map[string][]float64{}
	}
	return copyBalances(chain[len(chain)-1].Balances)
}

// CurrentState returns the last entry's state snapshot, or an empty map.
func CurrentState(chain Chain) map[string][]float64 {
	if len(chain) == 0 {
		return map[string][]float64{}
	}
	return copyBalances(chain[len(chain)-1].State)
}

// Verify walks the chain and checks every invariant: backward linkage
// (parent uid and prev_hash), forward linkage (child pointers, empty
// tail child), and that each stored hash matches a recomputation.
func Verify(chain Chain) error {
	for i, tx := range chain {
		want, err := hashTransaction(tx)
		if err != nil {
			return &ChainError{Index: i, UID: tx.UID, Reason: fmt.Sprintf("hash recompute: %v", err)}
		}
		if tx.Hash != want {
			return &ChainError{Index: i, UID: tx.UID, Reason: "stored hash does not match recomputation"}
		}

		if i == 0 {
			if tx.Parent != "" || tx.PrevHash != "" {
				return &ChainError{Index: i, UID: tx.UID, Reason: "head entry has backward links"}
			}
		} else {
			prev := chain[i-1]
			if tx.Parent != prev.UID {
				return &ChainError{Index: i, UID: tx.UID, Reason: "parent does not point at previous entry"}
			}
			if tx.PrevHash != prev.Hash {
				return &ChainError{Index: i, UID: tx.UID, Reason: "prev_hash does not match previous entry"}
			}
		}

		if i == len(chain)-1 {
			if tx.Child != "" {
				return &ChainError{Index: i, UID: tx.UID, Reason: "tail entry has a child pointer"}
			}
		} else if tx.Child != chain[i+1].UID {
			return &ChainError{Index: i, UID: tx.UID, Reason: "child does not point at next entry"}
		}
	}
	return nil
}

// SynthDedupKey derives a deterministic dedup marker for entries that
// were appended without one, so a rebuilt index covers the full chain.
func SynthDedupKey(scheme, period string, keys []string, sourceUID string) (string, error) {
	return canon.Hash(canon.DomainDedup, map[string]any{
		"scheme": scheme,
		"period": period,
		"keys":   keys,
		"source": sourceUID,
	})
}

// hashTransaction computes the entry hash over (uid, parent, payload,
// period), where payload is balances for cumulative entries and state
// for snapshots. Domain separation keeps the two kinds from ever
// colliding.
func hashTransaction(tx *Transaction) (string, error) {
	var parent any
	if tx.Parent != "" {
		parent = tx.Parent
	}

	if tx.State != nil {
		return canon.Hash(canon.DomainState, map[string]any{
			"uid":    tx.UID,
			"parent": parent,
			"state":  tx.State,
			"period": tx.Period,
		})
	}
	return canon.Hash(canon.DomainTransaction, map[string]any{
		"uid":      tx.UID,
		"parent":   parent,
		"balances": tx.Balances,
		"period":   tx.Period,
	})
}

func currentBalances(last *Transaction) map[string][]float64 {
	if last == nil {
		return map[string][]float64{}
	}
	return last.Balances
}

func copyBalances(m map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(m))
	for k, vec := range m {
		out[k] = append([]float64(nil), vec...)
	}
	return out
}

func copyMeta(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// accumulate sums values into base elementwise. The result spans the
// longer of the two vectors; missing positions count as zero.
func accumulate(base, values []float64) []float64 {
	n := len(base)
	if len(values) > n {
		n = len(values)
	}
	out := make([]float64, n)
	copy(out, base)
	for i, v := range values {
		out[i] += v
	}
	return out
}

// DecodeBook converts the raw `_transactions` (or
// `_state_transactions`) payload from node data into typed chains.
// The payload may be nil, an already-typed book, or the generic
// map/slice shape produced by JSON decoding.
func DecodeBook(v any) (map[string]Chain, error) {
	if v == nil {
		return map[string]Chain{}, nil
	}
	if book, ok := v.(map[string]Chain); ok {
		return book, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("decode transaction book: %w", err)
	}
	var book map[string]Chain
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, fmt.Errorf("decode transaction book: %w", err)
	}
	if book == nil {
		book = map[string]Chain{}
	}
	return book, nil
}

// EncodeBook renders typed chains back into a value suitable for node
// data (and therefore JSON storage).
func EncodeBook(book map[string]Chain) map[string]Chain {
	if book == nil {
		return map[string]Chain{}
	}
	return book
}

// DecodeIndex converts the raw `_tx_index` payload into
// scheme -> dedup marker -> transaction uid.
func DecodeIndex(v any) (map[string]map[string]string, error) {
	if v == nil {
		return map[string]map[string]string{}, nil
	}
	if idx, ok := v.(map[string]map[string]string); ok {
		return idx, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("decode tx index: %w", err)
	}
	var idx map[string]map[string]string
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("decode tx index: %w", err)
	}
	if idx == nil {
		idx = map[string]map[string]string{}
	}
	return idx, nil
}
