// Package historydb is the postgres-backed view over the committing
// service's history: committed blocks, their rollup operations and the
// per-block account update rows.  The prover server mostly reads it; the
// write methods exist for the committing side and for seeding test
// databases.
package historydb

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/russross/meddler"

	"github.com/rollup-prover/prover-server/common"
	"github.com/rollup-prover/prover-server/database"
)

// HistoryDB persists and serves the historic data of the rollup
type HistoryDB struct {
	dbRead  *sqlx.DB
	dbWrite *sqlx.DB
}

// NewHistoryDB initialize the DB
func NewHistoryDB(dbRead, dbWrite *sqlx.DB) *HistoryDB {
	return &HistoryDB{
		dbRead:  dbRead,
		dbWrite: dbWrite,
	}
}

// DB returns a pointer to the internal write DB. This method should be used
// only for internal testing purposes.
func (hdb *HistoryDB) DB() *sqlx.DB {
	return hdb.dbWrite
}

// rollupOpRow is one ledger operation of a block, stored as a tagged JSON
// payload in storage order
type rollupOpRow struct {
	ItemID   uint64          `meddler:"item_id,pk"`
	BlockNum common.BlockNum `meddler:"block_num"`
	Position int             `meddler:"position"`
	OpType   common.TxType   `meddler:"op_type"`
	OpData   []byte          `meddler:"op_data"`
}

// AddBlock insert a block commit record into the DB
func (hdb *HistoryDB) AddBlock(block *common.Block) error {
	return hdb.addBlock(hdb.dbWrite, block)
}

func (hdb *HistoryDB) addBlock(d meddler.DB, block *common.Block) error {
	return common.Wrap(meddler.Insert(d, "block", block))
}

// AddRollupOps inserts the ordered operations of a block into the DB
func (hdb *HistoryDB) AddRollupOps(blockNum common.BlockNum, ops []common.RollupOp) error {
	return hdb.addRollupOps(hdb.dbWrite, blockNum, ops)
}

func (hdb *HistoryDB) addRollupOps(d meddler.DB, blockNum common.BlockNum,
	ops []common.RollupOp) error {
	if len(ops) == 0 {
		return nil
	}
	rows := make([]rollupOpRow, len(ops))
	for i, op := range ops {
		opType, opData, err := common.RollupOpToJSON(op)
		if err != nil {
			return common.Wrap(err)
		}
		rows[i] = rollupOpRow{
			BlockNum: blockNum,
			Position: i,
			OpType:   opType,
			OpData:   opData,
		}
	}
	return common.Wrap(database.BulkInsert(
		d,
		`INSERT INTO rollup_op (
			block_num,
			position,
			op_type,
			op_data
		) VALUES %s;`,
		rows,
	))
}

// AddAccountUpdates inserts the account update rows of a block into the DB
func (hdb *HistoryDB) AddAccountUpdates(updates []common.AccountUpdate) error {
	return hdb.addAccountUpdates(hdb.dbWrite, updates)
}

func (hdb *HistoryDB) addAccountUpdates(d meddler.DB, updates []common.AccountUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return common.Wrap(database.BulkInsert(
		d,
		`INSERT INTO account_update (
			block_num,
			idx,
			token_id,
			nonce,
			balance,
			pub_key,
			eth_addr,
			closed
		) VALUES %s;`,
		updates,
	))
}

// AddCommittedBlock inserts a block commit record, its operations and its
// account updates in one transaction
func (hdb *HistoryDB) AddCommittedBlock(block *common.Block, ops []common.RollupOp,
	updates []common.AccountUpdate) error {
	txn, err := hdb.dbWrite.Beginx()
	if err != nil {
		return common.Wrap(err)
	}
	defer func() {
		if err != nil {
			database.Rollback(txn)
		}
	}()
	if err = hdb.addBlock(txn, block); err != nil {
		return common.Wrap(err)
	}
	if err = hdb.addRollupOps(txn, block.Num, ops); err != nil {
		return common.Wrap(err)
	}
	if err = hdb.addAccountUpdates(txn, updates); err != nil {
		return common.Wrap(err)
	}
	return common.Wrap(txn.Commit())
}

// SetBlockVerified marks a block commit record as covered by a verified
// proof, removing it from the unverified scan
func (hdb *HistoryDB) SetBlockVerified(blockNum common.BlockNum) error {
	_, err := hdb.dbWrite.Exec(
		"UPDATE block SET verified = true WHERE block_num = $1;", blockNum)
	return common.Wrap(err)
}

// GetBlock retrieve a block commit record from the DB, given a block number
func (hdb *HistoryDB) GetBlock(blockNum common.BlockNum) (*common.Block, error) {
	block := &common.Block{}
	err := meddler.QueryRow(
		hdb.dbRead, block,
		"SELECT * FROM block WHERE block_num = $1;", blockNum,
	)
	return block, common.Wrap(err)
}

// GetLastBlock retrieve the block with the highest block number from the DB
func (hdb *HistoryDB) GetLastBlock() (*common.Block, error) {
	block := &common.Block{}
	err := meddler.QueryRow(
		hdb.dbRead, block, "SELECT * FROM block ORDER BY block_num DESC LIMIT 1;",
	)
	return block, common.Wrap(err)
}

// LoadUnverifiedCommitsAfterBlock returns up to limit unverified block
// commit records with block number greater than after, in ascending block
// order, with their operations attached
func (hdb *HistoryDB) LoadUnverifiedCommitsAfterBlock(after common.BlockNum,
	limit int64) ([]*common.Operation, error) {
	var blocks []*common.Block
	err := meddler.QueryAll(
		hdb.dbRead, &blocks,
		`SELECT * FROM block WHERE block_num > $1 AND verified = false
		 ORDER BY block_num ASC LIMIT $2;`,
		after, limit,
	)
	if err != nil {
		return nil, common.Wrap(err)
	}
	operations := make([]*common.Operation, len(blocks))
	for i, block := range blocks {
		ops, err := hdb.GetBlockOperations(block.Num)
		if err != nil {
			return nil, common.Wrap(err)
		}
		operations[i] = &common.Operation{Block: *block, Ops: ops}
	}
	return operations, nil
}

// GetBlockOperations returns the ordered ledger operations of a block
func (hdb *HistoryDB) GetBlockOperations(blockNum common.BlockNum) ([]common.RollupOp, error) {
	var rows []*rollupOpRow
	err := meddler.QueryAll(
		hdb.dbRead, &rows,
		"SELECT * FROM rollup_op WHERE block_num = $1 ORDER BY position ASC;",
		blockNum,
	)
	if err != nil {
		return nil, common.Wrap(err)
	}
	ops := make([]common.RollupOp, len(rows))
	for i, row := range rows {
		op, err := common.RollupOpFromJSON(row.OpType, row.OpData)
		if err != nil {
			return nil, common.Wrap(err)
		}
		ops[i] = op
	}
	return ops, nil
}

// getAccountUpdates returns the account update rows with from < block_num
// <= to, in insertion order
func (hdb *HistoryDB) getAccountUpdates(from, to common.BlockNum) (common.StateDiff, error) {
	var updates []*common.AccountUpdate
	err := meddler.QueryAll(
		hdb.dbRead, &updates,
		`SELECT * FROM account_update WHERE block_num > $1 AND block_num <= $2
		 ORDER BY item_id ASC;`,
		from, to,
	)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return common.StateDiff(database.SlicePtrsToSlice(updates).([]common.AccountUpdate)), nil
}

// LoadStateDiff returns the account mutations between the two heights.  ok
// is false when the heights are equal or no updates exist between them.
func (hdb *HistoryDB) LoadStateDiff(from, to common.BlockNum) (common.BlockNum,
	common.StateDiff, bool, error) {
	if from == to {
		return 0, nil, false, nil
	}
	diff, err := hdb.getAccountUpdates(from, to)
	if err != nil {
		return 0, nil, false, common.Wrap(err)
	}
	if len(diff) == 0 {
		return 0, nil, false, nil
	}
	return to, diff, true, nil
}

// LoadCommittedState reconstructs the full account mapping as of the given
// height by replaying every account update row up to it, through the same
// path the incremental cache uses.
func (hdb *HistoryDB) LoadCommittedState(height common.BlockNum) (common.BlockNum,
	common.AccountMap, error) {
	// from -1 so that genesis rows at block_num 0 are replayed too
	diff, err := hdb.getAccountUpdates(-1, height)
	if err != nil {
		return 0, nil, common.Wrap(err)
	}
	accounts := make(common.AccountMap)
	accounts.ApplyUpdates(diff)
	return height, accounts, nil
}

// IsErrNoRows reports whether the error is a wrapped sql.ErrNoRows
func IsErrNoRows(err error) bool {
	return errors.Is(common.Unwrap(err), sql.ErrNoRows)
}
