package historydb

import (
	"github.com/rollup-prover/prover-server/common"
)

// Schema is the subset of the committing service's schema the prover server
// relies on.  The committing service owns the real migrations; this copy
// exists to seed development and test databases.
const Schema = `
CREATE TABLE IF NOT EXISTS block (
    block_num BIGINT PRIMARY KEY,
    fee_account BIGINT NOT NULL,
    old_root DECIMAL(78,0) NOT NULL,
    new_root DECIMAL(78,0) NOT NULL,
    chunks INTEGER NOT NULL,
    timestamp TIMESTAMP WITHOUT TIME ZONE NOT NULL,
    verified BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS rollup_op (
    item_id BIGSERIAL PRIMARY KEY,
    block_num BIGINT NOT NULL REFERENCES block (block_num) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    op_type VARCHAR(32) NOT NULL,
    op_data BYTEA NOT NULL,
    UNIQUE (block_num, position)
);

CREATE TABLE IF NOT EXISTS account_update (
    item_id BIGSERIAL PRIMARY KEY,
    block_num BIGINT NOT NULL REFERENCES block (block_num) ON DELETE CASCADE,
    idx BIGINT NOT NULL,
    token_id INTEGER NOT NULL,
    nonce BIGINT NOT NULL,
    balance DECIMAL(78,0) NOT NULL,
    pub_key BYTEA NOT NULL,
    eth_addr BYTEA NOT NULL,
    closed BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS account_update_block_num_idx ON account_update (block_num);
`

// CreateSchema applies Schema on the write connection
func (hdb *HistoryDB) CreateSchema() error {
	_, err := hdb.dbWrite.Exec(Schema)
	return common.Wrap(err)
}
