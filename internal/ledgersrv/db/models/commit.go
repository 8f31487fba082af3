package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/schemaledger/schemaledger/pkg/types"
)

/*
  Table "public.commits"
      Column       |           Type           | Collation | Nullable | Default
-------------------+--------------------------+-----------+----------+---------
 id                | uuid                     |           | not null |
 commit_id         | character(128)           |           | not null |
 branch_id         | uuid                     |           | not null |
 seq               | bigint                   |           | not null |
 author            | character varying(128)   |           | not null |
 message           | character varying(1024)  |           |          |
 parent_commit_ids | text[]                   |           | not null | '{}'
 idempotency_key   | character varying(128)   |           |          |
 tenant_id         | character varying(10)    |           | not null |
 created_at        | timestamp with time zone |           | not null | now()
Indexes:
    "commits_pkey" PRIMARY KEY, btree (id, tenant_id)
    "unique_commit_id" UNIQUE, btree (commit_id, tenant_id)
    "unique_commit_branch_seq" UNIQUE, btree (branch_id, seq, tenant_id)
    "unique_commit_idempotency_key" UNIQUE, btree (branch_id, idempotency_key, tenant_id) WHERE idempotency_key IS NOT NULL
Check constraints:
    "commits_seq_check" CHECK (seq > 0)
Foreign-key constraints:
    "commits_branch_id_tenant_id_fkey" FOREIGN KEY (branch_id, tenant_id) REFERENCES branches(branch_id, tenant_id)

Rows are immutable once written. id is a UUIDv7; commit_id is the
content-influenced hex digest and is never reused, even across failed
attempts (a failed transaction rolls the row back together with the branch
sequence). A merge commit carries two parent commit ids.
*/

type Commit struct {
	ID              uuid.UUID      `db:"id"`
	CommitID        string         `db:"commit_id"`
	BranchID        uuid.UUID      `db:"branch_id"`
	Seq             int64          `db:"seq"`
	Author          string         `db:"author"`
	Message         string         `db:"message"`
	ParentCommitIDs []string       `db:"parent_commit_ids"`
	IdempotencyKey  string         `db:"idempotency_key"`
	TenantID        types.TenantId `db:"tenant_id"`
	CreatedAt       time.Time      `db:"created_at"`
}
