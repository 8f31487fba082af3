package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/schemaledger/schemaledger/pkg/types"
)

/*
  Table "public.branches"
      Column      |           Type           | Collation | Nullable |      Default
------------------+--------------------------+-----------+----------+--------------------
 branch_id        | uuid                     |           | not null | uuid_generate_v4()
 name             | character varying(63)    |           | not null |
 description      | character varying(1024)  |           |          |
 info             | jsonb                    |           |          |
 parent_branch_id | uuid                     |           |          |
 fork_commit_id   | character(128)           |           |          |
 head_commit_id   | character(128)           |           |          |
 commit_seq       | bigint                   |           | not null | 0
 status           | character varying(16)    |           | not null | 'ACTIVE'
 created_by       | character varying(128)   |           |          |
 tenant_id        | character varying(10)    |           | not null |
 created_at       | timestamp with time zone |           | not null | now()
 updated_at       | timestamp with time zone |           | not null | now()
Indexes:
    "branches_pkey" PRIMARY KEY, btree (branch_id, tenant_id)
    "unique_active_branch_name" UNIQUE, btree (name, tenant_id) WHERE status = 'ACTIVE'
Check constraints:
    "branches_name_check" CHECK (name::text ~ '^[a-z0-9]([-a-z0-9]*[a-z0-9])?$'::text)
    "branches_status_check" CHECK (status IN ('ACTIVE', 'MERGED', 'DELETED'))
    "branches_commit_seq_check" CHECK (commit_seq >= 0)
Foreign-key constraints:
    "branches_parent_branch_id_tenant_id_fkey" FOREIGN KEY (parent_branch_id, tenant_id) REFERENCES branches(branch_id, tenant_id)

Rows are never physically deleted while commits reference them; status moves to
DELETED instead. commit_seq is the per-branch sequence counter: it advances
only inside the commit transaction while the row is locked FOR UPDATE, so
sequence numbers are gapless on success and unconsumed on failure.
*/

type Branch struct {
	BranchID       uuid.UUID          `db:"branch_id"`
	Name           string             `db:"name"`
	Description    string             `db:"description"`
	Info           pgtype.JSONB       `db:"info"`
	ParentBranchID uuid.NullUUID      `db:"parent_branch_id"`
	ForkCommitID   string             `db:"fork_commit_id"`
	HeadCommitID   string             `db:"head_commit_id"`
	CommitSeq      int64              `db:"commit_seq"`
	Status         types.BranchStatus `db:"status"`
	CreatedBy      string             `db:"created_by"`
	TenantID       types.TenantId     `db:"tenant_id"`
	CreatedAt      time.Time          `db:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at"`
}
