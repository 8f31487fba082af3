package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/schemaledger/schemaledger/pkg/types"
)

/*
  Table "public.merge_operations"
        Column         |           Type           | Collation | Nullable |      Default
-----------------------+--------------------------+-----------+----------+--------------------
 merge_id              | uuid                     |           | not null | uuid_generate_v4()
 source_branch_id      | uuid                     |           | not null |
 target_branch_id      | uuid                     |           | not null |
 base_commit_id        | character(128)           |           |          |
 source_head_commit_id | character(128)           |           | not null |
 target_head_commit_id | character(128)           |           | not null |
 message               | character varying(1024)  |           |          |
 status                | character varying(16)    |           | not null | 'PENDING'
 changes               | jsonb                    |           |          |
 conflicts             | jsonb                    |           |          |
 tenant_id             | character varying(10)    |           | not null |
 created_at            | timestamp with time zone |           | not null | now()
 updated_at            | timestamp with time zone |           | not null | now()
Indexes:
    "merge_operations_pkey" PRIMARY KEY, btree (merge_id, tenant_id)
    "merge_operations_target_idx" btree (target_branch_id, status, tenant_id)
Check constraints:
    "merge_operations_status_check" CHECK (status IN ('PENDING', 'CONFLICTED', 'RESOLVED', 'APPLIED', 'ABORTED'))

The head commit ids are recorded when the merge opens; apply compares the
target's live head against target_head_commit_id to detect a stale base.
changes holds the per-object merge plan, conflicts the classified conflict
list, both serialized JSON.
*/

type MergeOperation struct {
	MergeID            uuid.UUID         `db:"merge_id"`
	SourceBranchID     uuid.UUID         `db:"source_branch_id"`
	TargetBranchID     uuid.UUID         `db:"target_branch_id"`
	BaseCommitID       string            `db:"base_commit_id"`
	SourceHeadCommitID string            `db:"source_head_commit_id"`
	TargetHeadCommitID string            `db:"target_head_commit_id"`
	Message            string            `db:"message"`
	Status             types.MergeStatus `db:"status"`
	Changes            pgtype.JSONB      `db:"changes"`
	Conflicts          pgtype.JSONB      `db:"conflicts"`
	TenantID           types.TenantId    `db:"tenant_id"`
	CreatedAt          time.Time         `db:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at"`
}
