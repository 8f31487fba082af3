package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/schemaledger/schemaledger/pkg/types"
)

/*
  Table "public.object_history"
      Column       |           Type           | Collation | Nullable | Default
-------------------+--------------------------+-----------+----------+---------
 id                | uuid                     |           | not null |
 object_id         | uuid                     |           | not null |
 object_type       | character varying(32)    |           | not null |
 namespace         | character varying(63)    |           | not null |
 name              | character varying(63)    |           | not null |
 branch_id         | uuid                     |           | not null |
 commit_id         | character(128)           |           | not null |
 seq               | bigint                   |           | not null |
 change_type       | character varying(16)    |           | not null |
 before_definition | bytea                    |           |          |
 before_hash       | character(128)           |           |          |
 after_definition  | bytea                    |           |          |
 after_hash        | character(128)           |           |          |
 tenant_id         | character varying(10)    |           | not null |
 created_at        | timestamp with time zone |           | not null | now()
Indexes:
    "object_history_pkey" PRIMARY KEY, btree (id, tenant_id)
    "object_history_identity_idx" btree (object_type, namespace, name, branch_id, seq, tenant_id)
    "object_history_commit_idx" btree (commit_id, tenant_id)
Check constraints:
    "object_history_change_type_check" CHECK (change_type IN ('CREATE', 'ALTER', 'DROP', 'MERGE', 'REVERT'))

Append-only substrate for diffing, rollback and audit. No UPDATE path exists;
rows are removed only by the explicit retention operation. Definitions are
snappy-compressed when compression is enabled. seq mirrors the owning
commit's per-branch sequence so range scans over a branch segment are cheap.
*/

type ObjectHistoryEntry struct {
	ID               uuid.UUID        `db:"id"`
	ObjectID         uuid.UUID        `db:"object_id"`
	ObjectType       types.ObjectType `db:"object_type"`
	Namespace        string           `db:"namespace"`
	Name             string           `db:"name"`
	BranchID         uuid.UUID        `db:"branch_id"`
	CommitID         string           `db:"commit_id"`
	Seq              int64            `db:"seq"`
	ChangeType       types.ChangeType `db:"change_type"`
	BeforeDefinition []byte           `db:"before_definition"`
	BeforeHash       types.Hash       `db:"before_hash"`
	AfterDefinition  []byte           `db:"after_definition"`
	AfterHash        types.Hash       `db:"after_hash"`
	TenantID         types.TenantId   `db:"tenant_id"`
	CreatedAt        time.Time        `db:"created_at"`
}

// Ref returns the logical identity the entry belongs to.
func (e *ObjectHistoryEntry) Ref() types.ObjectRef {
	return types.ObjectRef{Type: e.ObjectType, Namespace: e.Namespace, Name: e.Name}
}

// IsDrop reports whether the entry removed the object.
func (e *ObjectHistoryEntry) IsDrop() bool {
	return e.AfterHash.IsNil()
}
