package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/schemaledger/schemaledger/pkg/types"
)

/*
  Table "public.temporal_snapshots"
    Column    |           Type           | Collation | Nullable | Default
--------------+--------------------------+-----------+----------+---------
 snapshot_id  | uuid                     |           | not null |
 branch_id    | uuid                     |           | not null |
 object_id    | uuid                     |           | not null |
 object_type  | character varying(32)    |           | not null |
 namespace    | character varying(63)    |           | not null |
 name         | character varying(63)    |           | not null |
 definition   | bytea                    |           | not null |
 content_hash | character(128)           |           | not null |
 commit_id    | character(128)           |           | not null |
 metadata     | jsonb                    |           |          |
 tenant_id    | character varying(10)    |           | not null |
 captured_at  | timestamp with time zone |           | not null | now()
Indexes:
    "temporal_snapshots_pkey" PRIMARY KEY, btree (snapshot_id, tenant_id)
    "temporal_snapshots_object_idx" btree (branch_id, object_type, namespace, name, captured_at, tenant_id)

Write-once point-in-time captures for recovery and historical queries. Rows
are inserted inside the commit transaction and never updated.
*/

type TemporalSnapshot struct {
	SnapshotID uuid.UUID        `db:"snapshot_id"`
	BranchID   uuid.UUID        `db:"branch_id"`
	ObjectID   uuid.UUID        `db:"object_id"`
	ObjectType types.ObjectType `db:"object_type"`
	Namespace  string           `db:"namespace"`
	Name       string           `db:"name"`
	Definition []byte           `db:"definition"`
	Hash       types.Hash       `db:"content_hash"`
	CommitID   string           `db:"commit_id"`
	Metadata   pgtype.JSONB     `db:"metadata"`
	TenantID   types.TenantId   `db:"tenant_id"`
	CapturedAt time.Time        `db:"captured_at"`
}
