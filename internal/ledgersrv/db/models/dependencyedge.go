package models

import (
	"github.com/google/uuid"
	"github.com/schemaledger/schemaledger/pkg/types"
)

/*
  Table "public.object_dependencies"
      Column      |         Type          | Collation | Nullable | Default
------------------+-----------------------+-----------+----------+---------
 branch_id        | uuid                  |           | not null |
 source_type      | character varying(32) |           | not null |
 source_namespace | character varying(63) |           | not null |
 source_name      | character varying(63) |           | not null |
 target_type      | character varying(32) |           | not null |
 target_namespace | character varying(63) |           | not null |
 target_name      | character varying(63) |           | not null |
 dependency_type  | character varying(32) |           | not null |
 tenant_id        | character varying(10) |           | not null |
Indexes:
    "object_dependencies_pkey" PRIMARY KEY, btree (branch_id, source_type, source_namespace, source_name, target_type, target_namespace, target_name, tenant_id)
    "object_dependencies_target_idx" btree (branch_id, target_type, target_namespace, target_name, tenant_id)

Directed edge list: source depends on target. Edges are recomputed from the
parsed definition on every commit that touches the source; they are never
hand-maintained. Edges are keyed by logical identity so they survive the
per-branch copy-on-write of catalog rows.
*/

type DependencyEdge struct {
	BranchID       uuid.UUID            `db:"branch_id"`
	Source         types.ObjectRef      `db:"-"`
	Target         types.ObjectRef      `db:"-"`
	DependencyType types.DependencyType `db:"dependency_type"`
	TenantID       types.TenantId       `db:"tenant_id"`
}
