package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/schemaledger/schemaledger/pkg/types"
)

/*
  Table "public.staged_changes"
   Column    |           Type           | Collation | Nullable | Default
-------------+--------------------------+-----------+----------+---------
 branch_id   | uuid                     |           | not null |
 object_type | character varying(32)    |           | not null |
 namespace   | character varying(63)    |           | not null |
 name        | character varying(63)    |           | not null |
 definition  | bytea                    |           |          |
 is_drop     | boolean                  |           | not null | false
 tenant_id   | character varying(10)    |           | not null |
 updated_at  | timestamp with time zone |           | not null | now()
Indexes:
    "staged_changes_pkey" PRIMARY KEY, btree (branch_id, object_type, namespace, name, tenant_id)

The working set of a branch between commits. commit_changes reads these rows,
diffs them against the branch-resolved state, and clears them inside the same
transaction that writes the commit. definition is NULL when is_drop is set.
*/

type StagedChange struct {
	BranchID   uuid.UUID        `db:"branch_id"`
	ObjectType types.ObjectType `db:"object_type"`
	Namespace  string           `db:"namespace"`
	Name       string           `db:"name"`
	Definition []byte           `db:"definition"`
	IsDrop     bool             `db:"is_drop"`
	TenantID   types.TenantId   `db:"tenant_id"`
	UpdatedAt  time.Time        `db:"updated_at"`
}

// Ref returns the logical identity of the staged change.
func (s *StagedChange) Ref() types.ObjectRef {
	return types.ObjectRef{Type: s.ObjectType, Namespace: s.Namespace, Name: s.Name}
}
