package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/schemaledger/schemaledger/pkg/types"
)

/*
  Table "public.schema_objects"
       Column       |           Type           | Collation | Nullable | Default
--------------------+--------------------------+-----------+----------+---------
 object_id          | uuid                     |           | not null |
 branch_id          | uuid                     |           | not null |
 object_type        | character varying(32)    |           | not null |
 namespace          | character varying(63)    |           | not null |
 name               | character varying(63)    |           | not null |
 current_definition | bytea                    |           | not null |
 content_hash       | character(128)           |           | not null |
 is_active          | boolean                  |           | not null | true
 tenant_id          | character varying(10)    |           | not null |
 created_at         | timestamp with time zone |           | not null | now()
 updated_at         | timestamp with time zone |           | not null | now()
Indexes:
    "schema_objects_pkey" PRIMARY KEY, btree (object_id, tenant_id)
    "unique_object_identity_branch" UNIQUE, btree (branch_id, object_type, namespace, name, tenant_id)
Foreign-key constraints:
    "schema_objects_branch_id_tenant_id_fkey" FOREIGN KEY (branch_id, tenant_id) REFERENCES branches(branch_id, tenant_id)

The per-branch object catalog. The logical identity of an object is
(object_type, namespace, name); a row exists for a branch only once a commit
on that branch touched the object (copy-on-write: untouched objects resolve
through the fork chain). current_definition is snappy-compressed when
compression is enabled. Rows change only through the commit transaction.
*/

type SchemaObject struct {
	ObjectID   uuid.UUID        `db:"object_id"`
	BranchID   uuid.UUID        `db:"branch_id"`
	ObjectType types.ObjectType `db:"object_type"`
	Namespace  string           `db:"namespace"`
	Name       string           `db:"name"`
	Definition []byte           `db:"current_definition"`
	Hash       types.Hash       `db:"content_hash"`
	IsActive   bool             `db:"is_active"`
	TenantID   types.TenantId   `db:"tenant_id"`
	CreatedAt  time.Time        `db:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at"`
}

// Ref returns the logical identity of the object.
func (o *SchemaObject) Ref() types.ObjectRef {
	return types.ObjectRef{Type: o.ObjectType, Namespace: o.Namespace, Name: o.Name}
}
