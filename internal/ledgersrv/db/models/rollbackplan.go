package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/schemaledger/schemaledger/pkg/types"
)

/*
  Table "public.rollback_plans"
      Column      |           Type           | Collation | Nullable |   Default
------------------+--------------------------+-----------+----------+-------------
 plan_id          | character varying(32)    |           | not null |
 branch_id        | uuid                     |           | not null |
 target_commit_id | character(128)           |           | not null |
 head_commit_id   | character(128)           |           | not null |
 mode             | character varying(8)     |           | not null |
 steps            | jsonb                    |           | not null | '[]'
 blocking_reasons | jsonb                    |           |          |
 status           | character varying(16)    |           | not null | 'GENERATED'
 tenant_id        | character varying(10)    |           | not null |
 created_at       | timestamp with time zone |           | not null | now()
 updated_at       | timestamp with time zone |           | not null | now()
Indexes:
    "rollback_plans_pkey" PRIMARY KEY, btree (plan_id, tenant_id)
Check constraints:
    "rollback_plans_mode_check" CHECK (mode IN ('SOFT', 'HARD'))
    "rollback_plans_status_check" CHECK (status IN ('GENERATED', 'EXECUTED', 'INVALID'))

head_commit_id pins the branch head the plan was computed against; execute
refuses a plan whose branch has since advanced. A failed execution leaves the
row in GENERATED so the plan stays re-executable.
*/

type RollbackPlan struct {
	PlanID          string             `db:"plan_id"`
	BranchID        uuid.UUID          `db:"branch_id"`
	TargetCommitID  string             `db:"target_commit_id"`
	HeadCommitID    string             `db:"head_commit_id"`
	Mode            types.RollbackMode `db:"mode"`
	Steps           pgtype.JSONB       `db:"steps"`
	BlockingReasons pgtype.JSONB       `db:"blocking_reasons"`
	Status          types.PlanStatus   `db:"status"`
	TenantID        types.TenantId     `db:"tenant_id"`
	CreatedAt       time.Time          `db:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at"`
}
