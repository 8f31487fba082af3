// Package postgresql implements the ledger's storage managers against
// PostgreSQL. All multi-row writes happen inside ApplyCommit's single
// transaction; everything else is reads and single-row metadata updates.
package postgresql

import (
	"context"
	"database/sql"

	"github.com/golang/snappy"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/config"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dbmanager"
)

type ledgerDb struct {
	mm *metadataManager
	om *objectManager
	cm *connectionManager
}

func NewLedgerDb(c dbmanager.ScopedConn) (*metadataManager, *objectManager, *connectionManager) {
	h := &ledgerDb{}
	h.mm = newMetadataManager(c)
	h.om = newObjectManager(c)
	h.cm = newConnectionManager(c)
	h.om.m = h.mm
	return h.mm, h.om, h.cm
}

type metadataManager struct {
	c dbmanager.ScopedConn
}

func newMetadataManager(c dbmanager.ScopedConn) *metadataManager {
	return &metadataManager{c: c}
}

func (mm *metadataManager) conn() *sql.Conn {
	return mm.c.Conn()
}

type objectManager struct {
	c dbmanager.ScopedConn
	m *metadataManager
}

func newObjectManager(c dbmanager.ScopedConn) *objectManager {
	return &objectManager{c: c}
}

func (om *objectManager) conn() *sql.Conn {
	return om.c.Conn()
}

type connectionManager struct {
	c dbmanager.ScopedConn
}

func newConnectionManager(c dbmanager.ScopedConn) *connectionManager {
	return &connectionManager{c: c}
}

func (cm *connectionManager) AddScope(ctx context.Context, scope, value string) error {
	return cm.c.AddScope(ctx, scope, value)
}

func (cm *connectionManager) DropScope(ctx context.Context, scope string) error {
	return cm.c.DropScope(ctx, scope)
}

func (cm *connectionManager) DropAllScopes(ctx context.Context) error {
	return cm.c.DropAllScopes(ctx)
}

func (cm *connectionManager) Close(ctx context.Context) {
	cm.c.Close(ctx)
}

// compressDefinition applies snappy compression to a definition payload when
// compression is enabled. Nil stays nil so dropped states round-trip.
func compressDefinition(data []byte) []byte {
	if data == nil {
		return nil
	}
	if !config.CompressDefinitions() {
		return data
	}
	return snappy.Encode(nil, data)
}

// expandDefinition reverses compressDefinition.
func expandDefinition(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	if !config.CompressDefinitions() {
		return data, nil
	}
	return snappy.Decode(nil, data)
}
