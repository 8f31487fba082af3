// Package ledgercommon provides context management utilities for the ledger
// service: tenant scoping and the acting author recorded on commits.
package ledgercommon

import (
	"context"

	"github.com/schemaledger/schemaledger/pkg/types"
)

// ctxKeyType represents the type for all context keys
type ctxKeyType string

const (
	ctxTenantIdKey ctxKeyType = "LedgerTenantId"
	ctxAuthorKey   ctxKeyType = "LedgerAuthor"
)

// SetTenantIdInContext sets the tenant ID in the provided context.
func SetTenantIdInContext(ctx context.Context, tenantId types.TenantId) context.Context {
	return context.WithValue(ctx, ctxTenantIdKey, tenantId)
}

// GetTenantID retrieves the tenant ID from the provided context.
func GetTenantID(ctx context.Context) types.TenantId {
	if tenantId, ok := ctx.Value(ctxTenantIdKey).(types.TenantId); ok {
		return tenantId
	}
	return ""
}

// SetAuthorInContext sets the acting author in the provided context.
func SetAuthorInContext(ctx context.Context, author string) context.Context {
	return context.WithValue(ctx, ctxAuthorKey, author)
}

// GetAuthor retrieves the acting author from the provided context.
func GetAuthor(ctx context.Context) string {
	if author, ok := ctx.Value(ctxAuthorKey).(string); ok {
		return author
	}
	return ""
}
