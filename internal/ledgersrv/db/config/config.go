package config

import (
	"fmt"
	"os"

	"github.com/schemaledger/schemaledger/internal/ledgersrv/config"
)

type dbconncfg struct {
	host     string
	port     int
	dbname   string
	user     string
	password string
	sslmode  string
}

var ledgerDbConn *dbconncfg

func init() {
	ledgerDbConn = &dbconncfg{
		host:     envOr("LEDGER_DB_HOST", "localhost"),
		port:     5432,
		user:     envOr("LEDGER_DB_USER", "ledger_api"),
		password: envOr("LEDGER_DB_PASSWORD", "abc@123"),
		dbname:   envOr("LEDGER_DB_NAME", "schemaledger"),
		sslmode:  "disable",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func LedgerDsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ledgerDbConn.host, ledgerDbConn.port, ledgerDbConn.user, ledgerDbConn.password, ledgerDbConn.dbname, ledgerDbConn.sslmode)
}

func CompressDefinitions() bool {
	return config.Config().CompressDefinitions
}
