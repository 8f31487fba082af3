package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/logtrace"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/config"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/ledgercommon"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/versionmanager"
	"github.com/schemaledger/schemaledger/pkg/types"
)

func init() {
	logtrace.InitLogger()
}

type cmdoptions struct {
	configFile    *string
	retentionDays *int
}

func main() {

	slog := log.With().Str("state", "init").Logger()
	opt := parseFlags()

	if *opt.configFile != "" {
		slog.Info().Str("config_file", *opt.configFile).Msg("loading config file")
		if err := config.LoadConfig(*opt.configFile); err != nil {
			slog.Error().Str("config_file", *opt.configFile).Err(err).Msg("unable to load config file")
			os.Exit(1)
		}
	}

	if config.Config().SingleTenantMode {
		slog.Info().Msg("single tenant mode enabled")
		if err := ensureDefaultBranch(); err != nil {
			slog.Error().Err(err).Msg("unable to ensure default branch")
			os.Exit(1)
		}
	}

	if *opt.retentionDays > 0 {
		if err := runRetention(*opt.retentionDays); err != nil {
			slog.Error().Err(err).Msg("retention run failed")
			os.Exit(1)
		}
	}
}

// ensureDefaultBranch creates the root branch when the ledger is empty.
func ensureDefaultBranch() error {
	ctx := engineCtx()
	defer db.DB(ctx).Close(ctx)

	_, err := versionmanager.GetBranch(ctx, types.DefaultBranch)
	if err == nil {
		return nil
	}
	if !errors.Is(err, versionmanager.ErrNotFound) {
		return err
	}
	_, err = versionmanager.CreateBranch(ctx, &versionmanager.CreateBranchRequest{
		Name: types.DefaultBranch,
	})
	if err != nil && !errors.Is(err, versionmanager.ErrDuplicateName) {
		return err
	}
	log.Ctx(ctx).Info().Str("branch", types.DefaultBranch).Msg("default branch ready")
	return nil
}

func runRetention(windowDays int) error {
	ctx := engineCtx()
	defer db.DB(ctx).Close(ctx)

	pruned, err := versionmanager.ApplyRetention(ctx, windowDays)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().Int64("rows", pruned).Int("window_days", windowDays).Msg("retention applied")
	return nil
}

func engineCtx() context.Context {
	ctx := db.ConnCtx(context.Background())
	ctx = ledgercommon.SetTenantIdInContext(ctx, types.TenantId(config.Config().DefaultTenantID))
	ctx = ledgercommon.SetAuthorInContext(ctx, config.Config().DefaultAuthor)
	return ctx
}

func parseFlags() cmdoptions {
	var opt cmdoptions
	opt.configFile = flag.String("config", "", "Path to the config file")
	opt.retentionDays = flag.Int("retention-days", 0, "Prune history older than this many days and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
	}
	flag.Parse()
	return opt
}
