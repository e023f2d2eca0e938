package main

import (
	"context"
	"fmt"

	"github.com/trezcool/warsha/core/migrate"
)

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	return gooseRunFunc(ctx, cli.db, cli.logger, args[0], args[1:]...)
}

func (cli *commandLine) migrateLegacy(ctx context.Context, pageSize int, plan []migrate.TableMigration) error {
	m := migrate.NewMigrator(cli.legacy, cli.current, migrate.WithPageSize(pageSize), migrate.WithOutput(cli.out))
	total, err := m.MigrateTables(ctx, plan...)
	cli.out.Info(fmt.Sprintf("Done: %d rows migrated.", total))
	return err
}
