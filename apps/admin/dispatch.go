package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/warsha/core/dispatch"
	"github.com/trezcool/warsha/core/seminar"
)

type dispatchOptions struct {
	job        string
	seminarIDs []string
	sync       bool
	window     time.Duration
}

func (cli *commandLine) dispatch(ctx context.Context, opts dispatchOptions) error {
	var batch seminar.Batch
	switch opts.job {
	case "reminder":
		batch = seminar.ReminderBatch(cli.regRepo, cli.mailSvc, cli.conf, cli.now(), opts.window, opts.seminarIDs...)
	case "certificate":
		batch = seminar.CertificateBatch(cli.regRepo, cli.mailSvc, cli.conf, opts.seminarIDs...)
	default:
		return fmt.Errorf("unknown job %q, want reminder or certificate", opts.job)
	}

	d := dispatch.NewDispatcher(dispatch.SelectExecutor(opts.sync, cli.async), cli.out)
	n, err := batch.Dispatch(ctx, cli.regRepo, d)
	if err != nil {
		return err
	}
	cli.out.Info(fmt.Sprintf("Dispatched %d %s.", n, batch.Kind.Name()))
	return nil
}
