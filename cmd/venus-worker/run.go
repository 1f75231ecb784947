package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
	badger "github.com/ipfs/go-ds-badger2"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/stats/view"
	"golang.org/x/xerrors"

	"github.com/ipfs-force-community/venus-worker/api"
	"github.com/ipfs-force-community/venus-worker/api/client"
	"github.com/ipfs-force-community/venus-worker/lib/piecefetch"
	"github.com/ipfs-force-community/venus-worker/metrics"
	"github.com/ipfs-force-community/venus-worker/node/config"
	"github.com/ipfs-force-community/venus-worker/prover"
	"github.com/ipfs-force-community/venus-worker/prover/mock"
	"github.com/ipfs-force-community/venus-worker/sealing"
	"github.com/ipfs-force-community/venus-worker/sealing/failure"
	"github.com/ipfs-force-community/venus-worker/sealing/sealiface"
)

const defaultConfigPath = "~/.venus-worker/config.toml"

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Start the sealing worker",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   defaultConfigPath,
			Usage:   "Path to the worker config file",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := config.FromFile(cctx.String("config"), config.DefaultWorker())
		if err != nil {
			return xerrors.Errorf("loading config: %w", err)
		}

		scfg, err := cfg.Sealing.ToSealiface()
		if err != nil {
			return xerrors.Errorf("resolving sealing config: %w", err)
		}

		if cfg.Worker.BatchSize <= 0 {
			return xerrors.Errorf("invalid batch size %d", cfg.Worker.BatchSize)
		}
		if cfg.Worker.Jobs <= 0 {
			return xerrors.Errorf("invalid job count %d", cfg.Worker.Jobs)
		}

		dataDir, err := homedir.Expand(cfg.Worker.DataDir)
		if err != nil {
			return xerrors.Errorf("expanding data dir: %w", err)
		}
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return xerrors.Errorf("creating data dir: %w", err)
		}

		ds, err := badger.NewDatastore(filepath.Join(dataDir, "datastore"), &badger.DefaultOptions)
		if err != nil {
			return xerrors.Errorf("opening job datastore: %w", err)
		}
		defer ds.Close() //nolint:errcheck

		if err := view.Register(metrics.DefaultViews...); err != nil {
			return xerrors.Errorf("registering metric views: %w", err)
		}

		ctx, cancel := context.WithCancel(cctx.Context)
		defer cancel()

		go func() {
			sigChan := make(chan os.Signal, 2)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigChan
			log.Infow("shutting down", "signal", sig)
			cancel()
		}()

		header := http.Header{}
		if cfg.Manager.Token != "" {
			header.Set("Authorization", "Bearer "+cfg.Manager.Token)
		}

		sealer, closer, err := client.NewSealerRPC(ctx, cfg.Manager.Addr, header)
		if err != nil {
			return xerrors.Errorf("connecting to sector-manager at %s: %w", cfg.Manager.Addr, err)
		}
		defer closer()

		prv, persist, err := buildProver(cfg.Worker.Prover)
		if err != nil {
			return err
		}

		var fetcher *piecefetch.Fetcher
		if cfg.Worker.PieceToken != "" {
			fetcher = piecefetch.New(cfg.Worker.PieceToken)
		} else {
			fetcher = piecefetch.FromEnv()
		}

		name := cfg.Worker.Name
		if name == "" {
			name, err = os.Hostname()
			if err != nil {
				return xerrors.Errorf("resolving hostname: %w", err)
			}
		}

		deps := sealing.JobDeps{
			Sealer:    sealer,
			Prover:    prv,
			Persist:   persist,
			Fetcher:   fetcher,
			GetConfig: func() sealiface.Config { return scfg },
			Ident:     api.WorkerIdentifier{Instance: name, Location: dataDir},
		}

		log.Infow("worker starting",
			"name", name, "jobs", cfg.Worker.Jobs,
			"batch-size", cfg.Worker.BatchSize, "manager", cfg.Manager.Addr)

		var wg sync.WaitGroup
		errCh := make(chan error, cfg.Worker.Jobs)

		for i := 0; i < cfg.Worker.Jobs; i++ {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				if err := runSlot(ctx, ds, name, slot, cfg.Worker.BatchSize, deps); err != nil {
					errCh <- xerrors.Errorf("job slot %d: %w", slot, err)
					cancel()
				}
			}(i)
		}

		wg.Wait()
		close(errCh)

		return <-errCh
	},
}

// runSlot seals batches back to back in one job slot. The job id is derived
// from the worker name and slot, so an unfinished batch is resumed after a
// restart; finished and aborted batches are cleared to make room for a fresh
// one.
func runSlot(ctx context.Context, ds *badger.Datastore, name string, slot int, batchSize int, deps sealing.JobDeps) error {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/job/%d", name, slot)))

	for ctx.Err() == nil {
		job, err := sealing.NewJob(ctx, ds, id, batchSize, deps)
		if err != nil {
			return err
		}

		w, err := sealing.NewWorker(job)
		if err != nil {
			return err
		}

		err = w.Run(ctx)
		switch {
		case err == nil:
			log.Infow("batch sealed, starting the next one", "slot", slot, "job", id)

		case errors.Is(err, failure.ErrInterrupted) || errors.Is(err, context.Canceled):
			return nil

		case failure.LevelOf(err) == failure.LevelPerm || failure.LevelOf(err) == failure.LevelAbort:
			log.Warnw("batch aborted, starting over", "slot", slot, "job", id, "err", err)

		default:
			return err
		}

		if err := job.Delete(ctx); err != nil {
			return xerrors.Errorf("clearing batch record: %w", err)
		}
	}

	return nil
}

func buildProver(name string) (prover.Prover, prover.PersistStore, error) {
	switch name {
	case "", "mock":
		mgr := mock.NewSectorMgr("")
		return mgr, mgr, nil
	default:
		return nil, nil, xerrors.Errorf("unknown proving backend %q", name)
	}
}
