// Package node wires the prover server together: configuration, database
// connections, the witness pool, the maintainer worker and the HTTP
// surfaces.
package node

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rollup-prover/prover-server/api"
	"github.com/rollup-prover/prover-server/common"
	"github.com/rollup-prover/prover-server/config"
	"github.com/rollup-prover/prover-server/database"
	"github.com/rollup-prover/prover-server/database/historydb"
	"github.com/rollup-prover/prover-server/log"
	"github.com/rollup-prover/prover-server/prover"
)

const shutdownTimeout = 10 * time.Second

// Node is the running prover server
type Node struct {
	cfg        *config.Config
	dbWrite    *sqlx.DB
	dbRead     *sqlx.DB
	historyDB  *historydb.HistoryDB
	pool       *prover.ProversDataPool
	maintainer *prover.Maintainer

	apiServer     *http.Server
	metricsServer *http.Server

	// the maintainer reports abnormal worker termination here
	panicNotify chan bool
}

// NewNode creates a Node from its configuration, without starting anything
func NewNode(cfg *config.Config) (*Node, error) {
	dbWrite, err := database.InitSQLDB(
		cfg.PostgreSQL.PortWrite,
		cfg.PostgreSQL.HostWrite,
		cfg.PostgreSQL.UserWrite,
		cfg.PostgreSQL.PasswordWrite,
		cfg.PostgreSQL.NameWrite,
	)
	if err != nil {
		return nil, common.Wrap(fmt.Errorf("database.InitSQLDB: %w", err))
	}
	var dbRead *sqlx.DB
	if cfg.PostgreSQL.HostRead == "" {
		dbRead = dbWrite
	} else {
		dbRead, err = database.InitSQLDB(
			cfg.PostgreSQL.PortRead,
			cfg.PostgreSQL.HostRead,
			cfg.PostgreSQL.UserRead,
			cfg.PostgreSQL.PasswordRead,
			cfg.PostgreSQL.NameRead,
		)
		if err != nil {
			return nil, common.Wrap(fmt.Errorf("database.InitSQLDB: %w", err))
		}
	}
	historyDB := historydb.NewHistoryDB(dbRead, dbWrite)

	pool := prover.NewProversDataPool(cfg.Prover.PoolLimit)
	maintainer := prover.NewMaintainer(historyDB, pool, prover.MaintainerConfig{
		RoundsInterval: cfg.Prover.RoundsInterval.Duration,
		TreeDepth:      cfg.Prover.TreeDepth,
		ChunksPerBlock: cfg.Prover.ChunksPerBlock,
	})

	gin.SetMode(gin.ReleaseMode)
	server := gin.New()
	server.Use(gin.Recovery())
	if _, err := api.NewAPI(api.Config{
		Server: server,
		Pool:   pool,
	}); err != nil {
		return nil, common.Wrap(err)
	}
	apiServer := &http.Server{
		Addr:    cfg.API.Address,
		Handler: server,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.Metrics.Address,
		Handler: metricsMux,
	}

	return &Node{
		cfg:           cfg,
		dbWrite:       dbWrite,
		dbRead:        dbRead,
		historyDB:     historyDB,
		pool:          pool,
		maintainer:    maintainer,
		apiServer:     apiServer,
		metricsServer: metricsServer,
		panicNotify:   make(chan bool, 1),
	}, nil
}

// Start runs the maintainer worker and the HTTP servers, and blocks until
// one of them fails or the context is cancelled.
func (n *Node) Start(ctx context.Context) error {
	log.Infow("starting prover server",
		"api", n.cfg.API.Address, "metrics", n.cfg.Metrics.Address)

	n.maintainer.Start(n.panicNotify)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := n.apiServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			return common.Wrap(err)
		}
		return nil
	})
	g.Go(func() error {
		if err := n.metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			return common.Wrap(err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-n.panicNotify:
			return common.Wrap(fmt.Errorf("maintainer worker terminated"))
		case <-ctx.Done():
			return nil
		}
	})

	err := g.Wait()
	n.Stop()
	return err
}

// Stop shuts the HTTP servers down and closes the database connections.
// The maintainer worker has no cancellation; it dies with the process.
func (n *Node) Stop() {
	log.Info("stopping prover server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := n.apiServer.Shutdown(ctx); err != nil {
		log.Errorw("api server shutdown", "err", err)
	}
	if err := n.metricsServer.Shutdown(ctx); err != nil {
		log.Errorw("metrics server shutdown", "err", err)
	}
	if n.dbRead != n.dbWrite {
		if err := n.dbRead.Close(); err != nil {
			log.Errorw("closing read DB", "err", err)
		}
	}
	if err := n.dbWrite.Close(); err != nil {
		log.Errorw("closing write DB", "err", err)
	}
}
