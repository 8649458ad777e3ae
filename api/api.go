// Package api exposes the consumer-facing surface of the witness pool: the
// prover client fetches prepared witness bundles and acknowledges them once
// consumed.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rollup-prover/prover-server/common"
	"github.com/rollup-prover/prover-server/metric"
	"github.com/rollup-prover/prover-server/prover"
)

// API serves prepared witness data to the proving backend
type API struct {
	pool *prover.ProversDataPool
}

// Config wraps the parameters needed to start the API
type Config struct {
	Server *gin.Engine
	Pool   *prover.ProversDataPool
}

// NewAPI sets the endpoints and the appropriate handlers, but doesn't start
// the server
func NewAPI(setup Config) (*API, error) {
	if setup.Pool == nil {
		return nil, common.Wrap(common.ErrInconsistentPool)
	}
	a := &API{pool: setup.Pool}

	v1 := setup.Server.Group("/v1")
	v1.GET("/witness/:block", a.getWitness)
	v1.DELETE("/witness/:block", a.cleanUpWitness)
	v1.GET("/health", a.healthCheck)

	return a, nil
}

func parseBlockNum(c *gin.Context) (common.BlockNum, bool) {
	blockNum, err := strconv.ParseInt(c.Param("block"), 10, 64)
	if err != nil || blockNum < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid block number"})
		return 0, false
	}
	return common.BlockNum(blockNum), true
}

// getWitness returns the prepared witness bundle of a block, 404 while it
// is not prepared yet
func (a *API) getWitness(c *gin.Context) {
	blockNum, ok := parseBlockNum(c)
	if !ok {
		return
	}
	pd, ok := a.pool.Get(blockNum)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "witness data not prepared"})
		return
	}
	metric.ServedWitnesses.Inc()
	c.JSON(http.StatusOK, pd)
}

// cleanUpWitness removes a consumed witness bundle from the pool.
// Idempotent: removing an absent block succeeds.
func (a *API) cleanUpWitness(c *gin.Context) {
	blockNum, ok := parseBlockNum(c)
	if !ok {
		return
	}
	a.pool.CleanUp(blockNum)
	c.Status(http.StatusOK)
}

func (a *API) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}
