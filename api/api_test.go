package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollup-prover/prover-server/common"
	"github.com/rollup-prover/prover-server/log"
	"github.com/rollup-prover/prover-server/prover"
)

func init() {
	log.Init("debug", []string{"stdout"})
	gin.SetMode(gin.TestMode)
}

func newTestAPI(t *testing.T) (*gin.Engine, *prover.ProversDataPool) {
	pool := prover.NewProversDataPool(10)
	server := gin.New()
	_, err := NewAPI(Config{Server: server, Pool: pool})
	require.NoError(t, err)
	return server, pool
}

func doRequest(server *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	server.ServeHTTP(w, req)
	return w
}

func TestNewAPIRequiresPool(t *testing.T) {
	_, err := NewAPI(Config{Server: gin.New()})
	assert.Error(t, err)
}

func TestGetWitness(t *testing.T) {
	server, pool := newTestAPI(t)

	w := doRequest(server, http.MethodGet, "/v1/witness/7")
	assert.Equal(t, http.StatusNotFound, w.Code)

	pool.MarkPrepared(7, &prover.ProverData{
		BlockNum: 7,
		OldRoot:  big.NewInt(1),
		NewRoot:  big.NewInt(2),
	})

	w = doRequest(server, http.MethodGet, "/v1/witness/7")
	require.Equal(t, http.StatusOK, w.Code)

	var pd prover.ProverData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pd))
	assert.Equal(t, common.BlockNum(7), pd.BlockNum)
	assert.Equal(t, big.NewInt(2), pd.NewRoot)

	// serving does not consume: the bundle stays until the prover
	// acknowledges it
	w = doRequest(server, http.MethodGet, "/v1/witness/7")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetWitnessBadBlockNum(t *testing.T) {
	server, _ := newTestAPI(t)

	for _, block := range []string{"abc", "-1", "1.5"} {
		w := doRequest(server, http.MethodGet, "/v1/witness/"+block)
		assert.Equal(t, http.StatusBadRequest, w.Code, "block %q", block)
	}
}

func TestCleanUpWitness(t *testing.T) {
	server, pool := newTestAPI(t)
	pool.MarkPrepared(7, &prover.ProverData{BlockNum: 7})

	w := doRequest(server, http.MethodDelete, "/v1/witness/7")
	assert.Equal(t, http.StatusOK, w.Code)
	_, ok := pool.Get(7)
	assert.False(t, ok)

	// idempotent
	w = doRequest(server, http.MethodDelete, "/v1/witness/7")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthCheck(t *testing.T) {
	server, _ := newTestAPI(t)

	w := doRequest(server, http.MethodGet, "/v1/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "UP")
}
