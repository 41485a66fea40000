package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/ggonzalez94/chedda-agent/internal/actions"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/id"
	"github.com/ggonzalez94/chedda-agent/internal/storage"
	"github.com/ggonzalez94/chedda-agent/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

const (
	agentHex = "0x000000000000000000000000000000000000A9e7"
	userHex  = "0x1111111111111111111111111111111111111111"
)

type fakeWallets struct {
	wallets map[string]*storage.MultisigWallet
	creates int
	err     error
}

func (f *fakeWallets) key(agent, user common.Address) string { return agent.Hex() + user.Hex() }

func (f *fakeWallets) Lookup(_ context.Context, agent, user common.Address) (*storage.MultisigWallet, error) {
	m, ok := f.wallets[f.key(agent, user)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return m, nil
}

func (f *fakeWallets) ResolveOrCreate(_ context.Context, agentID string, agent, user common.Address) (*storage.MultisigWallet, error) {
	if f.err != nil {
		return nil, f.err
	}
	if m, ok := f.wallets[f.key(agent, user)]; ok {
		return m, nil
	}
	f.creates++
	m := &storage.MultisigWallet{
		Network:          "base-sepolia",
		Address:          common.HexToAddress("0x5afe000000000000000000000000000000000001"),
		AgentAddress:     agent,
		UserAddress:      user,
		Owners:           []common.Address{common.HexToAddress("0xc0"), agent, user},
		Threshold:        3,
		AgentID:          agentID,
		DeploymentTxHash: "0xdeadbeef",
	}
	f.wallets[f.key(agent, user)] = m
	return m, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
		Network   string `json:"network"`
	} `json:"meta"`
}

func newTestServer(t *testing.T, wallets Wallets) *Server {
	t.Helper()
	network, err := id.ParseNetwork("base-sepolia")
	require.NoError(t, err)
	return New(Deps{
		Network:    network,
		Dispatcher: actions.New(actions.Deps{Network: network}),
		Wallets:    wallets,
		Agents:     memory.New(),
	})
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(path, "/api/") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","network":"base-sepolia"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/actions", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "req-42", env.Meta.RequestID)
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
}

func TestListActions(t *testing.T) {
	s := newTestServer(t, nil)
	rec, env := do(t, s, http.MethodGet, "/api/actions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tools []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tools))
	assert.Len(t, tools, 13)
}

func TestRunActionReturnsCalldata(t *testing.T) {
	s := newTestServer(t, nil)
	rec, env := do(t, s, http.MethodPost, "/api/actions/borrow_from_vault", `{"category":"eth-defi","amount":"10"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Status string `json:"status"`
		Data   struct {
			Description string `json:"description"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "encoded", res.Status)
	assert.Equal(t, "Borrow 10 USDC from eth-defi vault", res.Data.Description)
	assert.Equal(t, "base-sepolia", env.Meta.Network)
}

func TestRunActionErrorStatuses(t *testing.T) {
	s := newTestServer(t, nil)

	rec, env := do(t, s, http.MethodPost, "/api/actions/launch_rocket", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "usage_error", env.Error.Type)

	rec, _ = do(t, s, http.MethodPost, "/api/actions/repay_to_vault", `{"category":"moon","amount":"1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/actions/transfer", `{"amount":"1","contractAddress":"`+userHex+`","destination":"`+userHex+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, env = do(t, s, http.MethodPost, "/api/actions/borrow_from_vault", `{"category":"eth-defi","amount":"-1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestCreateWalletIsIdempotent(t *testing.T) {
	wallets := &fakeWallets{wallets: map[string]*storage.MultisigWallet{}}
	s := newTestServer(t, wallets)
	body := `{"agentId":"agent-1","agentAddress":"` + agentHex + `","userAddress":"` + userHex + `"}`

	for i := 0; i < 2; i++ {
		rec, env := do(t, s, http.MethodPost, "/api/wallet/create", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var data walletResponse
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, common.HexToAddress("0x5afe000000000000000000000000000000000001").Hex(), data.SafeAddress)
		assert.Equal(t, 3, data.Threshold)
		assert.Equal(t, "agent-1", data.AgentID)
	}
	assert.Equal(t, 1, wallets.creates)

	rec, env := do(t, s, http.MethodPost, "/api/wallet/get/multisig", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "0xdeadbeef")
}

func TestCreateWalletRejectsBadAddresses(t *testing.T) {
	s := newTestServer(t, &fakeWallets{wallets: map[string]*storage.MultisigWallet{}})
	rec, env := do(t, s, http.MethodPost, "/api/wallet/create", `{"agentAddress":"0x123","userAddress":"`+userHex+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "agentAddress")
}

func TestCreateWalletFailureIsReported(t *testing.T) {
	wallets := &fakeWallets{
		wallets: map[string]*storage.MultisigWallet{},
		err:     clierr.Wrap(clierr.CodeMultisigCreation, "deploy multisig", errors.New("insufficient funds")),
	}
	s := newTestServer(t, wallets)
	rec, env := do(t, s, http.MethodPost, "/api/wallet/create", `{"agentAddress":"`+agentHex+`","userAddress":"`+userHex+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error.Message, "insufficient funds")
}

func TestGetMultisigNotFound(t *testing.T) {
	s := newTestServer(t, &fakeWallets{wallets: map[string]*storage.MultisigWallet{}})
	rec, env := do(t, s, http.MethodPost, "/api/wallet/get/multisig", `{"agentAddress":"`+agentHex+`","userAddress":"`+userHex+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Multisig not found", env.Error.Message)
}

func TestWalletRoutesWithoutCustody(t *testing.T) {
	s := newTestServer(t, nil)
	rec, _ := do(t, s, http.MethodPost, "/api/wallet/create", `{}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestAgentRegistry(t *testing.T) {
	s := newTestServer(t, nil)

	rec, env := do(t, s, http.MethodPost, "/api/agent/register", `{"agent_id":"agent-1","name":"Cheddar","address":"`+agentHex+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	rec, env = do(t, s, http.MethodPost, "/api/agent/register", `{"agent_id":"agent-1","name":"Cheddar","address":"`+agentHex+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Agent already exists", env.Error.Message)

	rec, env = do(t, s, http.MethodGet, "/api/agent/agent-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var agent storage.Agent
	require.NoError(t, json.Unmarshal(env.Data, &agent))
	assert.Equal(t, "Cheddar", agent.Name)
	assert.Equal(t, common.HexToAddress(agentHex), agent.Address)

	rec, env = do(t, s, http.MethodGet, "/api/agent/nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Agent not found", env.Error.Message)
}

func TestRegisterAgentGeneratesID(t *testing.T) {
	s := newTestServer(t, nil)
	rec, env := do(t, s, http.MethodPost, "/api/agent/register", `{"name":"anon","address":"`+agentHex+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var agent storage.Agent
	require.NoError(t, json.Unmarshal(env.Data, &agent))
	assert.Len(t, agent.ID, 36)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/api/actions/borrow_from_vault", `{"category":"eth-defi","amount":"1"}`)
	rec, _ := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chedda_")
}
