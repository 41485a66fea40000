// Package server exposes the action surface and the multisig backend over
// HTTP for an agent runtime.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/ggonzalez94/chedda-agent/internal/actions"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/id"
	"github.com/ggonzalez94/chedda-agent/internal/logging"
	"github.com/ggonzalez94/chedda-agent/internal/metrics"
	"github.com/ggonzalez94/chedda-agent/internal/model"
	"github.com/ggonzalez94/chedda-agent/internal/schema"
	"github.com/ggonzalez94/chedda-agent/internal/storage"
	"github.com/google/uuid"
)

var log = logging.Logger("server")

const requestIDHeader = "X-Request-ID"

// Wallets resolves pair multisigs. *multisig.Orchestrator implements it.
type Wallets interface {
	Lookup(ctx context.Context, agent, user common.Address) (*storage.MultisigWallet, error)
	ResolveOrCreate(ctx context.Context, agentID string, agent, user common.Address) (*storage.MultisigWallet, error)
}

// Deps are the collaborators behind the routes. Wallets and Agents are
// optional; their routes answer 501 when unset.
type Deps struct {
	Network    id.Network
	Dispatcher *actions.Dispatcher
	Wallets    Wallets
	Agents     storage.AgentStore
	Timeout    time.Duration
}

type Server struct {
	deps   Deps
	engine *gin.Engine
	now    func() time.Time
}

func New(deps Deps) *Server {
	if deps.Timeout <= 0 {
		deps.Timeout = 2 * time.Minute
	}
	s := &Server{deps: deps, engine: gin.New(), now: time.Now}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.engine.Group("/api")
	api.GET("/health", s.health)
	api.GET("/actions", s.listActions)
	api.POST("/actions/:name", s.runAction)

	wallet := api.Group("/wallet")
	wallet.POST("/create", s.createWallet)
	wallet.POST("/get/multisig", s.getMultisig)

	agent := api.Group("/agent")
	agent.POST("/register", s.registerAgent)
	agent.GET("/:id", s.getAgent)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", addr, "network", s.deps.Network.Slug)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return clierr.Wrap(clierr.CodeUnavailable, "serve http", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Header(requestIDHeader, reqID)
		started := time.Now()
		c.Next()
		log.Desugar().Debug("request", logging.Fields(
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(started),
			"request_id", reqID,
		)...)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "network": s.deps.Network.Slug})
}

func (s *Server) listActions(c *gin.Context) {
	tools, err := schema.Tools(s.deps.Dispatcher.List())
	if err != nil {
		s.fail(c, clierr.Wrap(clierr.CodeInternal, "build action schema", err))
		return
	}
	s.ok(c, http.StatusOK, tools)
}

func (s *Server) runAction(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.fail(c, clierr.Wrap(clierr.CodeUsage, "read request body", err))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.deps.Timeout)
	defer cancel()
	res, err := s.deps.Dispatcher.RunJSON(ctx, c.Param("name"), body)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, res)
}

type walletRequest struct {
	AgentID      string `json:"agentId"`
	AgentAddress string `json:"agentAddress"`
	UserAddress  string `json:"userAddress"`
}

type walletResponse struct {
	SafeAddress     string   `json:"safeAddress"`
	TransactionHash string   `json:"transactionHash,omitempty"`
	Owners          []string `json:"owners"`
	Threshold       int      `json:"threshold"`
	AgentID         string   `json:"agentId,omitempty"`
	Network         string   `json:"network"`
}

func toWalletResponse(m *storage.MultisigWallet) walletResponse {
	owners := make([]string, 0, len(m.Owners))
	for _, o := range m.Owners {
		owners = append(owners, o.Hex())
	}
	return walletResponse{
		SafeAddress:     m.Address.Hex(),
		TransactionHash: m.DeploymentTxHash,
		Owners:          owners,
		Threshold:       m.Threshold,
		AgentID:         m.AgentID,
		Network:         m.Network,
	}
}

func (r walletRequest) pair() (common.Address, common.Address, error) {
	agent, err := id.ValidateAddress(r.AgentAddress)
	if err != nil {
		return common.Address{}, common.Address{}, clierr.Wrap(clierr.CodeInvalidAddress, "agentAddress", err)
	}
	user, err := id.ValidateAddress(r.UserAddress)
	if err != nil {
		return common.Address{}, common.Address{}, clierr.Wrap(clierr.CodeInvalidAddress, "userAddress", err)
	}
	return agent, user, nil
}

func (s *Server) createWallet(c *gin.Context) {
	if s.deps.Wallets == nil {
		s.fail(c, clierr.New(clierr.CodeUnsupported, "multisig custody is not configured"))
		return
	}
	var req walletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, clierr.Wrap(clierr.CodeUsage, "decode wallet request", err))
		return
	}
	agent, user, err := req.pair()
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.deps.Timeout)
	defer cancel()
	m, err := s.deps.Wallets.ResolveOrCreate(ctx, strings.TrimSpace(req.AgentID), agent, user)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, toWalletResponse(m))
}

func (s *Server) getMultisig(c *gin.Context) {
	if s.deps.Wallets == nil {
		s.fail(c, clierr.New(clierr.CodeUnsupported, "multisig custody is not configured"))
		return
	}
	var req walletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, clierr.Wrap(clierr.CodeUsage, "decode wallet request", err))
		return
	}
	agent, user, err := req.pair()
	if err != nil {
		s.fail(c, err)
		return
	}
	m, err := s.deps.Wallets.Lookup(c.Request.Context(), agent, user)
	if errors.Is(err, storage.ErrNotFound) {
		s.failStatus(c, http.StatusNotFound, clierr.New(clierr.CodeUsage, "Multisig not found"))
		return
	}
	if err != nil {
		s.fail(c, clierr.Wrap(clierr.CodeUnavailable, "look up multisig", err))
		return
	}
	s.ok(c, http.StatusOK, toWalletResponse(m))
}

type agentRequest struct {
	ID      string `json:"agent_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (s *Server) registerAgent(c *gin.Context) {
	if s.deps.Agents == nil {
		s.fail(c, clierr.New(clierr.CodeUnsupported, "agent registry is not configured"))
		return
	}
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, clierr.Wrap(clierr.CodeUsage, "decode agent request", err))
		return
	}
	addr, err := id.ValidateAddress(req.Address)
	if err != nil {
		s.fail(c, clierr.Wrap(clierr.CodeInvalidAddress, "address", err))
		return
	}
	agent := &storage.Agent{
		ID:        strings.TrimSpace(req.ID),
		Name:      strings.TrimSpace(req.Name),
		Address:   addr,
		CreatedAt: s.now().UTC(),
	}
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	err = s.deps.Agents.Register(c.Request.Context(), agent)
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		s.failStatus(c, http.StatusBadRequest, clierr.New(clierr.CodeUsage, "Agent already exists"))
		return
	case errors.Is(err, storage.ErrInvalidInput):
		s.fail(c, clierr.Wrap(clierr.CodeUsage, "register agent", err))
		return
	case err != nil:
		s.fail(c, clierr.Wrap(clierr.CodeUnavailable, "register agent", err))
		return
	}
	s.ok(c, http.StatusCreated, agent)
}

func (s *Server) getAgent(c *gin.Context) {
	if s.deps.Agents == nil {
		s.fail(c, clierr.New(clierr.CodeUnsupported, "agent registry is not configured"))
		return
	}
	agent, err := s.deps.Agents.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		s.failStatus(c, http.StatusNotFound, clierr.New(clierr.CodeUsage, "Agent not found"))
		return
	}
	if err != nil {
		s.fail(c, clierr.Wrap(clierr.CodeUnavailable, "get agent", err))
		return
	}
	s.ok(c, http.StatusOK, agent)
}

func (s *Server) ok(c *gin.Context, status int, data any) {
	c.JSON(status, model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    data,
		Meta:    s.meta(c),
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	s.failStatus(c, httpStatus(err), err)
}

func (s *Server) failStatus(c *gin.Context, status int, err error) {
	code := clierr.ExitCode(err)
	if status >= http.StatusInternalServerError {
		log.Warnw("request failed", "path", c.FullPath(), "status", status, "err", err)
	}
	c.JSON(status, model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Error: &model.ErrorBody{
			Code:    code,
			Type:    clierr.TypeName(clierr.Code(code)),
			Message: err.Error(),
		},
		Meta: s.meta(c),
	})
}

func (s *Server) meta(c *gin.Context) model.EnvelopeMeta {
	return model.EnvelopeMeta{
		RequestID: c.GetString(requestIDHeader),
		Timestamp: s.now().UTC(),
		Command:   c.FullPath(),
		Network:   s.deps.Network.Slug,
	}
}

func httpStatus(err error) int {
	cErr, ok := clierr.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch cErr.Code {
	case clierr.CodeUsage, clierr.CodeInvalidAddress, clierr.CodeInvalidAmount, clierr.CodeEncoding:
		return http.StatusBadRequest
	case clierr.CodeUnknownVault, clierr.CodeUnknownToken:
		return http.StatusNotFound
	case clierr.CodeBlocked:
		return http.StatusForbidden
	case clierr.CodeUnsupported:
		return http.StatusNotImplemented
	case clierr.CodeReverted:
		return http.StatusUnprocessableEntity
	case clierr.CodeReceiptTimeout:
		return http.StatusGatewayTimeout
	case clierr.CodeChainCall, clierr.CodeUnavailable, clierr.CodeRateLimited:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
