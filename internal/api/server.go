package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/journal"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/observability/metrics"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/transport"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/pkg/logger"
)

const (
	defaultExchangeLimit = 20
	maxExchangeLimit     = 200
	maxBodyBytes         = 1 << 20
)

// ChatRequest 是 POST /chat 的请求体。
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse 是 POST /chat 的响应体。
type ChatResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ChatFunc 处理一次 REST 对话，专职 Agent 与协调者各自提供实现。
type ChatFunc func(ctx context.Context, message string) ChatResponse

// Dispatcher 接收对端通过 HTTP 投递的信封。
type Dispatcher interface {
	Dispatch(ctx context.Context, env transport.Envelope) error
}

// Info 描述健康检查中返回的 Agent 身份。
type Info struct {
	Name string
	Role string
}

// Option 定义可选的 Server 配置。
type Option func(*Server)

// WithDispatcher 启用 POST /submit。
func WithDispatcher(d Dispatcher) Option {
	return func(s *Server) { s.dispatcher = d }
}

// WithJournal 启用 GET /api/v1/exchanges。
func WithJournal(store journal.Store) Option {
	return func(s *Server) { s.journal = store }
}

// WithMetrics 启用请求指标与 GET /metrics。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr       string
	info       Info
	chat       ChatFunc
	dispatcher Dispatcher
	journal    journal.Store
	metrics    *metrics.Metrics
	baseCtx    context.Context
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, info Info, chat ChatFunc, opts ...Option) *Server {
	s := &Server{addr: addr, info: info, chat: chat, baseCtx: context.Background()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回注册了全部路由的 HTTP 处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/chat", s.instrument("chat", s.handleChat))
	mux.Handle("/submit", s.instrument("submit", s.handleSubmit))
	mux.Handle("/healthz", s.instrument("healthz", s.handleHealth))
	mux.Handle("/api/v1/exchanges", s.instrument("exchanges", s.handleExchanges))
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Named("api").Info("REST server listening", "address", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.chat == nil {
		http.Error(w, "Agent 未初始化", http.StatusServiceUnavailable)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	logger.Named("api").Info("received message", "message", req.Message)

	writeJSON(w, http.StatusOK, s.chat(r.Context(), req.Message))
}

// handleSubmit 接收对端投递的信封，异步交给本地 Mailbox 处理。
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.dispatcher == nil {
		http.Error(w, "未启用信封投递", http.StatusServiceUnavailable)
		return
	}

	var env transport.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&env); err != nil {
		http.Error(w, "信封解析失败", http.StatusBadRequest)
		return
	}
	if env.ID == "" || env.Kind == "" {
		http.Error(w, "信封缺少 id 或 kind", http.StatusBadRequest)
		return
	}

	go func() {
		if err := s.dispatcher.Dispatch(s.baseCtx, env); err != nil {
			logger.Named("api").Warn("dispatch envelope failed", "id", env.ID, "kind", env.Kind, "sender", env.Sender, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "id": env.ID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "agent": s.info.Name, "role": s.info.Role})
}

func (s *Server) handleExchanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	limit := defaultExchangeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit 必须为正整数", http.StatusBadRequest)
			return
		}
		limit = min(parsed, maxExchangeLimit)
	}

	exchanges := []journal.Exchange{}
	if s.journal != nil {
		records, err := s.journal.Latest(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records != nil {
			exchanges = records
		}
	}
	writeJSON(w, http.StatusOK, exchanges)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 记录每个处理器的请求数与耗时。
func (s *Server) instrument(name string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
