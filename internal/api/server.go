package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"group0-recovery/internal/events"
	"group0-recovery/internal/logger"
	"group0-recovery/internal/metrics"
	"group0-recovery/internal/node"
	"group0-recovery/internal/recovery"
)

// Source はリカバリー実行の進捗を提供する
type Source interface {
	IsRunning() bool
	Phase() recovery.Phase
	Plan() recovery.Plan
	MemberStates() map[string]node.State
	Metrics() *metrics.Snapshot
	LastReport() *recovery.Report
}

// Ensure Orchestrator implements Source
var _ Source = (*recovery.Orchestrator)(nil)

// Server は進捗を公開するAPIサーバー
type Server struct {
	addr   string
	source Source
	bus    *events.Bus

	mu        sync.RWMutex
	wsClients map[*websocket.Conn]map[events.Event]bool // 接続時に再送済みでまだ配信されていないイベント

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(addr string, source Source, bus *events.Bus) *Server {
	return &Server{
		addr:      addr,
		source:    source,
		bus:       bus,
		wsClients: make(map[*websocket.Conn]map[events.Event]bool),
	}
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/members", s.handleMembers)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/events", s.handleEvents)

	// WebSocket
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始し、ctxが終わるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// バックグラウンドでイベント配信
	go s.broadcastLoop(ctx)

	logger.Info("", "API Server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Running     bool   `json:"running"`
	Phase       string `json:"phase,omitempty"`
	Leader      string `json:"leader,omitempty"`
	OldGroupID  string `json:"old_group_id,omitempty"`
	LiveMembers int    `json:"live_members"`
	DeadMembers int    `json:"dead_members"`
	Outcome     string `json:"outcome,omitempty"`
}

func (s *Server) status() StatusResponse {
	plan := s.source.Plan()
	resp := StatusResponse{
		Running:     s.source.IsRunning(),
		Phase:       string(s.source.Phase()),
		Leader:      plan.Leader.Address,
		OldGroupID:  string(plan.OldGroupID),
		LiveMembers: len(plan.Live),
		DeadMembers: len(plan.Dead),
	}
	if report := s.source.LastReport(); report != nil && !resp.Running {
		resp.Outcome = report.Outcome.String()
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.status())
}

// MemberInfo はメンバー情報
type MemberInfo struct {
	Address  string `json:"address"`
	HostID   string `json:"host_id"`
	Liveness string `json:"liveness"`
	Role     string `json:"role"`
	State    string `json:"state,omitempty"`
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	plan := s.source.Plan()
	states := s.source.MemberStates()

	members := make([]MemberInfo, 0, len(plan.Live)+len(plan.Dead))
	for _, group := range [][]node.Member{plan.Live, plan.Dead} {
		for _, m := range group {
			if m.Address == plan.Leader.Address {
				m = plan.Leader
			}
			info := MemberInfo{
				Address:  m.Address,
				HostID:   m.HostID,
				Liveness: m.Liveness.String(),
				Role:     m.Role.String(),
			}
			if st, ok := states[m.Address]; ok {
				info.State = st.String()
			}
			members = append(members, info)
		}
	}

	s.writeJSON(w, members)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := s.source.Metrics()
	if snapshot == nil {
		snapshot = &metrics.Snapshot{}
	}
	s.writeJSON(w, snapshot)
}

// FailureInfo は非致命的な失敗
type FailureInfo struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// ReportResponse はレポートレスポンス
type ReportResponse struct {
	Outcome      string            `json:"outcome"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	Duration     string            `json:"duration"`
	Plan         recovery.Plan     `json:"plan"`
	Failures     []FailureInfo     `json:"failures"`
	AbortPhase   string            `json:"abort_phase,omitempty"`
	AbortError   string            `json:"abort_error,omitempty"`
	MemberStates map[string]string `json:"member_states"`
	Metrics      metrics.Snapshot  `json:"metrics"`
	Text         string            `json:"text"`
}

// NewReportResponse はReportをJSON向けに変換する
func NewReportResponse(report *recovery.Report) ReportResponse {
	resp := ReportResponse{
		Outcome:      report.Outcome.String(),
		StartTime:    report.StartTime,
		EndTime:      report.EndTime,
		Duration:     report.Duration.Round(time.Millisecond).String(),
		Plan:         report.Plan,
		Failures:     []FailureInfo{},
		AbortPhase:   string(report.AbortPhase),
		MemberStates: make(map[string]string, len(report.MemberStates)),
		Metrics:      report.Metrics,
		Text:         report.String(),
	}
	if report.AbortErr != nil {
		resp.AbortError = report.AbortErr.Error()
	}
	for addr, st := range report.MemberStates {
		resp.MemberStates[addr] = st.String()
	}

	add := func(kind string, list []error) {
		for _, err := range list {
			resp.Failures = append(resp.Failures, FailureInfo{Kind: kind, Error: err.Error()})
		}
	}
	add("follower", report.FollowerTimeouts)
	add("removal", report.RemovalFailures)
	add("purge", report.PurgeFailures)
	add("marker", report.MarkerCleanupFailures)

	return resp
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report := s.source.LastReport()
	if report == nil {
		http.Error(w, "No report available yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, NewReportResponse(report))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	history := []events.Event{}
	if s.bus != nil {
		history = s.bus.History()
	}
	s.writeJSON(w, history)
}

// WebSocket handling
// 再送と登録を同じロックの中で行い、その間に発行されたイベントは
// broadcastLoopが送る。再送済みのイベントは二重に送らない
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	replayed := make(map[events.Event]bool)
	if s.bus != nil {
		for _, ev := range s.bus.History() {
			if err := websocket.JSON.Send(ws, message{Type: "event", Event: &ev}); err != nil {
				s.mu.Unlock()
				_ = ws.Close()
				return
			}
			replayed[ev] = true
		}
	}
	s.wsClients[ws] = replayed
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

// message はWebSocketで送るメッセージ
type message struct {
	Type   string          `json:"type"`
	Event  *events.Event   `json:"event,omitempty"`
	Status *StatusResponse `json:"status,omitempty"`
}

func (s *Server) broadcast(msg message) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for ws, replayed := range s.wsClients {
		if msg.Event != nil && replayed[*msg.Event] {
			delete(replayed, *msg.Event)
			continue
		}
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	var ch <-chan events.Event
	if s.bus != nil {
		ch = s.bus.Subscribe()
		defer s.bus.Unsubscribe(ch)
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(message{Type: "event", Event: &ev})
		case <-ticker.C:
			if !s.source.IsRunning() {
				continue
			}
			status := s.status()
			s.broadcast(message{Type: "status", Status: &status})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("", "Failed to encode JSON: %v", err)
	}
}
