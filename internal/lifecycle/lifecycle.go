package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"group0-recovery/internal/errs"
	"group0-recovery/internal/events"
	"group0-recovery/internal/logger"
	"group0-recovery/internal/metrics"
	"group0-recovery/internal/node"
	"group0-recovery/internal/poll"
	"group0-recovery/internal/query"
	"group0-recovery/internal/remote"
)

// Config はメンバー操作に使うコマンドとパスの設定
type Config struct {
	StopCommand   string
	StartCommand  string
	MarkerPath    string        // リカバリーマーカーの書き込み先
	PollInterval time.Duration // Ready確認の間隔
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		StopCommand:   "sudo systemctl stop scylla-server",
		StartCommand:  "sudo systemctl start scylla-server",
		MarkerPath:    "/etc/scylla.d/recovery.yaml",
		PollInterval: 1 * time.Second,
	}
}

// Marker は起動時にリカバリーモードへ入るための設定ファイルの内容
type Marker struct {
	RecoveryLeader string `yaml:"recovery_leader"`
}

// RenderMarker はleaderHostIDを指すマーカーをYAMLで返す
func RenderMarker(leaderHostID string) ([]byte, error) {
	if leaderHostID == "" {
		return nil, fmt.Errorf("leader host id is empty")
	}
	return yaml.Marshal(Marker{RecoveryLeader: leaderHostID})
}

// WriteMarkerCommand はcontentをpathへ書き込むコマンドラインを返す
func WriteMarkerCommand(path string, content []byte) string {
	body := strings.TrimRight(string(content), "\n")
	return fmt.Sprintf("echo %s | sudo tee %s > /dev/null", remote.Quote(body), remote.Quote(path))
}

// RemoveMarkerCommand はpathを削除するコマンドラインを返す
func RemoveMarkerCommand(path string) string {
	return "sudo rm -f " + remote.Quote(path)
}

// Controller はメンバーの停止・再設定・起動を行い、状態を追跡する
type Controller struct {
	exec    remote.Executor
	querier query.Querier
	config  Config
	bus     events.Publisher
	metrics *metrics.Metrics

	mu     sync.Mutex
	states map[string]node.State
	marked map[string]bool
}

// New は新しいControllerを作成する
func New(exec remote.Executor, querier query.Querier, config Config) *Controller {
	def := DefaultConfig()
	if config.StopCommand == "" {
		config.StopCommand = def.StopCommand
	}
	if config.StartCommand == "" {
		config.StartCommand = def.StartCommand
	}
	if config.MarkerPath == "" {
		config.MarkerPath = def.MarkerPath
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	return &Controller{
		exec:    exec,
		querier: querier,
		config:  config,
		states:  make(map[string]node.State),
		marked:  make(map[string]bool),
	}
}

// SetEventBus は状態遷移の通知先を設定する
func (c *Controller) SetEventBus(bus events.Publisher) {
	c.bus = bus
}

// SetMetrics は操作メトリクスの記録先を設定する
func (c *Controller) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// State はメンバーの現在の状態を返す（未操作のメンバーはRunning）
func (c *Controller) State(addr string) node.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[addr]
}

// States は操作したメンバー全員の状態のコピーを返す
func (c *Controller) States() map[string]node.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]node.State, len(c.states))
	for addr, s := range c.states {
		out[addr] = s
	}
	return out
}

func (c *Controller) setState(addr string, s node.State) {
	c.mu.Lock()
	c.setStateLocked(addr, s)
	c.mu.Unlock()
}

func (c *Controller) setStateLocked(addr string, s node.State) {
	prev := c.states[addr]
	c.states[addr] = s
	logger.Debug(addr, "State %s -> %s", prev, s)
	events.Publish(c.bus, events.NewMemberStateEvent(addr, s.String()))
}

// Stop はメンバーを停止する
// 既に停止済みのメンバーに対しては何もしない
func (c *Controller) Stop(ctx context.Context, m node.Member) error {
	c.mu.Lock()
	switch s := c.states[m.Address]; s {
	case node.StateStopping, node.StateStopped, node.StateReconfiguring:
		c.mu.Unlock()
		logger.Debug(m.Address, "Already %s, skipping stop", s)
		return nil
	}
	c.setStateLocked(m.Address, node.StateStopping)
	c.mu.Unlock()

	logger.Info(m.Address, "Stopping")
	start := time.Now()
	_, err := remote.Run(ctx, c.exec, m.Address, c.config.StopCommand)
	c.metrics.Observe("stop", start, err)
	if err != nil {
		c.setState(m.Address, node.StateFailed)
		return errs.Member("stop", m.Address, errs.ErrStopFailed, err)
	}

	c.mu.Lock()
	c.setStateLocked(m.Address, node.StateStopped)
	if c.marked[m.Address] {
		c.setStateLocked(m.Address, node.StateReconfiguring)
	}
	c.mu.Unlock()
	return nil
}

// WriteRecoveryMarker はleaderHostIDをリーダーとするマーカーをメンバーに書き込む
// 停止済みのメンバーはReconfiguringに遷移する
func (c *Controller) WriteRecoveryMarker(ctx context.Context, m node.Member, leaderHostID string) error {
	content, err := RenderMarker(leaderHostID)
	if err != nil {
		return errs.Member("write-marker", m.Address, errs.ErrConfigWriteFailed, err)
	}

	start := time.Now()
	_, err = remote.Run(ctx, c.exec, m.Address, WriteMarkerCommand(c.config.MarkerPath, content))
	c.metrics.Observe("write-marker", start, err)
	if err != nil {
		return errs.Member("write-marker", m.Address, errs.ErrConfigWriteFailed, err)
	}

	c.mu.Lock()
	c.marked[m.Address] = true
	if c.states[m.Address] == node.StateStopped {
		c.setStateLocked(m.Address, node.StateReconfiguring)
	}
	c.mu.Unlock()

	logger.Info(m.Address, "Recovery marker written to %s (leader %s)", c.config.MarkerPath, leaderHostID)
	return nil
}

// RemoveMarker はメンバーからマーカーを削除する
func (c *Controller) RemoveMarker(ctx context.Context, m node.Member) error {
	start := time.Now()
	_, err := remote.Run(ctx, c.exec, m.Address, RemoveMarkerCommand(c.config.MarkerPath))
	c.metrics.Observe("remove-marker", start, err)
	if err != nil {
		return errs.Member("remove-marker", m.Address, errs.ErrConfigWriteFailed, err)
	}

	c.mu.Lock()
	delete(c.marked, m.Address)
	c.mu.Unlock()

	logger.Debug(m.Address, "Recovery marker removed")
	return nil
}

// Start はメンバーの起動を要求する（Readyは待たない）
func (c *Controller) Start(ctx context.Context, m node.Member) error {
	c.setState(m.Address, node.StateStarting)

	logger.Info(m.Address, "Starting")
	start := time.Now()
	_, err := remote.Run(ctx, c.exec, m.Address, c.config.StartCommand)
	c.metrics.Observe("start", start, err)
	if err != nil {
		c.setState(m.Address, node.StateFailed)
		return errs.Member("start", m.Address, errs.ErrStartFailed, err)
	}
	return nil
}

// WaitReady はメンバーがクエリに応答するまでtimeoutを上限に待つ
// 期限切れはErrStartupTimeout、キャンセルはctx.Err()を返す
func (c *Controller) WaitReady(ctx context.Context, m node.Member, timeout time.Duration) error {
	check := func(ctx context.Context) error {
		return query.Exec(ctx, c.querier, query.SelectTopology, m.Address)
	}

	start := time.Now()
	res, err := poll.Until(ctx, poll.Config{Interval: c.config.PollInterval, Timeout: timeout}, check)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.metrics.Observe("wait-ready", start, err)
		c.setState(m.Address, node.StateFailed)
		logger.Error(m.Address, "Not ready after %v (%d checks): %v", timeout, res.Attempts, res.LastErr)
		return errs.Member("wait-ready", m.Address, errs.ErrStartupTimeout, err)
	}

	c.metrics.Observe("wait-ready", start, nil)
	c.setState(m.Address, node.StateReady)
	logger.Info(m.Address, "Ready after %v (%d checks)", res.Elapsed.Round(time.Millisecond), res.Attempts)
	return nil
}

// StartAndWait はStartとWaitReadyを続けて行う
// timeoutは起動コマンドとReady待ちの合計に対する上限で、起動コマンドが
// 戻らないまま期限を過ぎた場合もErrStartupTimeoutになる
func (c *Controller) StartAndWait(ctx context.Context, m node.Member, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	startCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := c.Start(startCtx, m); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(startCtx.Err(), context.DeadlineExceeded) {
			logger.Error(m.Address, "Start command did not return within %v", timeout)
			return errs.Member("start", m.Address, errs.ErrStartupTimeout, err)
		}
		return err
	}
	return c.WaitReady(ctx, m, time.Until(deadline))
}
