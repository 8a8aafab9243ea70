// Package main is the entry point for group0-recovery.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"group0-recovery/internal/api"
	"group0-recovery/internal/config"
	"group0-recovery/internal/events"
	"group0-recovery/internal/logger"
	"group0-recovery/internal/nodetool"
	"group0-recovery/internal/query"
	"group0-recovery/internal/recovery"
	"group0-recovery/internal/remote"
	"group0-recovery/internal/sim"
)

var (
	version = "dev"
)

// 終了コード
const (
	exitOK      = 0
	exitFailed  = 1
	exitInvalid = 2
)

// stringList はカンマ区切りまたは複数回指定できるフラグ
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*s = append(*s, v)
		}
	}
	return nil
}

// options はコマンドラインフラグ
type options struct {
	configFile      string
	nodes           stringList
	user            string
	key             string
	password        string
	cqlUser         string
	cqlPassword     string
	leaderTimeout   time.Duration
	followerTimeout time.Duration
	logLevel        string
	serveAddr       string
	simulate        string
	listPresets     bool
	showVersion     bool
	yes             bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var opts options

	fs := flag.NewFlagSet("group0-recovery", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configFile, "config", "", "設定ファイルパス (YAML/JSON)")
	fs.Var(&opts.nodes, "node", "接続先メンバーのアドレス (複数指定またはカンマ区切り)")
	fs.StringVar(&opts.user, "user", "", "SSHユーザー")
	fs.StringVar(&opts.key, "key", "", "SSH秘密鍵ファイル")
	fs.StringVar(&opts.password, "password", "", "SSHパスワード")
	fs.StringVar(&opts.cqlUser, "cql-user", "", "CQLユーザー")
	fs.StringVar(&opts.cqlPassword, "cql-password", "", "CQLパスワード")
	fs.DurationVar(&opts.leaderTimeout, "leader-timeout", 0, "リーダー起動待ちのタイムアウト (例: 5m)")
	fs.DurationVar(&opts.followerTimeout, "follower-timeout", 0, "フォロワー起動待ちのタイムアウト (例: 5m)")
	fs.StringVar(&opts.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	fs.StringVar(&opts.serveAddr, "serve", "", "進捗APIを公開するアドレス (例: :8080)")
	fs.StringVar(&opts.simulate, "simulate", "", "シミュレーションクラスタのプリセット名")
	fs.BoolVar(&opts.listPresets, "list-presets", false, "利用可能なプリセットを表示")
	fs.BoolVar(&opts.showVersion, "version", false, "バージョンを表示")
	fs.BoolVar(&opts.yes, "yes", false, "確認プロンプトを省略")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `group0-recovery - Group 0 disaster recovery for a Raft-based cluster

Usage:
  group0-recovery [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(stderr, `
Examples:
  # 設定ファイルから実行
  group0-recovery --config recovery.yaml

  # フラグで接続先と認証情報を指定
  group0-recovery --node 10.0.0.1,10.0.0.2 --user scylla --key ~/.ssh/id_ed25519

  # シミュレーションクラスタで手順を確認
  group0-recovery --simulate entry-loss --yes

  # 進捗をWeb APIで公開
  group0-recovery --config recovery.yaml --serve :8080
`)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return &opts, nil
}

// buildFileConfig は設定ファイルを読み込み、フラグで上書きする
func buildFileConfig(opts *options) (*config.FileConfig, error) {
	fileConfig := &config.FileConfig{}
	if opts.configFile != "" {
		loaded, err := config.LoadFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
		fileConfig = loaded
	}

	// フラグでオーバーライド
	if len(opts.nodes) > 0 {
		fileConfig.Cluster.ContactPoints = opts.nodes
	}
	if opts.user != "" {
		fileConfig.SSH.User = opts.user
	}
	if opts.key != "" {
		fileConfig.SSH.Key = opts.key
	}
	if opts.password != "" {
		fileConfig.SSH.Password = opts.password
	}
	if opts.cqlUser != "" {
		fileConfig.CQL.Username = opts.cqlUser
	}
	if opts.cqlPassword != "" {
		fileConfig.CQL.Password = opts.cqlPassword
	}
	if opts.leaderTimeout > 0 {
		fileConfig.Recovery.LeaderTimeout = opts.leaderTimeout.String()
	}
	if opts.followerTimeout > 0 {
		fileConfig.Recovery.FollowerTimeout = opts.followerTimeout.String()
	}
	if opts.logLevel != "" {
		fileConfig.LogLevel = opts.logLevel
	}

	return fileConfig, nil
}

// setup は実行に必要な依存を組み立てる
type setup struct {
	orchestrator *recovery.Orchestrator
	contacts     []string
	simulated    *sim.Cluster
}

func newRealSetup(fileConfig *config.FileConfig) (*setup, error) {
	if err := fileConfig.Validate(); err != nil {
		return nil, fmt.Errorf("設定検証エラー: %w", err)
	}

	orchestratorConfig, err := fileConfig.ToOrchestratorConfig()
	if err != nil {
		return nil, err
	}
	sshConfig, err := fileConfig.ToSSHConfig()
	if err != nil {
		return nil, err
	}
	cqlConfig, err := fileConfig.ToCQLConfig()
	if err != nil {
		return nil, err
	}

	exec, err := remote.NewSSH(sshConfig)
	if err != nil {
		return nil, err
	}
	querier := query.NewCQL(cqlConfig)
	admin := nodetool.New(exec, fileConfig.Nodetool(), fileConfig.Cluster.ContactPoints)

	return &setup{
		orchestrator: recovery.New(exec, querier, admin, orchestratorConfig),
		contacts:     fileConfig.Cluster.ContactPoints,
	}, nil
}

func newSimSetup(name string, opts *options) (*setup, error) {
	preset, ok := sim.GetPreset(name)
	if !ok {
		return nil, fmt.Errorf("不明なプリセット: %s (利用可能: %v)", name, sim.ListPresets())
	}

	c := preset.Build()

	// シミュレーションでは短いタイムアウトを使う
	orchestratorConfig := recovery.DefaultConfig()
	orchestratorConfig.LeaderTimeout = 5 * time.Second
	orchestratorConfig.FollowerTimeout = 3 * time.Second
	orchestratorConfig.Lifecycle.PollInterval = 100 * time.Millisecond
	if opts.leaderTimeout > 0 {
		orchestratorConfig.LeaderTimeout = opts.leaderTimeout
	}
	if opts.followerTimeout > 0 {
		orchestratorConfig.FollowerTimeout = opts.followerTimeout
	}

	admin := nodetool.New(c.Executor(), "nodetool", c.Contacts())
	return &setup{
		orchestrator: recovery.New(c.Executor(), c.Querier(), admin, orchestratorConfig),
		contacts:     c.Contacts(),
		simulated:    c,
	}, nil
}

// confirm は破壊的な操作の前にユーザーの確認を取る
func confirm(stdin io.Reader, stdout io.Writer, contacts []string) bool {
	fmt.Fprintln(stdout, "WARNING: group 0 recovery restarts every live member and permanently")
	fmt.Fprintln(stdout, "removes dead members from the cluster.")
	fmt.Fprintf(stdout, "Contact points: %s\n", strings.Join(contacts, ", "))
	fmt.Fprint(stdout, "Continue? [y/N]: ")

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "引数エラー: %v\n", err)
		return exitInvalid
	}

	// バージョン表示
	if opts.showVersion {
		fmt.Fprintf(stdout, "group0-recovery version %s\n", version)
		return exitOK
	}

	// プリセット一覧表示
	if opts.listPresets {
		printPresets(stdout)
		return exitOK
	}

	fileConfig, err := buildFileConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "設定エラー: %v\n", err)
		return exitInvalid
	}
	level, err := fileConfig.Level()
	if err != nil {
		fmt.Fprintf(stderr, "設定エラー: %v\n", err)
		return exitInvalid
	}
	logger.SetLevel(level)

	var s *setup
	if opts.simulate != "" {
		s, err = newSimSetup(opts.simulate, opts)
	} else {
		s, err = newRealSetup(fileConfig)
	}
	if err != nil {
		fmt.Fprintf(stderr, "設定エラー: %v\n", err)
		return exitInvalid
	}

	if !opts.yes && !confirm(stdin, stdout, s.contacts) {
		fmt.Fprintln(stdout, "Aborted.")
		return exitFailed
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "\n中断シグナルを受信、リカバリーを中断中...")
			cancel()
		case <-ctx.Done():
		}
	}()

	bus := events.NewBus()
	defer bus.Close()
	s.orchestrator.SetEventBus(bus)

	serverDone := make(chan struct{})
	if opts.serveAddr != "" {
		server := api.NewServer(opts.serveAddr, s.orchestrator, bus)
		go func() {
			defer close(serverDone)
			if err := server.Start(ctx); err != nil {
				logger.Error("", "サーバーエラー: %v", err)
			}
		}()
	} else {
		close(serverDone)
	}

	report, err := s.orchestrator.Run(ctx)
	if report != nil {
		fmt.Fprintln(stdout, report.String())
	}
	if s.simulated != nil {
		for _, line := range s.simulated.Summary() {
			fmt.Fprintln(stdout, line)
		}
	}

	// レポート出力後もCtrl+Cまで進捗APIを公開し続ける
	if opts.serveAddr != "" && ctx.Err() == nil {
		fmt.Fprintf(stdout, "Serving results on http://%s, press Ctrl+C to stop\n", opts.serveAddr)
		<-serverDone
	}
	cancel()

	if err != nil {
		logger.Error("", "%v", err)
		return exitFailed
	}
	return exitOK
}

// printPresets は利用可能なプリセットを表示する
func printPresets(w io.Writer) {
	fmt.Fprintln(w, "利用可能なシミュレーションプリセット:")
	fmt.Fprintln(w)

	for _, name := range sim.ListPresets() {
		p, _ := sim.GetPreset(name)
		fmt.Fprintf(w, "  %-18s %s\n", p.Name, p.Description)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "使用例: group0-recovery --simulate entry-loss --yes")
}
