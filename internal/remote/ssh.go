package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"group0-recovery/internal/logger"
)

// SSHConfig はSSH接続の設定
type SSHConfig struct {
	User           string        // ログインユーザー
	KeyPath        string        // 秘密鍵ファイル（空ならPasswordを使用）
	Password       string        // パスワード認証
	Port           int           // ポート（0で22）
	KnownHostsPath string        // known_hostsファイル（空ならホスト鍵を検証しない）
	DialTimeout    time.Duration // 接続タイムアウト
}

// DefaultSSHConfig はデフォルト設定を返す
func DefaultSSHConfig() SSHConfig {
	return SSHConfig{
		Port:        22,
		DialTimeout: 10 * time.Second,
	}
}

// SSH はSSH経由でコマンドを実行するExecutor
// 接続はExecuteごとに確立し、戻る前に必ず閉じる
type SSH struct {
	config       SSHConfig
	clientConfig *ssh.ClientConfig
}

// Ensure SSH implements Executor
var _ Executor = (*SSH)(nil)

// NewSSH は認証情報を読み込んでSSH Executorを作成する
func NewSSH(config SSHConfig) (*SSH, error) {
	if config.User == "" {
		return nil, errors.New("ssh user is required")
	}
	if config.Port == 0 {
		config.Port = 22
	}

	var auth []ssh.AuthMethod
	if config.KeyPath != "" {
		pem, err := os.ReadFile(config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if config.Password != "" {
		auth = append(auth, ssh.Password(config.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh key or password is required")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if config.KnownHostsPath != "" {
		cb, err := knownhosts.New(config.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		logger.Warn("", "SSH host key verification disabled (no known_hosts configured)")
	}

	return &SSH{
		config: config,
		clientConfig: &ssh.ClientConfig{
			User:            config.User,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         config.DialTimeout,
		},
	}, nil
}

// Execute はaddr上でcommandを実行する
func (s *SSH) Execute(ctx context.Context, addr, command string) (Result, error) {
	target := net.JoinHostPort(addr, strconv.Itoa(s.config.Port))

	dialer := net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return Result{}, fmt.Errorf("failed to dial %s: %w", target, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, target, s.clientConfig)
	if err != nil {
		_ = conn.Close()
		return Result{}, fmt.Errorf("ssh handshake with %s failed: %w", target, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open ssh session on %s: %w", target, err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	logger.Debug(addr, "ssh: %s", command)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		// セッションを閉じてRunを終了させる
		_ = session.Close()
		_ = client.Close()
		<-done
		return Result{}, ctx.Err()
	case err = <-done:
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitStatus = exitErr.ExitStatus()
			return res, nil
		}
		return res, fmt.Errorf("ssh command on %s failed: %w", target, err)
	}
	return res, nil
}
