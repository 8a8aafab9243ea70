// Package remote defines how commands are executed on cluster members.
package remote

import (
	"context"
	"fmt"
	"strings"

	"group0-recovery/internal/errs"
)

// Result はリモートコマンドの実行結果
type Result struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

// Executor はメンバー上でコマンドを実行する
// コマンドが起動できた場合は終了コードに関わらずResultを返し、
// セッション確立などの失敗のみerrorとして返す
type Executor interface {
	Execute(ctx context.Context, addr, command string) (Result, error)
}

// ExecutorFunc は関数をExecutorとして扱うアダプタ
type ExecutorFunc func(ctx context.Context, addr, command string) (Result, error)

// Execute はfを呼び出す
func (f ExecutorFunc) Execute(ctx context.Context, addr, command string) (Result, error) {
	return f(ctx, addr, command)
}

// CommandError は非ゼロ終了したコマンドの診断情報
type CommandError struct {
	Addr       string
	Command    string
	ExitStatus int
	Stderr     string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q on %s exited with status %d", e.Command, e.Addr, e.ExitStatus)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Is はCommandErrorをerrs.ErrTransportとして扱えるようにする
func (e *CommandError) Is(target error) bool {
	return target == errs.ErrTransport
}

// Run はコマンドを実行し、トランスポートエラーと非ゼロ終了を同じ失敗として扱う
func Run(ctx context.Context, exec Executor, addr, command string) (Result, error) {
	res, err := exec.Execute(ctx, addr, command)
	if err != nil {
		return res, fmt.Errorf("%w: %s on %s: %w", errs.ErrTransport, command, addr, err)
	}
	if res.ExitStatus != 0 {
		return res, &CommandError{
			Addr:       addr,
			Command:    command,
			ExitStatus: res.ExitStatus,
			Stderr:     res.Stderr,
		}
	}
	return res, nil
}

// Quote はシェルに渡す文字列をシングルクォートで囲む
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
