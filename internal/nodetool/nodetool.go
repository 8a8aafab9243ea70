// Package nodetool wraps the cluster admin tool used to list and remove members.
package nodetool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"group0-recovery/internal/logger"
	"group0-recovery/internal/remote"
)

// StatusLine は `nodetool status` の1メンバー分の行
type StatusLine struct {
	Code    string // UN, DN, UJ ...
	Address string
	HostID  string
}

// Admin はクラスタのメンバーシップ管理操作
type Admin interface {
	// Status はメンバーごとのステータス行を返す
	Status(ctx context.Context) ([]StatusLine, error)
	// Remove はinitiator上でhostIDの除去を要求する
	// ignoreに含まれるアドレスは既知のデッドとして扱われる
	Remove(ctx context.Context, initiator, hostID string, ignore []string) error
}

// Tool はリモート実行でnodetoolを呼び出すAdmin
type Tool struct {
	exec     remote.Executor
	binary   string
	contacts []string
}

// Ensure Tool implements Admin
var _ Admin = (*Tool)(nil)

// New は新しいToolを作成する
// statusはcontactsを順に試し、最初に成功したメンバーの結果を使う
func New(exec remote.Executor, binary string, contacts []string) *Tool {
	if binary == "" {
		binary = "nodetool"
	}
	return &Tool{
		exec:     exec,
		binary:   binary,
		contacts: contacts,
	}
}

// Status はcontactsのいずれかでnodetool statusを実行して解析する
func (t *Tool) Status(ctx context.Context) ([]StatusLine, error) {
	if len(t.contacts) == 0 {
		return nil, errors.New("no contact points configured")
	}

	var errs []error
	for _, addr := range t.contacts {
		res, err := remote.Run(ctx, t.exec, addr, StatusCommand(t.binary))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn(addr, "nodetool status failed: %v", err)
			errs = append(errs, err)
			continue
		}
		return ParseStatus(res.Stdout), nil
	}
	return nil, fmt.Errorf("nodetool status failed on all contact points: %w", errors.Join(errs...))
}

// Remove はinitiator上でnodetool removenodeを実行する
func (t *Tool) Remove(ctx context.Context, initiator, hostID string, ignore []string) error {
	cmd := RemoveCommand(t.binary, hostID, ignore)
	logger.Info(initiator, "Removing node %s (ignore: %v)", hostID, ignore)
	if _, err := remote.Run(ctx, t.exec, initiator, cmd); err != nil {
		return err
	}
	return nil
}

// StatusCommand はstatus照会のコマンドラインを返す
func StatusCommand(binary string) string {
	return binary + " status"
}

// RemoveCommand はremovenodeのコマンドラインを返す
func RemoveCommand(binary, hostID string, ignore []string) string {
	var b strings.Builder
	b.WriteString(binary)
	b.WriteString(" removenode")
	if len(ignore) > 0 {
		b.WriteString(" --ignore-dead-nodes ")
		b.WriteString(remote.Quote(strings.Join(ignore, ",")))
	}
	b.WriteString(" ")
	b.WriteString(remote.Quote(hostID))
	return b.String()
}

// ParseStatus は `nodetool status` の出力からメンバー行を取り出す
// ヘッダーやデータセンター区切りは無視し、Host IDを含む行だけを返す
func ParseStatus(output string) []StatusLine {
	var lines []StatusLine

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || len(fields[0]) != 2 || fields[0] == "--" {
			continue
		}

		hostID := ""
		for _, f := range fields[2:] {
			if _, err := uuid.Parse(f); err == nil {
				hostID = f
				break
			}
		}
		if hostID == "" {
			continue
		}

		lines = append(lines, StatusLine{
			Code:    fields[0],
			Address: fields[1],
			HostID:  hostID,
		})
	}
	return lines
}
