// Package query executes statements against a single member's system tables.
package query

import (
	"context"
	"fmt"
	"strings"

	"group0-recovery/internal/errs"
)

// Row は1行分の結果（カラム名→値）
type Row map[string]any

// Text はカラム値を文字列として取り出す
func (r Row) Text(column string) (string, bool) {
	v, ok := r[column]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return fmt.Sprint(val), true
	}
}

// Querier は特定メンバーに対してステートメントを実行する
type Querier interface {
	Execute(ctx context.Context, statement, target string) ([]Row, error)
}

// QuerierFunc は関数をQuerierとして扱うアダプタ
type QuerierFunc func(ctx context.Context, statement, target string) ([]Row, error)

// Execute はfを呼び出す
func (f QuerierFunc) Execute(ctx context.Context, statement, target string) ([]Row, error) {
	return f(ctx, statement, target)
}

// Error は元のメッセージを保持したままerrs.ErrQueryとしてラップする
func Error(statement, target string, err error) error {
	return fmt.Errorf("%w: %s on %s: %w", errs.ErrQuery, compact(statement), target, err)
}

// Exec は結果行を必要としないステートメントを実行する
func Exec(ctx context.Context, q Querier, statement, target string) error {
	_, err := q.Execute(ctx, statement, target)
	return err
}

// First は最初の行を返す（行がなければfalse）
func First(ctx context.Context, q Querier, statement, target string) (Row, bool, error) {
	rows, err := q.Execute(ctx, statement, target)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

func compact(statement string) string {
	return strings.Join(strings.Fields(statement), " ")
}

// 各フェーズで使用するステートメント
const (
	SelectGroup0History = "SELECT state_id FROM system.group0_history LIMIT 1"
	SelectGroup0ID      = "SELECT value FROM system.scylla_local WHERE key = 'raft_group0_id'"
	SelectTopology      = "SELECT * FROM system.topology"
	DeleteGroup0ID      = "DELETE FROM system.scylla_local WHERE key = 'raft_group0_id'"
	TruncateDiscovery   = "TRUNCATE TABLE system.discovery"
)

// RaftTables はgroup_idでスコープされたRaftメタデータのテーブル
var RaftTables = []string{
	"system.raft",
	"system.raft_snapshots",
	"system.raft_snapshot_config",
}

// DeleteByGroup はtableからgroupIDの行を削除するステートメントを返す
func DeleteByGroup(table, groupID string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE group_id = %s", table, groupID)
}
