// Package errs defines the error taxonomy shared by the recovery packages.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrTransport           = errors.New("transport error")                     // リモートセッション/コマンドの失敗
	ErrQuery               = errors.New("query error")                         // ステートメント実行の失敗
	ErrEmptyObservationSet = errors.New("empty observation set")               // 履歴を観測できたメンバーがいない
	ErrNoReachableMember   = errors.New("no reachable member")                 // どのメンバーにも到達できない
	ErrLeaderNotLive       = errors.New("recovery leader is not alive")        // 選出したリーダーが生存リストにいない
	ErrResetFailed         = errors.New("local group state reset failed")      // group0ローカル状態の消去に失敗
	ErrConfigWriteFailed   = errors.New("recovery marker write failed")        // リカバリーマーカーの書き込みに失敗
	ErrStopFailed          = errors.New("stop failed")                         // メンバー停止に失敗
	ErrStartFailed         = errors.New("start failed")                        // メンバー起動要求に失敗
	ErrStartupTimeout      = errors.New("startup timeout")                     // 期限内にReadyにならなかった
	ErrRemovalFailed       = errors.New("removal failed")                      // デッドメンバーの除去に失敗
	ErrPurgeFailed         = errors.New("purge failed")                        // 旧グループデータの削除に失敗
	ErrPartialSuccess      = errors.New("recovery finished with failures")     // 非致命的な失敗を含んで完了
	ErrAlreadyRunning      = errors.New("recovery run is already in progress") // 同一Orchestratorでの多重実行
)

// MemberError は特定メンバーに対する操作の失敗を表す
type MemberError struct {
	Op     string // 操作名 (stop, start, remove, purge ...)
	Member string // 対象メンバーのアドレス
	Err    error
}

func (e *MemberError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Member, e.Err)
}

func (e *MemberError) Unwrap() error {
	return e.Err
}

// Member はkindを原因とするMemberErrorを作成する
// causeがnilでなければkindとcauseの両方をラップする
func Member(op, member string, kind, cause error) *MemberError {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &MemberError{Op: op, Member: member, Err: err}
}
