// Package recovery はquorumを失ったgroup0を生存メンバーから再構築する。
//
// Orchestratorは以下のフェーズを順番に実行する。
// 致命的な失敗があればその時点で中断し、ロールバックはしない。
//
//  1. capture-group   メンバーシップと旧group0 IDの取得
//  2. select-leader   履歴が最も新しいメンバーをリーダーに選出
//  3. reset-state     ローカルのgroup0状態を消去
//  4. write-markers   全生存メンバーにリカバリーマーカーを書き込み
//  5. stop-members    全生存メンバーを停止
//  6. start-leader    リーダーを起動してReadyを待つ
//  7. start-followers フォロワーを並列に起動（失敗は記録のみ）
//  8. remove-dead     デッドメンバーを1台ずつ除去（失敗は記録のみ）
//  9. purge           旧グループのRaftメタデータを削除（失敗は記録のみ）
//  10. cleanup-markers マーカーを削除（失敗は記録のみ）
//
// # 使用例
//
//	config := recovery.DefaultConfig()
//	config.LeaderTimeout = 10 * time.Minute
//
//	o := recovery.New(exec, querier, admin, config)
//	o.SetEventBus(bus)
//
//	report, err := o.Run(ctx)
//	if report != nil {
//	    fmt.Println(report)
//	}
//	if errors.Is(err, errs.ErrPartialSuccess) {
//	    // 一部のメンバーで失敗
//	}
package recovery
