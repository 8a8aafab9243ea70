package sim

import (
	"fmt"
	"sort"
	"time"

	"group0-recovery/internal/node"
)

// Preset は名前付きのシミュレーション構成
type Preset struct {
	Name        string
	Description string
	Build       func() *Cluster
}

// presetGroupID はプリセットで使う障害前のgroup0 ID
const presetGroupID node.GroupID = "9c1f4a6e-7b0d-11ef-a3c2-0242ac110002"

// presetEpoch はプリセットの履歴時刻の基準
var presetEpoch = time.Date(2024, 9, 20, 3, 14, 0, 0, time.UTC)

// build はlive台の稼働メンバー（アドレス順に新しい履歴）とdead台のデッドメンバーを作る
// 稼働メンバーは10.0.0.1から、デッドメンバーは10.0.1.1から割り当てる
func build(live, dead int) *Cluster {
	c := New(presetGroupID)
	for i := 1; i <= live; i++ {
		addr := fmt.Sprintf("10.0.0.%d", i)
		_ = c.AddMember(addr, StateAt(presetEpoch.Add(time.Duration(i)*time.Second), uint16(i)))
	}
	for i := 1; i <= dead; i++ {
		_ = c.AddDeadMember(fmt.Sprintf("10.0.1.%d", i))
	}
	return c
}

// EntryLossScenario は5台中2台を恒久的に失ったクラスタを返す
// 10.0.0.3が最新の履歴を持つ
func EntryLossScenario() *Cluster {
	return build(3, 2)
}

// LeaderTimeoutScenario はリーダーがReadyにならないクラスタを返す
func LeaderTimeoutScenario() *Cluster {
	c := build(3, 2)
	_ = c.Inject("10.0.0.3", FaultNeverReady)
	return c
}

// FollowerTimeoutScenario はフォロワー1台がReadyにならないクラスタを返す
func FollowerTimeoutScenario() *Cluster {
	c := build(3, 2)
	_ = c.Inject("10.0.0.1", FaultNeverReady)
	_ = c.SetReadyAfter("10.0.0.2", 2)
	return c
}

// ManyDeadScenario は過半数を失ったクラスタを返す
func ManyDeadScenario() *Cluster {
	return build(3, 4)
}

// PartialHistoryScenario は一部のメンバーから履歴が読めないクラスタを返す
// 最新の履歴を持つ10.0.0.5は読めないため、10.0.0.4がリーダーになる
func PartialHistoryScenario() *Cluster {
	c := build(5, 1)
	_ = c.Inject("10.0.0.2", FaultHistoryUnavailable)
	_ = c.Inject("10.0.0.5", FaultHistoryUnavailable)
	return c
}

// DegradedScenario は除去と削除の一部が失敗するクラスタを返す
func DegradedScenario() *Cluster {
	c := build(3, 3)
	_ = c.Inject("10.0.1.2", FaultFailRemoval)
	_ = c.Inject("10.0.0.2", FaultFailPurge)
	return c
}

var presets = map[string]Preset{
	"entry-loss": {
		Name:        "entry-loss",
		Description: "3 live members with diverging history, 2 permanently dead",
		Build:       EntryLossScenario,
	},
	"leader-timeout": {
		Name:        "leader-timeout",
		Description: "the recovery leader never becomes ready; the run aborts",
		Build:       LeaderTimeoutScenario,
	},
	"follower-timeout": {
		Name:        "follower-timeout",
		Description: "one follower never becomes ready; the run completes with failures",
		Build:       FollowerTimeoutScenario,
	},
	"many-dead": {
		Name:        "many-dead",
		Description: "3 live members, 4 dead members removed one by one",
		Build:       ManyDeadScenario,
	},
	"partial-history": {
		Name:        "partial-history",
		Description: "history is unreadable on 2 of 5 live members",
		Build:       PartialHistoryScenario,
	},
	"degraded": {
		Name:        "degraded",
		Description: "one removal and one purge fail",
		Build:       DegradedScenario,
	},
}

// GetPreset は名前からプリセットを取得する
func GetPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// ListPresets は利用可能なプリセット名を返す
func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
