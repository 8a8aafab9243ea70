package node

import (
	"fmt"
	"net/netip"
	"strings"
)

// Liveness は管理ツールのステータスから判定したメンバーの生存状態
type Liveness int

const (
	LivenessUnknown Liveness = iota
	AliveNormal              // UN
	AliveLimited             // UJ, UL, UM
	DeadNormal               // DN
	DeadLimited              // DJ, DL, DM
)

func (l Liveness) String() string {
	switch l {
	case AliveNormal:
		return "alive-normal"
	case AliveLimited:
		return "alive-limited"
	case DeadNormal:
		return "dead-normal"
	case DeadLimited:
		return "dead-limited"
	default:
		return "unknown"
	}
}

// ParseLiveness は2文字のステータスコード（UN, DN, UJ ...）を解釈する
func ParseLiveness(code string) (Liveness, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return LivenessUnknown, fmt.Errorf("unrecognized status code %q", code)
	}

	var normal bool
	switch code[1] {
	case 'N':
		normal = true
	case 'J', 'L', 'M':
		normal = false
	default:
		return LivenessUnknown, fmt.Errorf("unrecognized state in status code %q", code)
	}

	switch code[0] {
	case 'U':
		if normal {
			return AliveNormal, nil
		}
		return AliveLimited, nil
	case 'D':
		if normal {
			return DeadNormal, nil
		}
		return DeadLimited, nil
	default:
		return LivenessUnknown, fmt.Errorf("unrecognized status in status code %q", code)
	}
}

// IsAlive は生存扱いかどうかを返す
func (l Liveness) IsAlive() bool {
	return l == AliveNormal || l == AliveLimited
}

// IsDead はデッド扱いかどうかを返す
func (l Liveness) IsDead() bool {
	return l == DeadNormal || l == DeadLimited
}

// Role はリカバリーにおけるメンバーの役割
type Role int

const (
	RoleNone Role = iota
	RoleCandidateLeader
	RoleFollower
)

func (r Role) String() string {
	switch r {
	case RoleCandidateLeader:
		return "candidate-leader"
	case RoleFollower:
		return "follower"
	default:
		return "none"
	}
}

// GroupID はgroup0のインカネーションを識別する
type GroupID string

func (g GroupID) String() string {
	return string(g)
}

// Member はステータス照会で観測したクラスタの1ノード
// 照会のたびに新しく作られ、操作をまたいで保持しない
type Member struct {
	Address  string
	HostID   string
	Liveness Liveness
	Role     Role
}

// IsAlive は生存扱いかどうかを返す
func (m Member) IsAlive() bool {
	return m.Liveness.IsAlive()
}

// IsDead はデッド扱いかどうかを返す
func (m Member) IsDead() bool {
	return m.Liveness.IsDead()
}

// WithRole はroleを設定したコピーを返す
func (m Member) WithRole(role Role) Member {
	m.Role = role
	return m
}

func (m Member) String() string {
	return fmt.Sprintf("%s (%s, %s)", m.Address, m.HostID, m.Liveness)
}

// CompareAddress はアドレス順の比較関数
// IPとして解釈できる場合は数値順、それ以外は文字列順
func CompareAddress(a, b Member) int {
	ipA, errA := netip.ParseAddr(a.Address)
	ipB, errB := netip.ParseAddr(b.Address)
	if errA == nil && errB == nil {
		if c := ipA.Compare(ipB); c != 0 {
			return c
		}
		return strings.Compare(a.HostID, b.HostID)
	}
	if c := strings.Compare(a.Address, b.Address); c != 0 {
		return c
	}
	return strings.Compare(a.HostID, b.HostID)
}

// Addresses はメンバーのアドレス一覧を返す
func Addresses(members []Member) []string {
	addrs := make([]string, 0, len(members))
	for _, m := range members {
		addrs = append(addrs, m.Address)
	}
	return addrs
}

// State はリカバリー中のメンバーのライフサイクル状態
type State int

const (
	StateRunning State = iota
	StateStopping
	StateStopped
	StateReconfiguring
	StateStarting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateReconfiguring:
		return "reconfiguring"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
