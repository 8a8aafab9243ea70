package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"group0-recovery/internal/node"
	"group0-recovery/internal/query"
	"group0-recovery/internal/timeuuid"
)

// Fault は注入できる障害の種類を表す
type Fault int

const (
	FaultUnreachable        Fault = iota // SSHもクエリも届かない
	FaultHistoryUnavailable              // 履歴クエリだけが失敗する
	FaultNeverReady                      // 起動後もReadyにならない
	FaultFailStop
	FaultFailStart
	FaultFailMarker
	FaultFailRemoval // このメンバーの除去が失敗する
	FaultFailPurge
	FaultHangStart // 起動コマンドがctxが終わるまで戻らない
	FaultFailMarkerRemoval
)

func (f Fault) String() string {
	switch f {
	case FaultUnreachable:
		return "unreachable"
	case FaultHistoryUnavailable:
		return "history-unavailable"
	case FaultNeverReady:
		return "never-ready"
	case FaultFailStop:
		return "fail-stop"
	case FaultFailStart:
		return "fail-start"
	case FaultFailMarker:
		return "fail-marker"
	case FaultFailRemoval:
		return "fail-removal"
	case FaultFailPurge:
		return "fail-purge"
	case FaultHangStart:
		return "hang-start"
	case FaultFailMarkerRemoval:
		return "fail-marker-removal"
	default:
		return "unknown"
	}
}

// Op は呼び出しログに記録される操作の種類
type Op string

const (
	OpStatus       Op = "status"
	OpRemove       Op = "remove"
	OpStop         Op = "stop"
	OpStart        Op = "start"
	OpWriteMarker  Op = "write-marker"
	OpRemoveMarker Op = "remove-marker"
	OpQuery        Op = "query"
	OpUnknown      Op = "unknown"
)

// Call は1回分の呼び出しの記録
type Call struct {
	Seq       int
	Op        Op
	Addr      string   // 実行先
	HostID    string   // removeの対象
	Ignore    []string // removeのignore-dead-nodes
	Leader    string   // write-markerのrecovery_leader
	Statement string   // queryのステートメント
	Failed    bool
}

// member はシミュレートされた1メンバー
type member struct {
	address    string
	hostID     string
	dead       bool
	stateID    timeuuid.ID
	readyAfter int
	faults     map[Fault]bool

	running   bool
	removed   bool
	marker    string
	checks    int
	local     map[string]string         // system.scylla_local
	discovery int                       // system.discovery の行数
	raft      map[string]map[string]int // テーブル -> group_id -> 行数
}

func (m *member) reachable() bool {
	return !m.dead && !m.faults[FaultUnreachable]
}

// Cluster はgroup0を失ったクラスタのインメモリシミュレーション
// Executor()とQuerier()で各コラボレーターとして使える
type Cluster struct {
	mu         sync.Mutex
	order      []string
	members    map[string]*member
	groupID    node.GroupID
	newGroupID node.GroupID
	calls      []Call
}

// New は旧グループgroupIDを持つ空のクラスタを作成する
func New(groupID node.GroupID) *Cluster {
	return &Cluster{
		members: make(map[string]*member),
		groupID: groupID,
	}
}

// HostIDFor はアドレスから決まるホストIDを返す
func HostIDFor(addr string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(addr)).String()
}

// StateAt はtを時刻部に持つstate_idを返す
func StateAt(t time.Time, seq uint16) timeuuid.ID {
	const gregorianOffset = 122192928000000000 // 1582-10-15からUnixエポックまで（100ns単位）
	ticks := uuid.Time(t.UnixNano()/100 + gregorianOffset)
	return timeuuid.New(ticks, seq, [6]byte{0x02, 0x42, 0xac, 0x11, 0x00, byte(seq)})
}

// AddMember は稼働中のメンバーを追加する
// stateIDがゼロ値なら履歴を持たないメンバーになる
func (c *Cluster) AddMember(addr string, stateID timeuuid.ID) error {
	return c.add(addr, stateID, false)
}

// AddDeadMember は恒久的に失われたメンバーを追加する
func (c *Cluster) AddDeadMember(addr string) error {
	return c.add(addr, timeuuid.ID{}, true)
}

func (c *Cluster) add(addr string, stateID timeuuid.ID, dead bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.members[addr]; ok {
		return fmt.Errorf("member %s already exists", addr)
	}

	m := &member{
		address: addr,
		hostID:  HostIDFor(addr),
		dead:    dead,
		stateID: stateID,
		faults:  make(map[Fault]bool),
		running: !dead,
		local:   map[string]string{"raft_group0_id": string(c.groupID)},
		raft:    make(map[string]map[string]int),
	}
	m.discovery = 1
	for _, table := range query.RaftTables {
		m.raft[table] = map[string]int{string(c.groupID): 3}
	}

	c.members[addr] = m
	c.order = append(c.order, addr)
	return nil
}

// Inject はメンバーに障害を注入する
func (c *Cluster) Inject(addr string, faults ...Fault) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.members[addr]
	if !ok {
		return fmt.Errorf("member %s not found", addr)
	}
	for _, f := range faults {
		m.faults[f] = true
	}
	return nil
}

// Heal は注入した障害を取り除く
func (c *Cluster) Heal(addr string, faults ...Fault) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.members[addr]
	if !ok {
		return fmt.Errorf("member %s not found", addr)
	}
	for _, f := range faults {
		delete(m.faults, f)
	}
	return nil
}

// SetReadyAfter は起動後n回のプローブが失敗してからReadyになるようにする
func (c *Cluster) SetReadyAfter(addr string, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.members[addr]
	if !ok {
		return fmt.Errorf("member %s not found", addr)
	}
	m.readyAfter = n
	return nil
}

// Addresses は全メンバーのアドレスを追加順で返す
func (c *Cluster) Addresses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Contacts は管理ツールの接続先に使える稼働中メンバーのアドレスを返す
func (c *Cluster) Contacts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, addr := range c.order {
		if m := c.members[addr]; !m.dead {
			out = append(out, addr)
		}
	}
	return out
}

// GroupID は障害前のgroup0 IDを返す
func (c *Cluster) GroupID() node.GroupID {
	return c.groupID
}

// NewGroupID はリカバリーで作られたgroup0 IDを返す（まだなければ空）
func (c *Cluster) NewGroupID() node.GroupID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newGroupID
}

// MemberView はメンバー状態のスナップショット
type MemberView struct {
	Address string
	HostID  string
	Dead    bool
	Running bool
	Removed bool
	Marker  string // recovery_leader（なければ空）
	GroupID string // system.scylla_local の raft_group0_id
	Checks  int
}

// Member はaddrの状態を返す
func (c *Cluster) Member(addr string) (MemberView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.members[addr]
	if !ok {
		return MemberView{}, false
	}
	return MemberView{
		Address: m.address,
		HostID:  m.hostID,
		Dead:    m.dead,
		Running: m.running,
		Removed: m.removed,
		Marker:  m.marker,
		GroupID: m.local["raft_group0_id"],
		Checks:  m.checks,
	}, true
}

// RaftRows はaddrに残っているgroupIDのRaftメタデータ行数を返す
func (c *Cluster) RaftRows(addr string, groupID node.GroupID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.members[addr]
	if !ok {
		return 0
	}
	total := 0
	for _, groups := range m.raft {
		total += groups[string(groupID)]
	}
	return total
}

// Calls は呼び出しログのコピーを返す
func (c *Cluster) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallsOf はopの呼び出しだけを順番に返す
func (c *Cluster) CallsOf(op Op) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Call
	for _, call := range c.calls {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// Summary はメンバーごとの状態を1行ずつ返す
func (c *Cluster) Summary() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]string, 0, len(c.order))
	for _, addr := range c.order {
		m := c.members[addr]
		status := "running"
		switch {
		case m.dead:
			status = "dead"
		case !m.running:
			status = "stopped"
		}
		if m.removed {
			status += ",removed"
		}
		var faults []string
		for f := range m.faults {
			faults = append(faults, f.String())
		}
		sort.Strings(faults)
		lines = append(lines, fmt.Sprintf("%-15s %s %-16s faults=%v", addr, m.hostID, status, faults))
	}
	return lines
}

// record は呼び出しを記録する（c.muを保持した状態で呼ぶ）
func (c *Cluster) record(call Call) int {
	call.Seq = len(c.calls) + 1
	c.calls = append(c.calls, call)
	return len(c.calls) - 1
}

func (c *Cluster) markFailed(i int) {
	c.calls[i].Failed = true
}

// ensureNewGroup はリカバリーリーダーが作る新しいgroup0 IDを払い出す
func (c *Cluster) ensureNewGroup() node.GroupID {
	if c.newGroupID == "" {
		c.newGroupID = node.GroupID(uuid.NewSHA1(uuid.NameSpaceOID, []byte("group0:"+string(c.groupID))).String())
	}
	return c.newGroupID
}
