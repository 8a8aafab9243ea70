// Package timeuuid wraps version 1 (time-based) UUIDs with an ordering by
// their embedded timestamp.
package timeuuid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMalformed はUUIDとして解釈できない入力
	ErrMalformed = errors.New("malformed uuid")
	// ErrNotTimeOrdered はバージョン1以外のUUID
	ErrNotTimeOrdered = errors.New("uuid is not time-ordered (version 1)")
)

// ID は時刻順序付きの識別子
// ゼロ値は無効であり、Parse/FromUUID/New を経由して作成する
type ID struct {
	u uuid.UUID
}

// Parse は文字列をIDとして解釈する
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
	}
	return FromUUID(u)
}

// FromUUID は既存のUUIDをIDに変換する
func FromUUID(u uuid.UUID) (ID, error) {
	if u.Version() != 1 {
		return ID{}, fmt.Errorf("%w: %s has version %d", ErrNotTimeOrdered, u, u.Version())
	}
	return ID{u: u}, nil
}

// New は指定したタイムスタンプ（1582-10-15からの100ns単位）を持つIDを組み立てる
func New(ts uuid.Time, clockSeq uint16, node [6]byte) ID {
	var u uuid.UUID
	t := uint64(ts)
	binary.BigEndian.PutUint32(u[0:4], uint32(t))
	binary.BigEndian.PutUint16(u[4:6], uint16(t>>32))
	binary.BigEndian.PutUint16(u[6:8], uint16(t>>48)&0x0fff|0x1000)
	binary.BigEndian.PutUint16(u[8:10], clockSeq&0x3fff|0x8000)
	copy(u[10:], node[:])
	return ID{u: u}
}

// Now は現在時刻のIDを生成する
func Now() (ID, error) {
	u, err := uuid.NewUUID()
	if err != nil {
		return ID{}, err
	}
	return ID{u: u}, nil
}

// Timestamp は埋め込まれたタイムスタンプを返す
func (id ID) Timestamp() uuid.Time {
	return id.u.Time()
}

// Time はタイムスタンプをtime.Timeに変換する
func (id ID) Time() time.Time {
	sec, nsec := id.u.Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}

// UUID は元のUUIDを返す
func (id ID) UUID() uuid.UUID {
	return id.u
}

// IsZero はゼロ値かどうかを返す
func (id ID) IsZero() bool {
	return id.u == uuid.Nil
}

func (id ID) String() string {
	return id.u.String()
}

// CompareTime はタイムスタンプのみで比較する
func (id ID) CompareTime(other ID) int {
	a, b := id.Timestamp(), other.Timestamp()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Compare はタイムスタンプで比較し、同値なら128ビット全体のバイト順で決定する
func (id ID) Compare(other ID) int {
	if c := id.CompareTime(other); c != 0 {
		return c
	}
	return bytes.Compare(id.u[:], other.u[:])
}

// Compare はslices.SortFunc等で使える比較関数
func Compare(a, b ID) int {
	return a.Compare(b)
}

func (id ID) MarshalText() ([]byte, error) {
	return id.u.MarshalText()
}

func (id *ID) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
