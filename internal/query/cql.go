package query

import (
	"context"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"group0-recovery/internal/logger"
)

// CQLConfig はCQL接続の設定
type CQLConfig struct {
	Port           int           // ネイティブプロトコルのポート（0で9042）
	Username       string        // 認証ユーザー（空なら認証なし）
	Password       string        // 認証パスワード
	Timeout        time.Duration // クエリタイムアウト
	ConnectTimeout time.Duration // 接続タイムアウト
	ProtoVersion   int           // プロトコルバージョン（0で自動）
}

// DefaultCQLConfig はデフォルト設定を返す
func DefaultCQLConfig() CQLConfig {
	return CQLConfig{
		Port:           9042,
		Timeout:        10 * time.Second,
		ConnectTimeout: 5 * time.Second,
	}
}

// CQL はgocqlを使ったQuerier
// ステートメントごとに対象ホストだけに接続するセッションを作り、実行後に閉じる
type CQL struct {
	config CQLConfig
}

// Ensure CQL implements Querier
var _ Querier = (*CQL)(nil)

// NewCQL は新しいCQL Querierを作成する
func NewCQL(config CQLConfig) *CQL {
	if config.Port == 0 {
		config.Port = 9042
	}
	return &CQL{config: config}
}

func (c *CQL) newCluster(target string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(target)
	cluster.Port = c.config.Port
	cluster.Consistency = gocql.One
	cluster.DisableInitialHostLookup = true
	cluster.HostFilter = gocql.WhiteListHostFilter(target)
	cluster.NumConns = 1
	if c.config.Timeout > 0 {
		cluster.Timeout = c.config.Timeout
	}
	if c.config.ConnectTimeout > 0 {
		cluster.ConnectTimeout = c.config.ConnectTimeout
	}
	if c.config.ProtoVersion > 0 {
		cluster.ProtoVersion = c.config.ProtoVersion
	}
	if c.config.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: c.config.Username,
			Password: c.config.Password,
		}
	}
	return cluster
}

// Execute はtarget上でstatementを実行する
func (c *CQL) Execute(ctx context.Context, statement, target string) ([]Row, error) {
	session, err := c.newCluster(target).CreateSession()
	if err != nil {
		return nil, Error(statement, target, err)
	}
	defer session.Close()

	logger.Debug(target, "cql: %s", statement)

	q := session.Query(statement).WithContext(ctx)
	if !isSelect(statement) {
		if err := q.Exec(); err != nil {
			return nil, Error(statement, target, err)
		}
		return nil, nil
	}

	maps, err := q.Iter().SliceMap()
	if err != nil {
		return nil, Error(statement, target, err)
	}

	rows := make([]Row, 0, len(maps))
	for _, m := range maps {
		rows = append(rows, Row(m))
	}
	return rows, nil
}

func isSelect(statement string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(statement)), "SELECT")
}
