package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/journal"
)

// ErrDuplicateExchange 表示记录 ID 已存在。
var ErrDuplicateExchange = xerrors.New(xerrors.CodeStorageFailure, "对话记录已存在")

const (
	insertExchangeSQL = `INSERT INTO exchanges
    (id, agent, role, channel, query, answer, tools, outcome, duration_ms, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	latestExchangesSQL = `SELECT id, agent, role, channel, query, answer, tools, outcome, duration_ms, created_at
    FROM exchanges ORDER BY created_at DESC, id DESC LIMIT ?`
)

// ExchangeRepository 使用 MySQL 存储对话记录。
type ExchangeRepository struct {
	db *sql.DB
}

var _ journal.Store = (*ExchangeRepository)(nil)

// NewExchangeRepository 创建连接池并执行内嵌迁移。
func NewExchangeRepository(ctx context.Context, cfg Config) (*ExchangeRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化对话记录仓库失败")
	}
	repo := &ExchangeRepository{db: db}
	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Record 写入一条对话记录，ID 为空时自动生成。
func (r *ExchangeRepository) Record(ctx context.Context, exchange journal.Exchange) error {
	if strings.TrimSpace(exchange.ID) == "" {
		exchange.ID = uuid.NewString()
	}
	tools, err := json.Marshal(exchange.Tools)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码工具列表失败")
	}

	_, err = r.db.ExecContext(ctx, insertExchangeSQL,
		exchange.ID,
		exchange.Agent,
		exchange.Role,
		exchange.Channel,
		exchange.Query,
		exchange.Answer,
		string(tools),
		exchange.Outcome,
		exchange.DurationMS,
		exchange.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrDuplicateExchange
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入对话记录失败")
	}
	return nil
}

// Latest 返回最近的对话记录。
func (r *ExchangeRepository) Latest(ctx context.Context, limit int) ([]journal.Exchange, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, latestExchangesSQL, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询对话记录失败")
	}
	defer rows.Close()

	var out []journal.Exchange
	for rows.Next() {
		var (
			ex    journal.Exchange
			tools string
		)
		if err := rows.Scan(&ex.ID, &ex.Agent, &ex.Role, &ex.Channel, &ex.Query, &ex.Answer, &tools, &ex.Outcome, &ex.DurationMS, &ex.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析对话记录失败")
		}
		if tools != "" && tools != "null" {
			_ = json.Unmarshal([]byte(tools), &ex.Tools)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历对话记录失败")
	}
	return out, nil
}

// Close 关闭连接池。
func (r *ExchangeRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
