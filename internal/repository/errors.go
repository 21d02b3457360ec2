package repository

import "errors"

// 通用的存储层错误。
// 具体实现（Redis 等）负责把底层错误映射到这里的哨兵值，
// Service 层再把它们翻译成业务错误。
var (
	// ErrNotFound 表示请求的记录不存在或已因 TTL 过期被删除。
	// 过期的记录与从未创建过的记录行为完全一致。
	ErrNotFound = errors.New("repository: record not found")
)
