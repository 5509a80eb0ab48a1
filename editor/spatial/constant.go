package spatial

import "errors"

const (
	// 节点分裂前最多容纳的条目数
	NODE_CAPACITY = 8
	// 四叉树最大深度
	MAX_DEPTH = 16

	// 初始根节点边长（米），插入越界时倍增
	INITIAL_ROOT_EXTENT = 1024
)

var (
	// 错误：重复插入同一实体
	ErrDuplicateItem = errors.New("item already in index")
	// 错误：删除不存在的实体
	ErrItemNotFound = errors.New("item not found in index")
)
