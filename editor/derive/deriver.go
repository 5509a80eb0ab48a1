package derive

import (
	"context"
	"errors"
	"fmt"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"

	"git.fiblab.net/sim/mapedit/editor/rawmap"
)

// 派生失败，携带问题实体id与原因
type Error struct {
	EntityID int32
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("derivation failed at entity %d: %s", e.EntityID, e.Reason)
}

var (
	// 错误：流水线已关闭
	ErrClosed = errors.New("derivation pipeline closed")
)

// 原始路网到完整车道级路网的纯函数转换
// 要求确定性且无副作用：相同输入必须产生相同输出，以便安全地取消与重启
type Deriver interface {
	Derive(ctx context.Context, m *rawmap.Map) (*mapv2.Map, error)
}

type DeriverFunc func(ctx context.Context, m *rawmap.Map) (*mapv2.Map, error)

func (f DeriverFunc) Derive(ctx context.Context, m *rawmap.Map) (*mapv2.Map, error) {
	return f(ctx, m)
}

// 派生结果的不可变快照，代次单调递增，整体替换旧快照
type StreetNetwork struct {
	Generation int64
	Map        *mapv2.Map
}
