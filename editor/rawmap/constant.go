package rawmap

import "errors"

const (
	// id命名空间划分，与城市地图数据中road/junction的id区间对应
	// 两个计数器单调递增，会话内永不复用
	ROAD_ID_START         = 2_0000_0000
	INTERSECTION_ID_START = 3_0000_0000

	// 方向常量
	FORWARD  = 1
	BACKWARD = 2

	// 道路中心线最短长度（米），低于该值视为退化几何
	MIN_ROAD_LENGTH = 0.1

	// 车道缺省宽度（米）
	DEFAULT_LANE_WIDTH = 3.0
)

var (
	// 错误：实体不存在
	ErrNotFound = errors.New("entity not found")
	// 错误：交叉口仍有关联道路，不能删除
	ErrEntityInUse = errors.New("entity in use")
	// 错误：道路端点引用了不存在的交叉口
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	// 错误：道路几何退化（过短、首尾自交或端点重合）
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	// 错误：合并会让某条道路两端落在同一交叉口
	ErrWouldCreateSelfLoop = errors.New("would create self loop")
	// 错误：id不在对应实体的命名空间内
	ErrIDOutOfRange = errors.New("id out of range")
)
