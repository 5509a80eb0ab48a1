package rawmap

import (
	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"

	"git.fiblab.net/sim/mapedit/editor/spatial"
)

// 交叉口控制类型
type ControlType int32

const (
	CONTROL_TYPE_UNSIGNALIZED ControlType = 0
	CONTROL_TYPE_SIGNALIZED   ControlType = 1
	// 地图边界处的虚拟交叉口
	CONTROL_TYPE_BORDER ControlType = 2
)

type EntityKind int32

const (
	KIND_INTERSECTION EntityKind = 1
	KIND_ROAD         EntityKind = 2
)

// 实体引用，索引与拾取统一使用
type EntityRef struct {
	Kind EntityKind
	ID   int32
}

type Intersection struct {
	ID       int32          `bson:"id"`
	Position geometry.Point `bson:"position"`
	Control  ControlType    `bson:"control"`
}

// 单条车道描述，方向相对道路的From→To朝向
type LaneSpec struct {
	Dir   int32          `bson:"dir"` // FORWARD/BACKWARD
	Type  mapv2.LaneType `bson:"type"`
	Width float64        `bson:"width"`
}

// 道路，端点以交叉口id引用，Shape仅保存端点之间的内部形状点
// From/To的先后是方向元数据，不代表单行
type Road struct {
	ID    int32             `bson:"id"`
	From  int32             `bson:"from"`
	To    int32             `bson:"to"`
	Shape []geometry.Point  `bson:"shape"`
	Lanes []LaneSpec        `bson:"lanes"`
	Tags  map[string]string `bson:"tags"`
}

// 道路横断面总宽度
func (r *Road) TotalWidth() float64 {
	if len(r.Lanes) == 0 {
		return DEFAULT_LANE_WIDTH
	}
	total := 0.0
	for _, l := range r.Lanes {
		total += l.Width
	}
	return total
}

// 一次成功变更的通知，Before为nil表示新建，After为nil表示删除
type Change struct {
	Kind   EntityKind
	ID     int32
	Before *spatial.Rect
	After  *spatial.Rect
}

func (ic *Intersection) Clone() *Intersection {
	c := *ic
	return &c
}

func (r *Road) Clone() *Road {
	c := *r
	c.Shape = append([]geometry.Point(nil), r.Shape...)
	c.Lanes = append([]LaneSpec(nil), r.Lanes...)
	if r.Tags != nil {
		c.Tags = make(map[string]string, len(r.Tags))
		for k, v := range r.Tags {
			c.Tags[k] = v
		}
	}
	return &c
}
