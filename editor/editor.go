package editor

import (
	"sync"

	"git.fiblab.net/general/common/v2/geometry"

	"git.fiblab.net/sim/mapedit/editor/derive"
	"git.fiblab.net/sim/mapedit/editor/rawmap"
	"git.fiblab.net/sim/mapedit/editor/spatial"
)

// 编辑控制器：模型、索引、历史与派生流水线的唯一协调者
// 编辑单线程同步执行，只有派生在独立worker上与后续编辑并发
// 索引只经由模型的变更通知更新，外部不允许直接改写
type Editor struct {
	cfg      *Config
	m        *rawmap.Map
	index    *spatial.Index[rawmap.EntityRef]
	history  *History
	pipeline *derive.Pipeline
	picker   *Picker

	mu      sync.Mutex
	editing bool
}

func New(cfg *Config, m *rawmap.Map, d derive.Deriver) *Editor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	e := &Editor{
		cfg:     cfg,
		m:       m,
		index:   spatial.NewIndex[rawmap.EntityRef](),
		history: NewHistory(cfg.HistoryLimit),
	}
	for id, ic := range m.Intersections() {
		ref := rawmap.EntityRef{Kind: rawmap.KIND_INTERSECTION, ID: id}
		if err := e.index.Insert(ref, m.IntersectionBounds(ic)); err != nil {
			log.Panicf("index bootstrap: %v", err)
		}
	}
	for id, r := range m.Roads() {
		ref := rawmap.EntityRef{Kind: rawmap.KIND_ROAD, ID: id}
		if err := e.index.Insert(ref, m.RoadBounds(r)); err != nil {
			log.Panicf("index bootstrap: %v", err)
		}
	}
	m.Subscribe(e.onChange)
	e.picker = NewPicker(cfg, m, e.index)
	e.pipeline = derive.NewPipeline(d)
	e.updateGauges()
	e.pipeline.Request(m.Clone())
	return e
}

// 执行一条编辑命令：校验失败时模型不变，成功后推入历史并触发重派生
func (e *Editor) Apply(c Command) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if err := e.history.Apply(e.m, c); err != nil {
		rejectsTotal.Inc()
		log.Debugf("edit %s rejected: %v", c.Label(), err)
		return err
	}
	editsTotal.WithLabelValues(c.Label()).Inc()
	e.afterEdit()
	return nil
}

func (e *Editor) Undo() (Command, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	c, err := e.history.Undo(e.m)
	if err != nil {
		return nil, err
	}
	undoTotal.Inc()
	e.afterEdit()
	return c, nil
}

func (e *Editor) Redo() (Command, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	c, err := e.history.Redo(e.m)
	if err != nil {
		return nil, err
	}
	redoTotal.Inc()
	e.afterEdit()
	return c, nil
}

func (e *Editor) PickAt(pt geometry.Point) (rawmap.EntityRef, bool) {
	return e.picker.PickAt(pt)
}

// 当前模型的深拷贝快照，交给渲染边界或后台任务都安全
func (e *Editor) Snapshot() *rawmap.Map {
	return e.m.Clone()
}

// 活动模型，仅供同线程只读访问
func (e *Editor) Raw() *rawmap.Map {
	return e.m
}

// 最近发布的派生路网快照
func (e *Editor) Derived() (*derive.StreetNetwork, bool) {
	return e.pipeline.Latest()
}

// 阻塞等待最新一次编辑的派生结果
func (e *Editor) SyncDerived() (int64, error) {
	return e.pipeline.Sync()
}

func (e *Editor) LastDeriveError() (int64, error) {
	return e.pipeline.LastError()
}

func (e *Editor) Index() *spatial.Index[rawmap.EntityRef] {
	return e.index
}

func (e *Editor) History() *History {
	return e.history
}

func (e *Editor) Close() {
	e.pipeline.Close()
}

func (e *Editor) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.editing {
		return ErrBusy
	}
	e.editing = true
	return nil
}

func (e *Editor) end() {
	e.mu.Lock()
	e.editing = false
	e.mu.Unlock()
}

func (e *Editor) afterEdit() {
	e.updateGauges()
	e.pipeline.Request(e.m.Clone())
}

func (e *Editor) updateGauges() {
	entityCount.WithLabelValues("intersection").Set(float64(e.m.IntersectionCount()))
	entityCount.WithLabelValues("road").Set(float64(e.m.RoadCount()))
}

// 将模型变更同步到空间索引
// 索引条目集合必须与存活实体集合严格一致，偏差视为缺陷
func (e *Editor) onChange(c rawmap.Change) {
	ref := rawmap.EntityRef{Kind: c.Kind, ID: c.ID}
	var err error
	switch {
	case c.Before == nil && c.After != nil:
		err = e.index.Insert(ref, *c.After)
	case c.Before != nil && c.After == nil:
		err = e.index.Remove(ref)
	case c.Before != nil && c.After != nil:
		err = e.index.Move(ref, *c.After)
	}
	if err != nil {
		log.Panicf("spatial index out of sync at %+v: %v", ref, err)
	}
}
