package persist

import (
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"

	"git.fiblab.net/sim/mapedit/editor/rawmap"
)

// 单文件BSON存档格式
// 计数器随存档保存，跨会话也不会复用已删除实体的id
type mapDoc struct {
	Intersections      []*rawmap.Intersection `bson:"intersections"`
	Roads              []*rawmap.Road         `bson:"roads"`
	NextIntersectionID int32                  `bson:"next_intersection_id"`
	NextRoadID         int32                  `bson:"next_road_id"`
}

func docFromMap(m *rawmap.Map) *mapDoc {
	doc := &mapDoc{
		Intersections: lo.Values(m.Intersections()),
		Roads:         lo.Values(m.Roads()),
	}
	doc.NextIntersectionID, doc.NextRoadID = m.IDCounters()
	// 排序保证存档字节级可复现
	sort.Slice(doc.Intersections, func(i, j int) bool { return doc.Intersections[i].ID < doc.Intersections[j].ID })
	sort.Slice(doc.Roads, func(i, j int) bool { return doc.Roads[i].ID < doc.Roads[j].ID })
	return doc
}

func mapFromDoc(doc *mapDoc) (*rawmap.Map, error) {
	m := rawmap.New()
	// 先恢复交叉口再恢复道路，保证端点引用已存在
	for _, ic := range doc.Intersections {
		if err := m.PutIntersection(ic); err != nil {
			return nil, fmt.Errorf("%w: intersection %d: %v", ErrBadFormat, ic.ID, err)
		}
	}
	for _, r := range doc.Roads {
		if err := m.PutRoad(r); err != nil {
			return nil, fmt.Errorf("%w: road %d: %v", ErrBadFormat, r.ID, err)
		}
	}
	// 旧存档无计数器字段时为0，恢复只会前移，不受影响
	m.RestoreIDCounters(doc.NextIntersectionID, doc.NextRoadID)
	return m, nil
}

func saveFile(m *rawmap.Map, file string) error {
	data, err := bson.Marshal(docFromMap(m))
	if err != nil {
		return fmt.Errorf("failed to encode map: %w", err)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", file, err)
	}
	log.Infof("saved %d intersections and %d roads to %s", m.IntersectionCount(), m.RoadCount(), file)
	return nil
}

func loadFile(file string) (*rawmap.Map, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	var doc mapDoc
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	m, err := mapFromDoc(&doc)
	if err != nil {
		return nil, err
	}
	log.Infof("loaded %d intersections and %d roads from %s", m.IntersectionCount(), m.RoadCount(), file)
	return m, nil
}
