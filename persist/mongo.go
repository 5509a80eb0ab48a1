package persist

import (
	"context"
	"fmt"
	"sort"

	"git.fiblab.net/general/common/v2/mongoutil"
	"go.mongodb.org/mongo-driver/bson"

	"git.fiblab.net/sim/mapedit/editor/rawmap"
)

// mongo中每个实体一条文档，class字段区分类型
type mongoDoc struct {
	Class string   `bson:"class"`
	Data  bson.Raw `bson:"data"`
}

// id计数器单独一条文档
type counterDoc struct {
	NextIntersectionID int32 `bson:"next_intersection_id"`
	NextRoadID         int32 `bson:"next_road_id"`
}

func saveMongo(ctx context.Context, m *rawmap.Map, mongoURI string, path *Path) error {
	client := mongoutil.NewClient(mongoURI)
	defer client.Disconnect(context.Background())
	coll := mongoutil.GetMongoColl(client, path)

	doc := docFromMap(m)
	docs := make([]interface{}, 0, len(doc.Intersections)+len(doc.Roads))
	for _, ic := range doc.Intersections {
		docs = append(docs, bson.M{"class": CLASS_INTERSECTION, "data": ic})
	}
	for _, r := range doc.Roads {
		docs = append(docs, bson.M{"class": CLASS_ROAD, "data": r})
	}
	docs = append(docs, bson.M{"class": CLASS_COUNTERS, "data": counterDoc{
		NextIntersectionID: doc.NextIntersectionID,
		NextRoadID:         doc.NextRoadID,
	}})
	// 全量覆盖写入
	if _, err := coll.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear %s: %w", path, err)
	}
	if len(docs) > 0 {
		if _, err := coll.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", path, err)
		}
	}
	log.Infof("saved %d intersections and %d roads to %s", len(doc.Intersections), len(doc.Roads), path)
	return nil
}

func loadMongo(ctx context.Context, mongoURI string, path *Path) (*rawmap.Map, error) {
	client := mongoutil.NewClient(mongoURI)
	defer client.Disconnect(context.Background())
	coll := mongoutil.GetMongoColl(client, path)

	cur, err := coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", path, err)
	}
	defer cur.Close(ctx)

	var doc mapDoc
	for cur.Next(ctx) {
		var d mongoDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		switch d.Class {
		case CLASS_INTERSECTION:
			var ic rawmap.Intersection
			if err := bson.Unmarshal(d.Data, &ic); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
			}
			doc.Intersections = append(doc.Intersections, &ic)
		case CLASS_ROAD:
			var r rawmap.Road
			if err := bson.Unmarshal(d.Data, &r); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
			}
			doc.Roads = append(doc.Roads, &r)
		case CLASS_COUNTERS:
			var c counterDoc
			if err := bson.Unmarshal(d.Data, &c); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
			}
			doc.NextIntersectionID = c.NextIntersectionID
			doc.NextRoadID = c.NextRoadID
		default:
			return nil, fmt.Errorf("%w: unknown class %s", ErrBadFormat, d.Class)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", path, err)
	}
	// mongo不保证返回顺序
	sort.Slice(doc.Intersections, func(i, j int) bool { return doc.Intersections[i].ID < doc.Intersections[j].ID })
	sort.Slice(doc.Roads, func(i, j int) bool { return doc.Roads[i].ID < doc.Roads[j].ID })
	m, err := mapFromDoc(&doc)
	if err != nil {
		return nil, err
	}
	log.Infof("loaded %d intersections and %d roads from %s", m.IntersectionCount(), m.RoadCount(), path)
	return m, nil
}
