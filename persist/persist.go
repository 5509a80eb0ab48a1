package persist

import (
	"context"

	"git.fiblab.net/sim/mapedit/editor/rawmap"
)

// Load 从文件或mongo集合读取原始路网
func Load(ctx context.Context, mongoURI string, path *Path) (*rawmap.Map, error) {
	if path == nil {
		return nil, ErrNilPath
	}
	if path.IsFile() {
		return loadFile(path.File)
	}
	return loadMongo(ctx, mongoURI, path)
}

// Save 将原始路网整体写入文件或mongo集合
func Save(ctx context.Context, m *rawmap.Map, mongoURI string, path *Path) error {
	if path == nil {
		return ErrNilPath
	}
	if path.IsFile() {
		return saveFile(m, path.File)
	}
	return saveMongo(ctx, m, mongoURI, path)
}
