package persist

import (
	"fmt"
	"os"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"google.golang.org/protobuf/proto"
)

// ExportDerived 将派生路网以pb二进制写盘，供下游仿真直接加载
func ExportDerived(pb *mapv2.Map, file string) error {
	data, err := proto.Marshal(pb)
	if err != nil {
		return fmt.Errorf("failed to encode derived map: %w", err)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", file, err)
	}
	log.Infof("exported derived map with %d lanes to %s", len(pb.Lanes), file)
	return nil
}
