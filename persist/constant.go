package persist

import "errors"

const (
	// mongo文档class字段取值
	CLASS_INTERSECTION = "intersection"
	CLASS_ROAD         = "road"
	CLASS_COUNTERS     = "counters"
)

var (
	ErrNilPath   = errors.New("persist: nil path")
	ErrBadFormat = errors.New("persist: malformed map document")
)
