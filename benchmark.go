package main

import (
	"flag"
	"time"

	"math/rand"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/sirupsen/logrus"

	"git.fiblab.net/sim/mapedit/editor"
)

var (
	benchmarkGrid    = flag.Int("benchmark.grid", 32, "the side length of the intersection grid for benchmark")
	benchmarkSpacing = flag.Float64("benchmark.spacing", 100, "the grid spacing in meters for benchmark")
	benchmarkCount   = flag.Int("benchmark.count", 1000, "the random edit count for benchmark")
	benchmarkPicks   = flag.Int("benchmark.picks", 10000, "the random pick count for benchmark")
	benchmarkSeed    = flag.Int64("benchmark.seed", 0, "the seed for benchmark")
)

// 在随机网格路网上测量编辑、拾取与派生的耗时
func runBenchmark(e *editor.Editor) {
	log.Logger.SetLevel(logrus.WarnLevel)
	// 设置随机种子
	r := rand.New(rand.NewSource(*benchmarkSeed))

	n := *benchmarkGrid
	spacing := *benchmarkSpacing
	extent := float64(n-1) * spacing

	// 构建n×n网格：每个格点一个交叉口，相邻格点间一条双向道路
	start := time.Now()
	ids := make([]int32, 0, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			c := &editor.AddIntersection{Position: geometry.Point{
				X: float64(col) * spacing,
				Y: float64(row) * spacing,
			}}
			if err := e.Apply(c); err != nil {
				log.Panicf("benchmark setup failed: %v", err)
			}
			ids = append(ids, c.ID())
		}
	}
	roadCount := 0
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			at := func(r, c int) int32 { return ids[r*n+c] }
			if col+1 < n {
				if err := e.Apply(&editor.AddRoad{From: at(row, col), To: at(row, col+1)}); err != nil {
					log.Panicf("benchmark setup failed: %v", err)
				}
				roadCount++
			}
			if row+1 < n {
				if err := e.Apply(&editor.AddRoad{From: at(row, col), To: at(row+1, col)}); err != nil {
					log.Panicf("benchmark setup failed: %v", err)
				}
				roadCount++
			}
		}
	}
	setupCost := time.Since(start)

	// 随机小幅移动交叉口
	start = time.Now()
	for i := 0; i < *benchmarkCount; i++ {
		id := ids[r.Intn(len(ids))]
		ic, _ := e.Raw().Intersection(id)
		to := geometry.Point{
			X: ic.Position.X + r.Float64()*spacing/10 - spacing/20,
			Y: ic.Position.Y + r.Float64()*spacing/10 - spacing/20,
		}
		if err := e.Apply(&editor.MoveIntersection{ID: id, To: to}); err != nil {
			log.Error("benchmark edit failed, err:", err)
		}
	}
	editCost := time.Since(start)

	// 随机拾取
	start = time.Now()
	hit := 0
	for i := 0; i < *benchmarkPicks; i++ {
		pt := geometry.Point{X: r.Float64() * extent, Y: r.Float64() * extent}
		if _, ok := e.PickAt(pt); ok {
			hit++
		}
	}
	pickCost := time.Since(start)

	// 等待最后一次派生完成
	start = time.Now()
	if _, err := e.SyncDerived(); err != nil {
		log.Error("benchmark derivation failed, err:", err)
	}
	deriveCost := time.Since(start)

	log.Error(
		"benchmark finished", "\n",
		"grid:", n, "x", n, "with", roadCount, "roads\n",
		"setup:", setupCost, "\n",
		"edits:", *benchmarkCount, "in", editCost, "avg:", editCost/time.Duration(*benchmarkCount), "\n",
		"picks:", *benchmarkPicks, "in", pickCost, "avg:", pickCost/time.Duration(*benchmarkPicks), "hit:", hit, "\n",
		"final derivation wait:", deriveCost, "\n",
	)
}
