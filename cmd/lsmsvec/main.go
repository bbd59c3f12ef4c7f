// lsmsvec：将分割标签影像分块矢量化，输出每个标签一个要素及其各波段均值、方差
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/wgdzlh/lsmsvec"
	"github.com/wgdzlh/lsmsvec/log"

	"go.uber.org/zap"
)

// 可重复的-lco参数
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var (
		p        = lsmsvec.DefaultParams("", "", "")
		lco      stringList
		logLevel string
	)
	flag.StringVar(&p.In, "in", "", "input multi-band image")
	flag.StringVar(&p.InSeg, "inseg", "", "segmentation label image (first band is used)")
	flag.StringVar(&p.Out, "out", "", "output vector file (.shp, .gpkg, .sqlite, .geojson, .json)")
	flag.IntVar(&p.TileSizeX, "tilesizex", p.TileSizeX, "tile width in pixels")
	flag.IntVar(&p.TileSizeY, "tilesizey", p.TileSizeY, "tile height in pixels")
	flag.StringVar(&p.LayerName, "layer", p.LayerName, "output layer name (ignored by shapefiles)")
	flag.Var(&lco, "lco", "layer creation option KEY=VALUE, repeatable")
	flag.BoolVar(&p.EightConnected, "8conn", false, "trace polygons with 8-connectedness")
	flag.IntVar(&p.Workers, "workers", p.Workers, "number of tiles processed in parallel")
	flag.DurationVar(&p.TileTimeout, "tile-timeout", 0, "timeout of a single tile, 0 for none")
	flag.BoolVar(&p.Strict, "strict", false, "abort when the fragments of a label cannot be unioned")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()
	p.LayerOptions = lco

	if err := log.SetLevel(logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "invalid log level:", logLevel)
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := lsmsvec.NewGdalToolbox().Vectorize(ctx, p)
	if err != nil {
		log.Error("vectorize failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Info("done", zap.String("out", rep.Out), zap.Int("labels", rep.Labels), zap.Int("tiles", rep.Tiles),
		zap.Int("fragments", rep.Fragments), zap.Int("merged", rep.Merged), zap.Ints("failedLabels", rep.FailedLabels),
		zap.Duration("elapsed", rep.Elapsed))
}
