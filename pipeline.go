package lsmsvec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wgdzlh/lsmsvec/log"
	"github.com/wgdzlh/lsmsvec/merge"
	"github.com/wgdzlh/lsmsvec/stats"
	"github.com/wgdzlh/lsmsvec/tiling"

	"github.com/lukeroth/gdal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 瓦片处理阶段各worker共享的只读上下文
type tileJob struct {
	p        Params
	grid     tiling.Grid
	maxLabel int
	bands    int
	gt       [6]float64
	ref      gdal.SpatialReference
	store    *VectorStore
}

// 分块矢量化标签影像：逐瓦片统计并追踪多边形，最后跨瓦片合并同标签碎片并写入统计字段。
// 仅在全部成功时生成输出文件。
func (g *GdalToolbox) Vectorize(ctx context.Context, p Params) (rep Report, err error) {
	start := time.Now()
	p = p.withDefaults()
	if err = p.validate(); err != nil {
		log.Error(g.logTag+"invalid params", zap.Error(err))
		return
	}
	log.Info(g.logTag+"start vectorize", zap.String("in", p.In), zap.String("inseg", p.InSeg), zap.String("out", p.Out),
		zap.Int("tileSizeX", p.TileSizeX), zap.Int("tileSizeY", p.TileSizeY), zap.Int("workers", p.Workers))

	img, err := g.OpenRaster(p.In)
	if err != nil {
		return
	}
	defer img.Close()
	seg, err := g.OpenRaster(p.InSeg)
	if err != nil {
		return
	}
	defer seg.Close()
	if img.Width != seg.Width || img.Height != seg.Height {
		log.Error(g.logTag+"raster size mismatch", zap.Int("imgWidth", img.Width), zap.Int("imgHeight", img.Height),
			zap.Int("segWidth", seg.Width), zap.Int("segHeight", seg.Height))
		err = ErrSizeMismatch
		return
	}
	grid, err := tiling.NewGrid(img.Width, img.Height, p.TileSizeX, p.TileSizeY)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConfig, err)
		return
	}
	rep = Report{
		Out:    p.Out,
		Width:  img.Width,
		Height: img.Height,
		Bands:  img.BandCount(),
		Tiles:  grid.Len(),
	}
	if rep.MaxLabel, err = seg.MaxLabel(grid); err != nil {
		return
	}
	if rep.MaxLabel < 1 {
		log.Error(g.logTag+"no label in segmentation", zap.String("inseg", p.InSeg))
		err = ErrNoLabels
		return
	}
	ref, err := g.getWktRef(img.Projection())
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrIO, err)
		return
	}
	if ref == emptySpatialRef {
		log.Warn(g.logTag+"image has no projection, output layer without srs", zap.String("in", p.In))
	}

	store, err := g.CreateVectorStore(p, rep.Bands, ref)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			store.Discard()
		}
	}()
	job := &tileJob{
		p:        p,
		grid:     grid,
		maxLabel: rep.MaxLabel,
		bands:    rep.Bands,
		gt:       img.GeoTransform(),
		ref:      ref,
		store:    store,
	}
	acc, fragments, err := g.processTiles(ctx, job)
	if err != nil {
		return
	}
	rep.Fragments = fragments
	rep.SkippedPixels = acc.Skipped()
	log.Info(g.logTag+"tiles processed", zap.Int("tiles", rep.Tiles), zap.Int("fragments", fragments),
		zap.Int("maxLabel", rep.MaxLabel), zap.Duration("elapsed", time.Since(start)))

	res, err := merge.New(store, g, acc, merge.Options{Tolerance: SimplifyT, Strict: p.Strict}).Run(ctx)
	if err != nil {
		log.Error(g.logTag+"merge failed", zap.Error(err))
		return
	}
	rep.Labels = res.Labels
	rep.Merged = res.Merged
	rep.Deleted = res.Deleted
	rep.FailedLabels = res.FailedLabels()
	if err = store.Finalize(); err != nil {
		return
	}
	rep.Elapsed = time.Since(start)
	log.Info(g.logTag+"vectorize done", zap.String("out", p.Out), zap.Int("labels", rep.Labels),
		zap.Int("merged", rep.Merged), zap.Ints("failedLabels", rep.FailedLabels), zap.Duration("elapsed", rep.Elapsed))
	return
}

// 并行处理全部瓦片：worker w处理第w, w+N, w+2N...个瓦片，各自持有栅格句柄与累加器，
// 结束后按worker顺序归并累加器
func (g *GdalToolbox) processTiles(parent context.Context, job *tileJob) (acc *stats.Accumulator, fragments int, err error) {
	var (
		n      = job.p.Workers
		accs   = make([]*stats.Accumulator, n)
		counts = make([]int, n)
		errs   = make([]error, n)
	)
	eg, ctx := errgroup.WithContext(parent)
	for w := 0; w < n; w++ {
		w := w
		eg.Go(func() error {
			accs[w], counts[w], errs[w] = g.runWorker(ctx, w, job)
			return errs[w]
		})
	}
	// Wait只返回首个错误，全部瓦片错误由errs汇总
	_ = eg.Wait()
	if err = parent.Err(); err != nil {
		return
	}
	if err = tileFailures(errs); err != nil {
		log.Error(g.logTag+"tile processing failed", zap.Error(err))
		return
	}
	acc = accs[0]
	fragments = counts[0]
	for w := 1; w < n; w++ {
		if err = acc.Merge(accs[w]); err != nil {
			return
		}
		fragments += counts[w]
	}
	return
}

// 汇总各worker错误；其他worker因取消而退出的错误不计入
func tileFailures(errs []error) (err error) {
	for _, e := range errs {
		if e != nil && !errors.Is(e, context.Canceled) {
			err = multierr.Append(err, e)
		}
	}
	return
}

func (g *GdalToolbox) runWorker(ctx context.Context, w int, job *tileJob) (acc *stats.Accumulator, fragments int, err error) {
	if acc, err = stats.NewAccumulator(job.maxLabel, job.bands); err != nil {
		return
	}
	img, err := g.OpenRaster(job.p.In)
	if err != nil {
		return
	}
	defer img.Close()
	seg, err := g.OpenRaster(job.p.InSeg)
	if err != nil {
		return
	}
	defer seg.Close()
	// 空间参考对象非并发安全，每个worker使用各自副本
	ref := job.ref
	if ref != emptySpatialRef {
		ref = job.ref.Clone()
		defer ref.Destroy()
	}
	var k int
	for i := w; i < job.grid.Len(); i += job.p.Workers {
		if err = ctx.Err(); err != nil {
			return
		}
		t := job.grid.Tile(i)
		if k, err = g.processTile(ctx, job, t, img, seg, ref, acc); err != nil {
			err = &TileError{Tile: t, Err: err}
			return
		}
		fragments += k
	}
	log.Debug(g.logTag+"worker done", zap.Int("worker", w), zap.Int("fragments", fragments))
	return
}

// 单个瓦片：精确窗口上统计，外扩窗口上追踪多边形并写入要素库
func (g *GdalToolbox) processTile(ctx context.Context, job *tileJob, t tiling.Tile, img, seg *Raster,
	ref gdal.SpatialReference, acc *stats.Accumulator) (n int, err error) {
	if job.p.TileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.p.TileTimeout)
		defer cancel()
	}
	pixels, err := img.ReadBands(t)
	if err != nil {
		return
	}
	labels, err := seg.ReadLabels(t)
	if err != nil {
		return
	}
	if err = acc.Accumulate(labels, pixels); err != nil {
		return
	}

	halo := t.Halo(job.grid.Width, job.grid.Height)
	if halo != t {
		if labels, err = seg.ReadLabels(halo); err != nil {
			return
		}
	}
	frags, err := g.polygonizeTile(ctx, labels, halo, job.gt, ref, job.p.EightConnected)
	if err != nil {
		return
	}
	defer frags.Destroy()
	if err = ctx.Err(); err != nil {
		return
	}
	n, err = job.store.Append(frags)
	return
}
