package lsmsvec

import (
	"math"

	"github.com/wgdzlh/lsmsvec/log"
	"github.com/wgdzlh/lsmsvec/tiling"

	gdal "github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// 只读栅格，按瓦片窗口读取；非并发安全，每个worker各自打开
type Raster struct {
	ds     *gdal.Dataset
	bands  []gdal.Band
	path   string
	Width  int
	Height int
	logTag string
}

func (g *GdalToolbox) OpenRaster(tif string) (r *Raster, err error) {
	sds, err := gdal.Open(tif, gdal.RasterOnly())
	if err != nil {
		log.Error(g.logTag+"open tif failed", zap.String("tif", tif), zap.Error(err))
		err = ErrInvalidTif
		return
	}
	st := sds.Structure()
	if st.NBands < 1 {
		log.Error(g.logTag+"tif has no band", zap.String("tif", tif))
		sds.Close()
		err = ErrNoBands
		return
	}
	r = &Raster{
		ds:     sds,
		bands:  sds.Bands(),
		path:   tif,
		Width:  st.SizeX,
		Height: st.SizeY,
		logTag: g.logTag,
	}
	log.Debug(g.logTag+"tif opened", zap.String("tif", tif), zap.Int("width", r.Width), zap.Int("height", r.Height),
		zap.Int("bands", len(r.bands)))
	return
}

func (r *Raster) BandCount() int {
	return len(r.bands)
}

// 读取瓦片窗口内全部波段，pixels[b]为第b波段行优先像素
func (r *Raster) ReadBands(t tiling.Tile) (pixels [][]float64, err error) {
	pixels = make([][]float64, len(r.bands))
	for i, band := range r.bands {
		pixels[i] = make([]float64, t.Pixels())
		if err = band.IO(gdal.IORead, t.StartX, t.StartY, pixels[i], t.SizeX, t.SizeY); err != nil {
			log.Error(r.logTag+"read tif band failed", zap.String("tif", r.path), zap.Int("band", i),
				zap.Stringer("tile", t), zap.Error(err))
			err = ErrTifReadFailed
			return
		}
	}
	return
}

// 读取瓦片窗口内首波段标签，负值按背景0处理
func (r *Raster) ReadLabels(t tiling.Tile) (labels []int32, err error) {
	labels = make([]int32, t.Pixels())
	if err = r.bands[0].IO(gdal.IORead, t.StartX, t.StartY, labels, t.SizeX, t.SizeY); err != nil {
		log.Error(r.logTag+"read label band failed", zap.String("tif", r.path), zap.Stringer("tile", t), zap.Error(err))
		err = ErrTifReadFailed
		return
	}
	for i, l := range labels {
		if l < 0 {
			labels[i] = 0
		}
	}
	return
}

// 逐瓦片扫描标签最大值；按float64读取以发现超出int32范围的标签（如UInt32影像），避免读为int32时被截断
func (r *Raster) MaxLabel(grid tiling.Grid) (maxLabel int, err error) {
	for i, n := 0, grid.Len(); i < n; i++ {
		t := grid.Tile(i)
		values := make([]float64, t.Pixels())
		if err = r.bands[0].IO(gdal.IORead, t.StartX, t.StartY, values, t.SizeX, t.SizeY); err != nil {
			log.Error(r.logTag+"read label band failed", zap.String("tif", r.path), zap.Stringer("tile", t), zap.Error(err))
			err = ErrTifReadFailed
			return
		}
		for _, v := range values {
			if v > math.MaxInt32 {
				log.Error(r.logTag+"label out of int32 range", zap.String("tif", r.path), zap.Stringer("tile", t),
					zap.Float64("label", v))
				err = ErrLabelRange
				return
			}
			if int(v) > maxLabel {
				maxLabel = int(v)
			}
		}
	}
	return
}

func (r *Raster) Projection() string {
	return r.ds.Projection()
}

// 无地理变换的影像按像素坐标处理
func (r *Raster) GeoTransform() (gt [6]float64) {
	gt, err := r.ds.GeoTransform()
	if err != nil {
		log.Warn(r.logTag+"tif has no geotransform, use pixel coordinates", zap.String("tif", r.path))
		gt = [6]float64{0, 1, 0, 0, 0, 1}
	}
	return
}

func (r *Raster) Close() {
	if err := r.ds.Close(); err != nil {
		log.Warn(r.logTag+"close tif failed", zap.String("tif", r.path), zap.Error(err))
	}
}
