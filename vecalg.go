package lsmsvec

import (
	"context"

	"github.com/wgdzlh/lsmsvec/log"
	"github.com/wgdzlh/lsmsvec/tiling"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// 瓦片矢量化结果，存于内存图层，用完需Destroy
type tileFragments struct {
	ds    gdal.DataSource
	layer gdal.Layer
	count int
}

func (f *tileFragments) Destroy() {
	f.ds.Destroy()
}

// GDAL进度回调；data会随回调传入C，不可携带Go指针，取消只在瓦片粒度上检查
func noProgress(complete float64, message string, data interface{}) int {
	return 1
}

// 将瓦片窗口内的标签追踪为多边形，每个多边形带标签字段；标签0作为掩膜不参与追踪
func (g *GdalToolbox) polygonizeTile(ctx context.Context, labels []int32, win tiling.Tile, gt [6]float64,
	ref gdal.SpatialReference, eightConnected bool) (ret *tileFragments, err error) {
	drv, err := gdal.GetDriverByName(MEM_RASTER_DRIVER)
	if err != nil {
		log.Error(g.logTag+"get mem raster driver failed", zap.Error(err))
		err = ErrGdalDriverCreate
		return
	}
	mds := drv.Create("", win.SizeX, win.SizeY, 1, gdal.Int32, nil)
	defer mds.Close()
	if err = mds.SetGeoTransform(tileGeoTransform(gt, win.StartX, win.StartY)); err != nil {
		log.Error(g.logTag+"set tile geotransform failed", zap.Stringer("tile", win), zap.Error(err))
		err = ErrPolygonize
		return
	}
	band := mds.RasterBand(1)
	if err = band.IO(gdal.Write, 0, 0, win.SizeX, win.SizeY, labels, win.SizeX, win.SizeY, 0, 0); err != nil {
		log.Error(g.logTag+"write tile labels failed", zap.Stringer("tile", win), zap.Error(err))
		err = ErrPolygonize
		return
	}

	vds, ok := gdal.OGRDriverByName(MEM_VECTOR_DRIVER).Create("", nil)
	if !ok {
		err = ErrGdalDriverCreate
		return
	}
	defer func() {
		if err != nil {
			vds.Destroy()
		}
	}()
	layer := vds.CreateLayer(TMP_TILE_LAYER, ref, gdal.GT_Polygon, nil)
	if layer == emptyLayer {
		err = ErrGdalCreateLayer
		return
	}
	fd := gdal.CreateFieldDefinition(SHP_FIELD_LABEL, gdal.FT_Integer)
	err = layer.CreateField(fd, false)
	fd.Destroy()
	if err != nil {
		log.Error(g.logTag+"create tile label field failed", zap.Error(err))
		err = ErrGdalCreateLayer
		return
	}

	var opts []string
	if eightConnected {
		opts = []string{CONNECTED_8_OPTION}
	}
	if err = ctx.Err(); err != nil {
		return
	}
	if err = band.Polygonize(band, layer, 0, opts, noProgress, nil); err != nil {
		log.Error(g.logTag+"polygonize tile failed", zap.Stringer("tile", win), zap.Error(err))
		err = ErrPolygonize
		return
	}
	if err = ctx.Err(); err != nil {
		return
	}
	count, _ := layer.FeatureCount(true)
	ret = &tileFragments{ds: vds, layer: layer, count: count}
	log.Debug(g.logTag+"tile polygonized", zap.Stringer("tile", win), zap.Int("fragments", count))
	return
}
