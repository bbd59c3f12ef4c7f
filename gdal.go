package lsmsvec

import (
	"sync"

	"github.com/wgdzlh/lsmsvec/log"
	"github.com/wgdzlh/lsmsvec/merge"

	"github.com/airbusgeo/godal"
	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

type GdalToolbox struct {
	refMap map[string]gdal.SpatialReference
	rLock  sync.Mutex
	logTag string
}

// 由GDAL库C语言创建的内存对象，需要手动调用Destroy回收
type destroyable interface {
	Destroy()
}

var (
	emptyGeometry   = gdal.Geometry{}
	emptyLayer      = gdal.Layer{}
	emptyFeature    = gdal.Feature{}
	emptySpatialRef = gdal.SpatialReference{}

	registerOnce sync.Once
)

// 初始化GDAL工具箱
func NewGdalToolbox() *GdalToolbox {
	registerOnce.Do(godal.RegisterAll)
	return &GdalToolbox{
		refMap: map[string]gdal.SpatialReference{},
		logTag: "GdalToolbox:",
	}
}

// 获取WKT对应的坐标系（可复用，故无需回收）；WKT为空时返回空坐标系
func (g *GdalToolbox) getWktRef(wkt string) (ref gdal.SpatialReference, err error) {
	if wkt == "" {
		return
	}
	g.rLock.Lock()
	defer g.rLock.Unlock()
	ref, ok := g.refMap[wkt]
	if ok {
		return
	}
	ref = gdal.CreateSpatialReference("")
	if err = ref.FromWKT(wkt); err != nil {
		log.Error(g.logTag+"set ref from wkt failed", zap.String("wkt", wkt), zap.Error(err))
		ref.Destroy()
		return
	}
	// 数据轴次序固定为传统GIS坐标序(经度,纬度)/(东,北)，与影像地理变换一致
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	g.refMap[wkt] = ref
	return
}

// 合并引擎中的几何对象
type gdalGeometry struct {
	gdal.Geometry
}

func (geo gdalGeometry) Release() {
	geo.Destroy()
}

// 多个面的级联并集（参与的几何对象不被修改）
func (g *GdalToolbox) UnionCascaded(parts []merge.Geometry) (ret merge.Geometry, err error) {
	coll := gdal.Create(gdal.GT_MultiPolygon)
	defer coll.Destroy()
	for _, p := range parts {
		geo, ok := p.(gdalGeometry)
		if !ok {
			err = ErrGdalWrongGeoType
			return
		}
		if err = addPolygons(coll, geo.Geometry); err != nil {
			log.Error(g.logTag+"collect polygons failed", zap.Error(err))
			return
		}
	}
	u := coll.UnionCascaded()
	if u == emptyGeometry {
		err = ErrUnionFailed
		return
	}
	if u.IsEmpty() {
		u.Destroy()
		err = ErrUnionFailed
		return
	}
	ret = gdalGeometry{u}
	return
}

func (g *GdalToolbox) Simplify(geom merge.Geometry, tolerance float64) (ret merge.Geometry, err error) {
	geo, ok := geom.(gdalGeometry)
	if !ok {
		err = ErrGdalWrongGeoType
		return
	}
	s := geo.Simplify(tolerance)
	if s == emptyGeometry {
		err = ErrSimplifyFailed
		return
	}
	if s.IsEmpty() && !geo.IsEmpty() {
		s.Destroy()
		err = ErrSimplifyFailed
		return
	}
	ret = gdalGeometry{s}
	return
}
