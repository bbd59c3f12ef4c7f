package lsmsvec

import (
	"github.com/lukeroth/gdal"
)

// 瓦片左上角为(x, y)像素时的地理变换
func tileGeoTransform(gt [6]float64, x, y int) [6]float64 {
	fx, fy := float64(x), float64(y)
	return [6]float64{
		gt[0] + fx*gt[1] + fy*gt[2],
		gt[1],
		gt[2],
		gt[3] + fx*gt[4] + fy*gt[5],
		gt[4],
		gt[5],
	}
}

// 将面或多面拆成单个面加入多面集合dst
func addPolygons(dst, src gdal.Geometry) (err error) {
	switch src.Type() {
	case gdal.GT_Polygon:
		err = dst.AddGeometry(src)
	case gdal.GT_MultiPolygon:
		for i, pn := 0, src.GeometryCount(); i < pn; i++ {
			if err = dst.AddGeometry(src.Geometry(i)); err != nil {
				return
			}
		}
	default:
		err = ErrGdalWrongGeoType
	}
	return
}

// 返回外部可见的面个数
func polygonCount(geo gdal.Geometry) int {
	switch geo.Type() {
	case gdal.GT_Polygon:
		return 1
	case gdal.GT_MultiPolygon:
		return geo.GeometryCount()
	}
	return 0
}
