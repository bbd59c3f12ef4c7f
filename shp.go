package lsmsvec

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wgdzlh/lsmsvec/log"
	"github.com/wgdzlh/lsmsvec/merge"
	"github.com/wgdzlh/lsmsvec/utils"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// 输出要素库：在输出目录下的隐藏工作目录中写入，全部完成后才移动到目标位置
type VectorStore struct {
	ds        gdal.DataSource
	layer     gdal.Layer
	layerName string
	format    vectorFormat
	out       string // 最终输出
	path      string // 工作目录中的数据源
	workDir   string
	bands     int
	labelIdx  int
	nbIdx     int
	meanIdx   []int
	varIdx    []int
	txn       bool // 驱动是否支持事务
	closed    bool
	mu        sync.Mutex
	logTag    string
}

var _ merge.Store = (*VectorStore)(nil)

// 创建输出数据源和图层，并按Schema(bands)建立字段
func (g *GdalToolbox) CreateVectorStore(p Params, bands int, ref gdal.SpatialReference) (s *VectorStore, err error) {
	format, ok := formatOf(p.Out)
	if !ok {
		err = ErrUnsupportedFormat
		return
	}
	workDir, err := utils.GetUniqSubDir(filepath.Dir(p.Out))
	if err != nil {
		log.Error(g.logTag+"create work dir failed", zap.String("out", p.Out), zap.Error(err))
		err = fmt.Errorf("%w: %v", ErrIO, err)
		return
	}
	s = &VectorStore{
		format:  format,
		out:     p.Out,
		workDir: workDir,
		bands:   bands,
		logTag:  g.logTag,
	}
	defer func() {
		if err != nil {
			s.Discard()
			s = nil
		}
	}()
	if format.exportTo != "" {
		scratch := filepath.Join(workDir, TMP_SCRATCH)
		if err = os.Mkdir(scratch, os.ModePerm); err != nil {
			err = fmt.Errorf("%w: %v", ErrIO, err)
			return
		}
		s.path = filepath.Join(scratch, utils.GetFilenameWithoutExt(p.Out)+FILE_EXT_GPKG)
	} else {
		s.path = filepath.Join(workDir, filepath.Base(p.Out))
	}
	log.Info(g.logTag+"create vector store", zap.String("out", p.Out), zap.String("driver", format.driver),
		zap.String("work", s.path))
	if s.ds, ok = gdal.OGRDriverByName(format.driver).Create(s.path, nil); !ok {
		err = ErrGdalDriverCreate
		return
	}
	opts := append(append([]string{}, format.layerOpts...), p.LayerOptions...)
	s.layer = s.ds.CreateLayer(p.LayerName, ref, gdal.GT_Unknown, opts)
	if s.layer == emptyLayer {
		err = ErrGdalCreateLayer
		return
	}
	s.layerName = s.layer.Name()
	if err = s.initLayer(); err != nil {
		return
	}
	s.txn = s.layer.TestCapability(CAP_TRANSACTIONS)
	return
}

func (s *VectorStore) initLayer() (err error) {
	var fd gdal.FieldDefinition
	for _, f := range Schema(s.bands) {
		fd = gdal.CreateFieldDefinition(f.Name, f.Type)
		err = s.layer.CreateField(fd, false)
		fd.Destroy()
		if err != nil {
			log.Error(s.logTag+"create field failed", zap.String("field", f.Name), zap.Error(err))
			err = ErrGdalCreateLayer
			return
		}
	}
	def := s.layer.Definition()
	s.labelIdx = def.FieldIndex(SHP_FIELD_LABEL)
	s.nbIdx = def.FieldIndex(SHP_FIELD_NB_PIXELS)
	s.meanIdx = make([]int, s.bands)
	s.varIdx = make([]int, s.bands)
	for b := 0; b < s.bands; b++ {
		s.meanIdx[b] = def.FieldIndex(meanField(b))
		s.varIdx[b] = def.FieldIndex(varField(b))
	}
	return
}

func (s *VectorStore) Path() string {
	return s.path
}

func (s *VectorStore) LayerName() string {
	return s.layerName
}

// 追加一个瓦片的全部碎片（仅写label字段，统计字段留待合并时填写）；多个worker可并发调用
func (s *VectorStore) Append(src *tileFragments) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.begin(); err != nil {
		return
	}
	defer func() {
		if err != nil {
			s.rollback()
		}
	}()
	var (
		def = s.layer.Definition()
		sf  *gdal.Feature
		f   gdal.Feature
		e   error
	)
	src.layer.ResetReading()
	for {
		if sf = src.layer.NextFeature(); sf == nil {
			break
		}
		f = def.Create()
		f.SetFieldInteger(s.labelIdx, sf.FieldAsInteger(0))
		if e = f.SetGeometry(sf.Geometry()); e == nil {
			e = s.layer.Create(f)
		}
		f.Destroy()
		sf.Destroy()
		if e != nil {
			log.Error(s.logTag+"err in create feature of layer", zap.Error(e))
			err = ErrGdalWriteFeature
			return
		}
		n++
	}
	err = s.commit()
	return
}

func (s *VectorStore) begin() error {
	if !s.txn {
		return nil
	}
	if err := s.layer.StartTransaction(); err != nil {
		log.Error(s.logTag+"start transaction failed", zap.Error(err))
		return ErrGdalWriteFeature
	}
	return nil
}

func (s *VectorStore) commit() error {
	if !s.txn {
		return nil
	}
	if err := s.layer.CommitTransaction(); err != nil {
		log.Error(s.logTag+"commit transaction failed", zap.Error(err))
		return ErrGdalWriteFeature
	}
	return nil
}

func (s *VectorStore) rollback() error {
	if !s.txn {
		return nil
	}
	if err := s.layer.RollbackTransaction(); err != nil {
		log.Error(s.logTag+"rollback transaction failed", zap.Error(err))
		return ErrGdalWriteFeature
	}
	return nil
}

func (s *VectorStore) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin()
}

func (s *VectorStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit()
}

func (s *VectorStore) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollback()
}

type fragmentRef struct {
	fid   int64
	label int
}

// 按标签升序的碎片游标，几何在Next时按FID读取
type fragmentCursor struct {
	s    *VectorStore
	refs []fragmentRef
	i    int
}

// 按标签排序列出全部碎片；结果集在返回前释放，游标读取期间不占用语句
func (s *VectorStore) Fragments() (cur merge.Cursor, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sql := fmt.Sprintf(`SELECT %[1]s FROM "%[2]s" ORDER BY %[1]s`, SHP_FIELD_LABEL, s.layerName)
	rs := s.ds.ExecuteSQL(sql, emptyGeometry, OGR_SQL_DIALECT)
	if rs == emptyLayer {
		log.Error(s.logTag+"execute sql failed", zap.String("sql", sql))
		err = ErrGdalExecuteSQL
		return
	}
	defer s.ds.ReleaseResultSet(rs)
	c := &fragmentCursor{s: s}
	var f *gdal.Feature
	for {
		if f = rs.NextFeature(); f == nil {
			break
		}
		c.refs = append(c.refs, fragmentRef{fid: f.FID(), label: f.FieldAsInteger(0)})
		f.Destroy()
	}
	log.Info(s.logTag+"fragments listed", zap.Int("count", len(c.refs)))
	cur = c
	return
}

func (c *fragmentCursor) Next() (f merge.Fragment, ok bool, err error) {
	if c.i >= len(c.refs) {
		return
	}
	r := c.refs[c.i]
	c.i++
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	feature := c.s.layer.Feature(r.fid)
	if feature == emptyFeature {
		log.Error(c.s.logTag+"read feature failed", zap.Int64("fid", r.fid))
		err = ErrGdalReadFeature
		return
	}
	defer feature.Destroy()
	geo := feature.Geometry()
	if geo == emptyGeometry {
		log.Error(c.s.logTag+"feature without geometry", zap.Int64("fid", r.fid), zap.Int("label", r.label))
		err = ErrGdalWrongGeoType
		return
	}
	f = merge.Fragment{FID: r.fid, Label: r.label, Geom: gdalGeometry{geo.Clone()}}
	ok = true
	return
}

func (c *fragmentCursor) Close() {
	c.refs = nil
}

func (s *VectorStore) Delete(fid int64) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.layer.Delete(fid); err != nil {
		log.Error(s.logTag+"delete feature failed", zap.Int64("fid", fid), zap.Error(err))
		err = ErrGdalWriteFeature
	}
	return
}

// 写回合并后的要素：几何与统计字段
func (s *VectorStore) Update(mf merge.Feature) (err error) {
	geo, ok := mf.Geom.(gdalGeometry)
	if !ok {
		err = ErrGdalWrongGeoType
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	feature := s.layer.Feature(mf.FID)
	if feature == emptyFeature {
		log.Error(s.logTag+"read feature failed", zap.Int64("fid", mf.FID))
		err = ErrGdalReadFeature
		return
	}
	defer feature.Destroy()
	feature.SetFieldInteger(s.labelIdx, mf.Label)
	feature.SetFieldInteger64(s.nbIdx, int64(mf.NbPixels))
	for b := 0; b < s.bands && b < len(mf.Mean); b++ {
		feature.SetFieldFloat64(s.meanIdx[b], mf.Mean[b])
		feature.SetFieldFloat64(s.varIdx[b], mf.Var[b])
	}
	if err = feature.SetGeometry(geo.Geometry); err != nil {
		log.Error(s.logTag+"err in set geom of feature", zap.Int64("fid", mf.FID), zap.Error(err))
		err = ErrGdalWriteFeature
		return
	}
	if err = s.layer.SetFeature(feature); err != nil {
		log.Error(s.logTag+"err in set feature of layer", zap.Int64("fid", mf.FID), zap.Error(err))
		err = ErrGdalWriteFeature
		return
	}
	log.Debug(s.logTag+"feature updated", zap.Int64("fid", mf.FID), zap.Int("label", mf.Label),
		zap.Int("polygons", polygonCount(geo.Geometry)))
	return
}

// 关闭数据源（shp先REPACK清除已删除记录），必要时导出，再将结果移动到输出位置
func (s *VectorStore) Finalize() (err error) {
	defer s.Discard()
	if s.format.driver == SHP_DRIVER_NAME {
		// REPACK没有结果集，无需释放
		s.ds.ExecuteSQL("REPACK "+s.layerName, emptyGeometry, "")
	}
	if err = s.ds.SyncToDisk(); err != nil {
		log.Error(s.logTag+"sync to disk failed", zap.Error(err))
		err = fmt.Errorf("%w: %v", ErrIO, err)
		return
	}
	s.ds.Destroy()
	s.closed = true
	if s.format.exportTo != "" {
		if err = s.export(); err != nil {
			return
		}
	}
	// 旧shp的附属文件与新输出一同替换，失败时原样恢复
	var stale []string
	if s.format.driver == SHP_DRIVER_NAME {
		stale = utils.ShpSidecars(s.out)
	}
	moved, err := utils.ReplaceFiles(s.workDir, filepath.Dir(s.out), stale)
	if err != nil {
		log.Error(s.logTag+"replace output files failed", zap.String("out", s.out), zap.Error(err))
		err = fmt.Errorf("%w: %v", ErrIO, err)
		return
	}
	log.Info(s.logTag+"vector store finalized", zap.String("out", s.out), zap.Strings("files", moved))
	return
}

// 由GeoPackage草稿导出最终格式
func (s *VectorStore) export() (err error) {
	sds, err := gdal.OpenEx(s.path, gdal.OFVector, nil, nil, nil)
	if err != nil {
		log.Error(s.logTag+"open scratch store failed", zap.Error(err))
		err = ErrGdalDriverOpen
		return
	}
	defer sds.Close()
	dst := filepath.Join(s.workDir, filepath.Base(s.out))
	dds, err := gdal.VectorTranslate(dst, []gdal.Dataset{sds}, []string{"-f", s.format.exportTo})
	if err != nil {
		log.Error(s.logTag+"VectorTranslate failed", zap.String("dst", dst), zap.Error(err))
		err = ErrGdalExport
		return
	}
	dds.Close()
	return
}

// 放弃输出：关闭数据源并删除工作目录
func (s *VectorStore) Discard() {
	if !s.closed && s.ds != (gdal.DataSource{}) {
		s.ds.Destroy()
	}
	s.closed = true
	if err := os.RemoveAll(s.workDir); err != nil {
		log.Warn(s.logTag+"remove work dir failed", zap.String("dir", s.workDir), zap.Error(err))
	}
}
