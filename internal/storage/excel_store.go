package storage

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/Rahul9182/Resume-screener/internal/config"
	"github.com/Rahul9182/Resume-screener/internal/types"
)

// 持久化表格的列定义，顺序固定
var columnHeaders = []string{
	"resume_id",
	"source_file_name",
	"ingested_at",
	"name",
	"email",
	"phone",
	"linkedin_url",
	"github_url",
	"highest_degree",
	"institution",
	"graduation_year",
	"major",
	"gpa",
	"total_experience_years",
	"current_company",
	"current_title",
	"previous_companies",
	"technical_skills",
	"programming_languages",
	"frameworks_tools",
	"soft_skills",
	"certifications",
	"extraction_strategy_used",
	"extraction_confidence_notes",
	"unresolved_fields",
}

const listSeparator = ", "

// Filter 记录查询条件，零值字段不参与过滤
type Filter struct {
	Query         string   // 姓名或邮箱的子串匹配，大小写不敏感
	MinExperience *float64 // 最低经验年限
	MaxExperience *float64 // 最高经验年限
	Degrees       []string // 学历白名单，大小写不敏感
}

// Stats 存储的汇总统计
type Stats struct {
	Total         int            `json:"total"`
	ByStrategy    map[string]int `json:"by_strategy"`
	ByDegree      map[string]int `json:"by_degree"`
	WithEmail     int            `json:"with_email"`
	AvgExperience float64        `json:"avg_experience"` // 只统计有经验年限的记录
}

// ExcelStore 以单个xlsx文件为唯一持久化载体的记录存储。
// 全量记录常驻内存，每次修改后整表重写：先写同目录临时文件再原子改名，
// 避免写一半的文件被读到。所有修改经互斥锁串行化。
type ExcelStore struct {
	path        string
	sheet       string
	identityKey string

	mu      sync.RWMutex
	records []*types.CandidateRecord
	index   map[string]int // 身份键 -> records下标

	logger zerolog.Logger
}

// NewExcelStore 创建记录存储，文件已存在时加载全部记录
func NewExcelStore(cfg config.StoreConfig, logger zerolog.Logger) (*ExcelStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("存储文件路径不能为空")
	}

	sheet := cfg.SheetName
	if sheet == "" {
		sheet = "Resumes"
	}
	identityKey := cfg.IdentityKey
	if identityKey != "email" && identityKey != "resume_id" {
		identityKey = "email"
	}

	store := &ExcelStore{
		path:        cfg.Path,
		sheet:       sheet,
		identityKey: identityKey,
		index:       make(map[string]int),
		logger:      logger.With().Str("component", "excel_store").Logger(),
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	if _, err := os.Stat(cfg.Path); err == nil {
		if err := store.load(); err != nil {
			return nil, fmt.Errorf("加载存储文件失败: %w", err)
		}
		store.logger.Info().Int("records", len(store.records)).Str("path", cfg.Path).Msg("已加载现有记录")
	}

	return store, nil
}

// identityOf 计算一条记录的身份键
func (s *ExcelStore) identityOf(record *types.CandidateRecord) string {
	if s.identityKey == "email" {
		if email := record.IdentityEmail(); email != "" {
			return "email:" + email
		}
		// 没有邮箱的记录退化为按resume_id独立存在
	}
	return "id:" + record.ResumeID
}

// Append 写入一条记录。身份键命中已有记录时新记录整体替换旧记录，
// 并保证IngestedAt严格递增；否则追加到末尾。成功后整表落盘。
func (s *ExcelStore) Append(ctx context.Context, record *types.CandidateRecord) (*types.CandidateRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	identity := s.identityOf(record)
	stored := cloneRecord(record)

	merged := false
	var prev *types.CandidateRecord
	idx, exists := s.index[identity]
	if exists {
		prev = s.records[idx]
		// 重复提交的时间戳保持单调，避免排序抖动
		if !stored.IngestedAt.After(prev.IngestedAt) {
			stored.IngestedAt = prev.IngestedAt.Add(time.Millisecond)
		}
		s.records[idx] = stored
		merged = true
	} else {
		s.records = append(s.records, stored)
		s.index[identity] = len(s.records) - 1
	}

	if err := s.save(); err != nil {
		// 落盘失败时回滚内存态，读到的永远是上一次成功落盘的内容
		if merged {
			s.records[idx] = prev
		} else {
			s.records = s.records[:len(s.records)-1]
			delete(s.index, identity)
		}
		return nil, false, err
	}

	s.logger.Debug().
		Str("resume_id", stored.ResumeID).
		Bool("merged", merged).
		Msg("记录已写入")

	return cloneRecord(stored), merged, nil
}

// Delete 按resume_id删除记录，返回实际删除的条数
func (s *ExcelStore) Delete(ctx context.Context, resumeIDs []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	toDelete := make(map[string]bool, len(resumeIDs))
	for _, id := range resumeIDs {
		toDelete[id] = true
	}

	kept := make([]*types.CandidateRecord, 0, len(s.records))
	deleted := 0
	for _, record := range s.records {
		if toDelete[record.ResumeID] {
			deleted++
			continue
		}
		kept = append(kept, record)
	}

	if deleted == 0 {
		return 0, nil
	}

	prevRecords := s.records
	s.records = kept
	s.rebuildIndex()

	if err := s.save(); err != nil {
		s.records = prevRecords
		s.rebuildIndex()
		return 0, err
	}

	s.logger.Info().Int("deleted", deleted).Msg("记录已删除")
	return deleted, nil
}

// List 按条件过滤记录，返回副本
func (s *ExcelStore) List(ctx context.Context, filter Filter) ([]*types.CandidateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	degrees := make(map[string]bool, len(filter.Degrees))
	for _, d := range filter.Degrees {
		degrees[strings.ToLower(strings.TrimSpace(d))] = true
	}

	out := make([]*types.CandidateRecord, 0, len(s.records))
	for _, record := range s.records {
		if query != "" &&
			!strings.Contains(strings.ToLower(record.Name), query) &&
			!strings.Contains(strings.ToLower(record.Email), query) {
			continue
		}
		if filter.MinExperience != nil &&
			(record.TotalExperienceYears == nil || *record.TotalExperienceYears < *filter.MinExperience) {
			continue
		}
		if filter.MaxExperience != nil &&
			record.TotalExperienceYears != nil && *record.TotalExperienceYears > *filter.MaxExperience {
			continue
		}
		if len(degrees) > 0 && !degrees[strings.ToLower(record.HighestDegree)] {
			continue
		}
		out = append(out, cloneRecord(record))
	}
	return out, nil
}

// FindByIdentity 按身份键查找记录：identity_key为email时传邮箱，
// 否则传resume_id。未命中时返回nil
func (s *ExcelStore) FindByIdentity(ctx context.Context, identity string) (*types.CandidateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	probe := &types.CandidateRecord{ResumeID: identity}
	if s.identityKey == "email" {
		probe = &types.CandidateRecord{Email: identity}
	}

	if idx, ok := s.index[s.identityOf(probe)]; ok {
		return cloneRecord(s.records[idx]), nil
	}
	return nil, nil
}

// FindByID 按resume_id查找记录
func (s *ExcelStore) FindByID(ctx context.Context, resumeID string) (*types.CandidateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.records {
		if record.ResumeID == resumeID {
			return cloneRecord(record), nil
		}
	}
	return nil, nil
}

// Count 返回记录总数
func (s *ExcelStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// GetStats 返回汇总统计
func (s *ExcelStore) GetStats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		Total:      len(s.records),
		ByStrategy: make(map[string]int),
		ByDegree:   make(map[string]int),
	}
	expSum := 0.0
	expCount := 0
	for _, record := range s.records {
		if record.ExtractionStrategy != "" {
			stats.ByStrategy[record.ExtractionStrategy]++
		}
		if record.HighestDegree != "" {
			stats.ByDegree[record.HighestDegree]++
		}
		if record.Email != "" {
			stats.WithEmail++
		}
		if record.TotalExperienceYears != nil {
			expSum += *record.TotalExperienceYears
			expCount++
		}
	}
	if expCount > 0 {
		stats.AvgExperience = math.Round(expSum/float64(expCount)*10) / 10
	}
	return stats, nil
}

// Export 按条件导出记录为xlsx字节流，columns为空时导出全部列
func (s *ExcelStore) Export(ctx context.Context, filter Filter, columns []string) ([]byte, error) {
	records, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	headers := columns
	if len(headers) == 0 {
		headers = columnHeaders
	} else {
		valid := make(map[string]bool, len(columnHeaders))
		for _, h := range columnHeaders {
			valid[h] = true
		}
		for _, h := range headers {
			if !valid[h] {
				return nil, fmt.Errorf("未知的导出列: %s", h)
			}
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := s.writeSheet(f, headers, records); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("生成导出文件失败: %w", err)
	}
	return buf.Bytes(), nil
}

// rebuildIndex 重建身份键索引，调用方必须持有写锁
func (s *ExcelStore) rebuildIndex() {
	s.index = make(map[string]int, len(s.records))
	for idx, record := range s.records {
		s.index[s.identityOf(record)] = idx
	}
}

// save 整表重写：先写同目录临时文件，再原子改名覆盖。调用方必须持有写锁。
func (s *ExcelStore) save() error {
	f := excelize.NewFile()
	defer f.Close()

	if err := s.writeSheet(f, columnHeaders, s.records); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".resumes-*.xlsx")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("替换存储文件失败: %w", err)
	}
	return nil
}

// writeSheet 把记录写入工作簿的目标工作表
func (s *ExcelStore) writeSheet(f *excelize.File, headers []string, records []*types.CandidateRecord) error {
	index, err := f.NewSheet(s.sheet)
	if err != nil {
		return fmt.Errorf("创建工作表失败: %w", err)
	}
	f.SetActiveSheet(index)
	if s.sheet != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(s.sheet, cell, header); err != nil {
			return err
		}
	}

	for rowIdx, record := range records {
		values := recordToRow(record)
		for col, header := range headers {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return err
			}
			value, ok := values[header]
			if !ok || value == nil {
				continue
			}
			if err := f.SetCellValue(s.sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordToRow 把记录展开为列名到单元格值的映射，nil值表示空单元格
func recordToRow(record *types.CandidateRecord) map[string]interface{} {
	row := map[string]interface{}{
		"resume_id":                   record.ResumeID,
		"source_file_name":            record.SourceFileName,
		"ingested_at":                 record.IngestedAt.Format(time.RFC3339Nano),
		"name":                        emptyAsNil(record.Name),
		"email":                       emptyAsNil(record.Email),
		"phone":                       emptyAsNil(record.Phone),
		"linkedin_url":                emptyAsNil(record.LinkedinURL),
		"github_url":                  emptyAsNil(record.GithubURL),
		"highest_degree":              emptyAsNil(record.HighestDegree),
		"institution":                 emptyAsNil(record.Institution),
		"major":                       emptyAsNil(record.Major),
		"current_company":             emptyAsNil(record.CurrentCompany),
		"current_title":               emptyAsNil(record.CurrentTitle),
		"previous_companies":          listAsCell(record.PreviousCompanies),
		"technical_skills":            listAsCell(record.TechnicalSkills),
		"programming_languages":       listAsCell(record.ProgrammingLanguages),
		"frameworks_tools":            listAsCell(record.FrameworksTools),
		"soft_skills":                 listAsCell(record.SoftSkills),
		"certifications":              listAsCell(record.Certifications),
		"extraction_strategy_used":    record.ExtractionStrategy,
		"extraction_confidence_notes": emptyAsNil(record.ConfidenceNotes),
		"unresolved_fields":           listAsCell(record.UnresolvedFields),
	}
	if record.GraduationYear != nil {
		row["graduation_year"] = *record.GraduationYear
	}
	if record.GPA != nil {
		row["gpa"] = *record.GPA
	}
	if record.TotalExperienceYears != nil {
		row["total_experience_years"] = *record.TotalExperienceYears
	}
	return row
}

func emptyAsNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func listAsCell(items []string) interface{} {
	if len(items) == 0 {
		return nil
	}
	return strings.Join(items, listSeparator)
}

// load 从现有文件加载全部记录
func (s *ExcelStore) load() error {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("打开存储文件失败: %w", err)
	}
	defer f.Close()

	sheet := s.sheet
	sheets := f.GetSheetList()
	found := false
	for _, name := range sheets {
		if name == sheet {
			found = true
			break
		}
	}
	// 兼容手工改过工作表名的文件
	if !found && len(sheets) > 0 {
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("读取工作表失败: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	headerIdx := make(map[string]int, len(rows[0]))
	for idx, header := range rows[0] {
		headerIdx[strings.TrimSpace(header)] = idx
	}

	for _, row := range rows[1:] {
		record := rowToRecord(row, headerIdx)
		if record == nil {
			continue
		}
		s.records = append(s.records, record)
	}
	s.rebuildIndex()
	return nil
}

// rowToRecord 把一行单元格还原为记录，缺少resume_id的行被跳过
func rowToRecord(row []string, headerIdx map[string]int) *types.CandidateRecord {
	get := func(header string) string {
		idx, ok := headerIdx[header]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	resumeID := get("resume_id")
	if resumeID == "" {
		return nil
	}

	record := &types.CandidateRecord{
		ResumeID:             resumeID,
		SourceFileName:       get("source_file_name"),
		Name:                 get("name"),
		Email:                get("email"),
		Phone:                get("phone"),
		LinkedinURL:          get("linkedin_url"),
		GithubURL:            get("github_url"),
		HighestDegree:        get("highest_degree"),
		Institution:          get("institution"),
		Major:                get("major"),
		CurrentCompany:       get("current_company"),
		CurrentTitle:         get("current_title"),
		PreviousCompanies:    cellAsList(get("previous_companies")),
		TechnicalSkills:      cellAsList(get("technical_skills")),
		ProgrammingLanguages: cellAsList(get("programming_languages")),
		FrameworksTools:      cellAsList(get("frameworks_tools")),
		SoftSkills:           cellAsList(get("soft_skills")),
		Certifications:       cellAsList(get("certifications")),
		ExtractionStrategy:   get("extraction_strategy_used"),
		ConfidenceNotes:      get("extraction_confidence_notes"),
		UnresolvedFields:     cellAsList(get("unresolved_fields")),
	}

	if t, err := time.Parse(time.RFC3339Nano, get("ingested_at")); err == nil {
		record.IngestedAt = t
	}
	if year, err := strconv.Atoi(get("graduation_year")); err == nil {
		record.GraduationYear = &year
	}
	if gpa, err := strconv.ParseFloat(get("gpa"), 64); err == nil {
		record.GPA = &gpa
	}
	if exp, err := strconv.ParseFloat(get("total_experience_years"), 64); err == nil {
		record.TotalExperienceYears = &exp
	}

	return record
}

func cellAsList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// cloneRecord 深拷贝一条记录，隔离内部状态和调用方
func cloneRecord(record *types.CandidateRecord) *types.CandidateRecord {
	clone := *record
	if record.GraduationYear != nil {
		year := *record.GraduationYear
		clone.GraduationYear = &year
	}
	if record.GPA != nil {
		gpa := *record.GPA
		clone.GPA = &gpa
	}
	if record.TotalExperienceYears != nil {
		exp := *record.TotalExperienceYears
		clone.TotalExperienceYears = &exp
	}
	clone.PreviousCompanies = append([]string(nil), record.PreviousCompanies...)
	clone.TechnicalSkills = append([]string(nil), record.TechnicalSkills...)
	clone.ProgrammingLanguages = append([]string(nil), record.ProgrammingLanguages...)
	clone.FrameworksTools = append([]string(nil), record.FrameworksTools...)
	clone.SoftSkills = append([]string(nil), record.SoftSkills...)
	clone.Certifications = append([]string(nil), record.Certifications...)
	clone.UnresolvedFields = append([]string(nil), record.UnresolvedFields...)
	return &clone
}
