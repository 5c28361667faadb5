package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Rahul9182/Resume-screener/internal/config"
	"github.com/Rahul9182/Resume-screener/internal/types"
)

func newTestStore(t *testing.T) *ExcelStore {
	t.Helper()
	return newTestStoreAt(t, filepath.Join(t.TempDir(), "resumes.xlsx"))
}

func newTestStoreAt(t *testing.T, path string) *ExcelStore {
	t.Helper()
	store, err := NewExcelStore(config.StoreConfig{
		Path:        path,
		SheetName:   "Resumes",
		IdentityKey: "email",
	}, zerolog.Nop())
	require.NoError(t, err, "无法创建存储")
	return store
}

func sampleRecord(id, email string) *types.CandidateRecord {
	year := 2021
	gpa := 3.7
	exp := 4.5
	return &types.CandidateRecord{
		ResumeID:             id,
		SourceFileName:       "jane.pdf",
		IngestedAt:           time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		Name:                 "Jane Doe",
		Email:                email,
		Phone:                "+14155550199",
		HighestDegree:        "M.S.",
		Institution:          "Stanford University",
		GraduationYear:       &year,
		Major:                "Computer Science",
		GPA:                  &gpa,
		TotalExperienceYears: &exp,
		CurrentCompany:       "Acme Corp",
		CurrentTitle:         "Senior Engineer",
		TechnicalSkills:      []string{"Docker", "Kubernetes"},
		ProgrammingLanguages: []string{"Go", "Python"},
		ExtractionStrategy:   "vision",
	}
}

func TestAppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resumes.xlsx")
	store := newTestStoreAt(t, path)

	_, merged, err := store.Append(context.Background(), sampleRecord("r1", "jane@example.com"))
	require.NoError(t, err)
	assert.False(t, merged)

	// 重新打开同一文件，记录应完整还原
	reloaded := newTestStoreAt(t, path)
	require.Equal(t, 1, reloaded.Count())

	record, err := reloaded.FindByID(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "Jane Doe", record.Name)
	assert.Equal(t, "jane@example.com", record.Email)
	require.NotNil(t, record.GraduationYear)
	assert.Equal(t, 2021, *record.GraduationYear)
	require.NotNil(t, record.GPA)
	assert.Equal(t, 3.7, *record.GPA)
	assert.Equal(t, []string{"Go", "Python"}, record.ProgrammingLanguages)
	assert.True(t, record.IngestedAt.Equal(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)))
}

func TestAppend_MergesByEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := sampleRecord("r1", "jane@example.com")
	_, _, err := store.Append(ctx, first)
	require.NoError(t, err)

	// 相同邮箱、新的resume_id：整体替换而不是新增一行
	second := sampleRecord("r2", "jane@example.com")
	second.IngestedAt = first.IngestedAt
	second.CurrentTitle = "Staff Engineer"

	stored, merged, err := store.Append(ctx, second)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, 1, store.Count())
	assert.Equal(t, "r2", stored.ResumeID)
	assert.Equal(t, "Staff Engineer", stored.CurrentTitle)
	// 时间戳不晚于旧记录时强制递增
	assert.True(t, stored.IngestedAt.After(first.IngestedAt))

	// 邮箱大小写不同也应命中同一身份
	third := sampleRecord("r3", "JANE@Example.COM")
	_, merged, err = store.Append(ctx, third)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, 1, store.Count())
}

func TestAppend_NoEmailFallsBackToID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, merged, err := store.Append(ctx, sampleRecord("r1", ""))
	require.NoError(t, err)
	assert.False(t, merged)

	// 没有邮箱的记录按resume_id各自独立
	_, merged, err = store.Append(ctx, sampleRecord("r2", ""))
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Equal(t, 2, store.Count())
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, _, err := store.Append(ctx, sampleRecord(fmt.Sprintf("r%d", i), fmt.Sprintf("u%d@example.com", i)))
		require.NoError(t, err)
	}

	deleted, err := store.Delete(ctx, []string{"r1", "r3", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, 1, store.Count())

	record, err := store.FindByID(ctx, "r2")
	require.NoError(t, err)
	require.NotNil(t, record)

	// 删除后身份索引应重建，r2的邮箱仍可合并
	replacement := sampleRecord("r9", "u2@example.com")
	_, merged, err := store.Append(ctx, replacement)
	require.NoError(t, err)
	assert.True(t, merged)
}

// breakStorePath 把存储路径指到一个以普通文件作父目录的位置，
// 之后的整表落盘必然失败。返回恢复函数。
func breakStorePath(t *testing.T, store *ExcelStore, dir string) func() {
	t.Helper()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	orig := store.path
	store.path = filepath.Join(blocker, "resumes.xlsx")
	return func() { store.path = orig }
}

func TestAppend_SaveFailureLeavesCommittedStateIntact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resumes.xlsx")
	store := newTestStoreAt(t, path)
	ctx := context.Background()

	_, _, err := store.Append(ctx, sampleRecord("r1", "jane@example.com"))
	require.NoError(t, err)

	restore := breakStorePath(t, store, dir)

	// 新身份的追加失败后不应在内存里留下痕迹
	_, _, err = store.Append(ctx, sampleRecord("r2", "john@example.com"))
	require.Error(t, err)

	records, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "r1", records[0].ResumeID)

	// 合并路径失败后已提交的版本必须原样保留
	failedMerge := sampleRecord("r1b", "jane@example.com")
	failedMerge.Name = "Someone Else"
	_, _, err = store.Append(ctx, failedMerge)
	require.Error(t, err)

	committed, err := store.FindByIdentity(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, committed)
	assert.Equal(t, "r1", committed.ResumeID)
	assert.Equal(t, "Jane Doe", committed.Name)

	// 磁盘文件保持上一次成功落盘的内容：表头 + 已提交的一条
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Resumes")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// 路径恢复后写入不受之前失败的影响
	restore()
	_, merged, err := store.Append(ctx, sampleRecord("r2", "john@example.com"))
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Equal(t, 2, store.Count())
}

func TestDelete_SaveFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	store := newTestStoreAt(t, filepath.Join(dir, "resumes.xlsx"))
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		_, _, err := store.Append(ctx, sampleRecord(fmt.Sprintf("r%d", i), fmt.Sprintf("u%d@example.com", i)))
		require.NoError(t, err)
	}

	breakStorePath(t, store, dir)

	_, err := store.Delete(ctx, []string{"r1"})
	require.Error(t, err)
	assert.Equal(t, 2, store.Count())

	// 回滚后身份索引完整，r1的邮箱仍可合并命中
	record, err := store.FindByIdentity(ctx, "u1@example.com")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "r1", record.ResumeID)
}

func TestList_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	junior := sampleRecord("r1", "junior@example.com")
	junior.Name = "Wang Wei"
	juniorExp := 1.0
	junior.TotalExperienceYears = &juniorExp
	junior.HighestDegree = "B.S."

	senior := sampleRecord("r2", "senior@example.com")
	senior.Name = "Jane Doe"
	seniorExp := 8.0
	senior.TotalExperienceYears = &seniorExp

	unknown := sampleRecord("r3", "unknown@example.com")
	unknown.Name = "Mystery"
	unknown.TotalExperienceYears = nil

	for _, r := range []*types.CandidateRecord{junior, senior, unknown} {
		_, _, err := store.Append(ctx, r)
		require.NoError(t, err)
	}

	// 子串匹配姓名或邮箱，大小写不敏感
	got, err := store.List(ctx, Filter{Query: "jane"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].ResumeID)

	// 经验下限：没有经验年限的记录不命中
	min := 2.0
	got, err = store.List(ctx, Filter{MinExperience: &min})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].ResumeID)

	// 经验上限：没有经验年限的记录放行
	max := 5.0
	got, err = store.List(ctx, Filter{MaxExperience: &max})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// 学历白名单
	got, err = store.List(ctx, Filter{Degrees: []string{"b.s."}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ResumeID)

	// 无条件返回全部
	got, err = store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestList_ReturnsCopies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Append(ctx, sampleRecord("r1", "jane@example.com"))
	require.NoError(t, err)

	got, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	// 修改返回值不应影响内部状态
	got[0].Name = "Hacked"
	got[0].TechnicalSkills[0] = "Hacked"

	record, err := store.FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", record.Name)
	assert.Equal(t, "Docker", record.TechnicalSkills[0])
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r1 := sampleRecord("r1", "a@example.com")
	r2 := sampleRecord("r2", "b@example.com")
	r2.ExtractionStrategy = "text-structured"
	r3 := sampleRecord("r3", "")
	r3.HighestDegree = "Ph.D."

	for _, r := range []*types.CandidateRecord{r1, r2, r3} {
		_, _, err := store.Append(ctx, r)
		require.NoError(t, err)
	}

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStrategy["vision"])
	assert.Equal(t, 1, stats.ByStrategy["text-structured"])
	assert.Equal(t, 2, stats.ByDegree["M.S."])
	assert.Equal(t, 1, stats.ByDegree["Ph.D."])
	assert.Equal(t, 2, stats.WithEmail)
	assert.Equal(t, 4.5, stats.AvgExperience)
}

func TestFindByIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Append(ctx, sampleRecord("r1", "jane@example.com"))
	require.NoError(t, err)

	// 身份键为email时按邮箱命中，大小写不敏感
	record, err := store.FindByIdentity(ctx, "JANE@example.com")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "r1", record.ResumeID)

	record, err = store.FindByIdentity(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestExport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Append(ctx, sampleRecord("r1", "jane@example.com"))
	require.NoError(t, err)

	data, err := store.Export(ctx, Filter{}, []string{"name", "email", "gpa"})
	require.NoError(t, err)
	require.NotEmpty(t, data)

	// 导出的文件应可被excelize直接读回
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Resumes")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"name", "email", "gpa"}, rows[0])
	assert.Equal(t, "Jane Doe", rows[1][0])
	assert.Equal(t, "jane@example.com", rows[1][1])

	// 未知列名直接报错
	_, err = store.Export(ctx, Filter{}, []string{"salary"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "未知的导出列")
}

func TestColumnHeadersCoverSchema(t *testing.T) {
	// 每个提取字段都必须有对应的持久化列
	headerSet := make(map[string]bool, len(columnHeaders))
	for _, h := range columnHeaders {
		headerSet[h] = true
	}
	for _, key := range types.SchemaFieldKeys() {
		assert.True(t, headerSet[key], "字段 %s 缺少持久化列", key)
	}
}

func TestConcurrentAppends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			record := sampleRecord(fmt.Sprintf("r%d", n), fmt.Sprintf("user%d@example.com", n))
			_, _, err := store.Append(ctx, record)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, store.Count())
}
