package processor

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Rahul9182/Resume-screener/internal/types"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	yearPattern  = regexp.MustCompile(`(19|20)\d{2}`)
	floatPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	// "9.2/10" 或 "3.7 / 4.0" 这类带量纲的GPA写法
	gpaScalePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*(\d+(?:\.\d+)?)`)
)

const (
	minGraduationYear  = 1950
	maxExperienceYears = 60.0
)

// Normalizer 把模型的原始输出校验归一化为候选人记录。
// 无法通过校验的字段置空并记入UnresolvedFields，而不是让整条记录失败。
type Normalizer struct {
	gpaScale float64
	now      func() time.Time
}

// NormalizerOption 归一化器的配置选项
type NormalizerOption func(*Normalizer)

// WithGPAScale 设置目标GPA量纲，默认4.0
func WithGPAScale(scale float64) NormalizerOption {
	return func(n *Normalizer) {
		if scale > 0 {
			n.gpaScale = scale
		}
	}
}

// WithClock 替换时间源，测试用
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// NewNormalizer 创建归一化器
func NewNormalizer(options ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		gpaScale: 4.0,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(n)
	}
	return n
}

// Normalize 校验并归一化原始字段，生成带新ResumeID的完整记录。
// strategy为实际产出raw的提取策略，随记录持久化。
func (n *Normalizer) Normalize(raw types.RawFields, sourceFileName string, strategy string) *types.CandidateRecord {
	record := &types.CandidateRecord{
		ResumeID:           uuid.NewString(),
		SourceFileName:     sourceFileName,
		IngestedAt:         n.now(),
		ExtractionStrategy: strategy,
	}

	var unresolved []string
	markUnresolved := func(key string) {
		unresolved = append(unresolved, key)
	}

	// 按字段声明顺序处理，保证UnresolvedFields的顺序稳定
	for _, spec := range types.SchemaFields {
		value, present := raw[spec.Key]
		if !present || value == nil {
			continue
		}

		switch spec.Kind {
		case types.FieldString:
			s := strings.TrimSpace(asString(value))
			n.assignString(record, spec.Key, s)

		case types.FieldEmail:
			email, ok := normalizeEmail(asString(value))
			if !ok {
				if strings.TrimSpace(asString(value)) != "" {
					markUnresolved(spec.Key)
				}
				continue
			}
			record.Email = email

		case types.FieldPhone:
			phone, ok := normalizePhone(asString(value))
			if !ok {
				if strings.TrimSpace(asString(value)) != "" {
					markUnresolved(spec.Key)
				}
				continue
			}
			record.Phone = phone

		case types.FieldYear:
			year, ok := n.normalizeYear(value)
			if !ok {
				if strings.TrimSpace(asString(value)) != "" {
					markUnresolved(spec.Key)
				}
				continue
			}
			record.GraduationYear = &year

		case types.FieldGPA:
			gpa, ok := n.normalizeGPA(value)
			if !ok {
				if strings.TrimSpace(asString(value)) != "" {
					markUnresolved(spec.Key)
				}
				continue
			}
			record.GPA = &gpa

		case types.FieldFloat:
			f, ok := normalizeExperience(value)
			if !ok {
				if strings.TrimSpace(asString(value)) != "" {
					markUnresolved(spec.Key)
				}
				continue
			}
			record.TotalExperienceYears = &f

		case types.FieldList:
			items := normalizeList(value)
			n.assignList(record, spec.Key, items)
		}
	}

	record.UnresolvedFields = unresolved
	return record
}

// assignString 把字符串字段写入记录对应位置
func (n *Normalizer) assignString(record *types.CandidateRecord, key, value string) {
	switch key {
	case "name":
		record.Name = value
	case "linkedin_url":
		record.LinkedinURL = value
	case "github_url":
		record.GithubURL = value
	case "highest_degree":
		record.HighestDegree = value
	case "institution":
		record.Institution = value
	case "major":
		record.Major = value
	case "current_company":
		record.CurrentCompany = value
	case "current_title":
		record.CurrentTitle = value
	}
}

// assignList 把列表字段写入记录对应位置
func (n *Normalizer) assignList(record *types.CandidateRecord, key string, items []string) {
	if len(items) == 0 {
		return
	}
	switch key {
	case "previous_companies":
		record.PreviousCompanies = items
	case "technical_skills":
		record.TechnicalSkills = items
	case "programming_languages":
		record.ProgrammingLanguages = items
	case "frameworks_tools":
		record.FrameworksTools = items
	case "soft_skills":
		record.SoftSkills = items
	case "certifications":
		record.Certifications = items
	}
}

// asString 把任意JSON值转换为字符串表示
func asString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		jsonVal, _ := json.Marshal(val)
		return string(jsonVal)
	}
}

// normalizeEmail 小写化并校验邮箱形状
func normalizeEmail(s string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(s))
	if email == "" || !emailPattern.MatchString(email) {
		return "", false
	}
	return email, true
}

// normalizePhone 去掉分隔符，保留可选的前导+，要求7到15位数字
func normalizePhone(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	var sb strings.Builder
	for i, r := range s {
		if r == '+' && i == 0 {
			sb.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}

	phone := sb.String()
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return "", false
	}
	return phone, true
}

// normalizeYear 从值中找出4位年份并限制在合理区间
func (n *Normalizer) normalizeYear(v interface{}) (int, bool) {
	match := yearPattern.FindString(asString(v))
	if match == "" {
		return 0, false
	}

	year, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}

	if year < minGraduationYear || year > n.now().Year()+1 {
		return 0, false
	}
	return year, true
}

// normalizeGPA 解析GPA并换算到目标量纲。
// 带显式量纲的写法（如 9.2/10）按标注的量纲换算；
// 裸数值超过目标量纲但不超过10时按10分制处理。
func (n *Normalizer) normalizeGPA(v interface{}) (float64, bool) {
	s := asString(v)

	if m := gpaScalePattern.FindStringSubmatch(s); m != nil {
		value, err1 := strconv.ParseFloat(m[1], 64)
		scale, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil || scale <= 0 || value < 0 || value > scale {
			return 0, false
		}
		return roundTo(value*n.gpaScale/scale, 2), true
	}

	match := floatPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil || value < 0 {
		return 0, false
	}

	if value <= n.gpaScale {
		return roundTo(value, 2), true
	}
	if value <= 10 {
		return roundTo(value*n.gpaScale/10, 2), true
	}
	if value <= 100 {
		// 百分制成绩
		return roundTo(value*n.gpaScale/100, 2), true
	}
	return 0, false
}

// normalizeExperience 提取第一个数字并限制在[0, 60]年
func normalizeExperience(v interface{}) (float64, bool) {
	s := asString(v)
	match := floatPattern.FindString(s)
	if match == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}

	if value < 0 {
		value = 0
	}
	if value > maxExperienceYears {
		value = maxExperienceYears
	}
	return roundTo(value, 1), true
}

// normalizeList 接受数组或分隔符拼接的字符串，去空白并按大小写不敏感去重
func normalizeList(v interface{}) []string {
	var rawItems []string

	switch val := v.(type) {
	case []interface{}:
		for _, item := range val {
			rawItems = append(rawItems, asString(item))
		}
	case []string:
		rawItems = val
	case string:
		rawItems = splitListString(val)
	default:
		s := asString(v)
		if s != "" {
			rawItems = splitListString(s)
		}
	}

	seen := make(map[string]bool, len(rawItems))
	items := make([]string, 0, len(rawItems))
	for _, item := range rawItems {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, trimmed)
	}
	return items
}

// splitListString 按常见分隔符切分列表字符串
func splitListString(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '\n'
	})
}

func roundTo(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}

// ConfidenceNote 根据未解析字段生成一条简短的置信说明
func ConfidenceNote(unresolved []string) string {
	if len(unresolved) == 0 {
		return ""
	}
	return fmt.Sprintf("未能解析的字段: %s", strings.Join(unresolved, ", "))
}
