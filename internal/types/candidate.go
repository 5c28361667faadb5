package types

import (
	"strings"
	"time"
)

// FieldKind 提取字段的值类型，归一化器据此选择解析规则
type FieldKind string

const (
	FieldString FieldKind = "string"
	FieldYear   FieldKind = "year"
	FieldFloat  FieldKind = "float"
	FieldGPA    FieldKind = "gpa"
	FieldEmail  FieldKind = "email"
	FieldPhone  FieldKind = "phone"
	FieldList   FieldKind = "list"
)

// FieldSpec 描述一个提取字段：键名、类型和给模型看的说明
type FieldSpec struct {
	Key         string
	Kind        FieldKind
	Description string
}

// SchemaFields 提取目标字段的全集，顺序即持久化列顺序。
// 键名同时作为提示词中的JSON键和表格列名，不要随意改动。
var SchemaFields = []FieldSpec{
	{Key: "name", Kind: FieldString, Description: "Full name of the candidate"},
	{Key: "email", Kind: FieldEmail, Description: "Primary email address"},
	{Key: "phone", Kind: FieldPhone, Description: "Primary phone number, digits with optional leading +"},
	{Key: "linkedin_url", Kind: FieldString, Description: "LinkedIn profile URL"},
	{Key: "github_url", Kind: FieldString, Description: "GitHub profile URL"},
	{Key: "highest_degree", Kind: FieldString, Description: "Highest degree obtained or in progress, e.g. B.Tech, M.S., PhD"},
	{Key: "institution", Kind: FieldString, Description: "Institution that granted or is granting the highest degree"},
	{Key: "graduation_year", Kind: FieldYear, Description: "Graduation year of the highest degree as a 4-digit year"},
	{Key: "major", Kind: FieldString, Description: "Major or field of study of the highest degree"},
	{Key: "gpa", Kind: FieldGPA, Description: "GPA or CGPA, keep the original scale, e.g. 3.7 or 9.2/10"},
	{Key: "total_experience_years", Kind: FieldFloat, Description: "Total professional experience in years as a number"},
	{Key: "current_company", Kind: FieldString, Description: "Current or most recent employer"},
	{Key: "current_title", Kind: FieldString, Description: "Current or most recent job title"},
	{Key: "previous_companies", Kind: FieldList, Description: "Previous employers, excluding the current one"},
	{Key: "technical_skills", Kind: FieldList, Description: "General technical skills"},
	{Key: "programming_languages", Kind: FieldList, Description: "Programming languages"},
	{Key: "frameworks_tools", Kind: FieldList, Description: "Frameworks, libraries and tools"},
	{Key: "soft_skills", Kind: FieldList, Description: "Soft skills"},
	{Key: "certifications", Kind: FieldList, Description: "Professional certifications"},
}

// SchemaFieldKeys 按声明顺序返回全部字段键名
func SchemaFieldKeys() []string {
	keys := make([]string, 0, len(SchemaFields))
	for _, f := range SchemaFields {
		keys = append(keys, f.Key)
	}
	return keys
}

// RawFields 模型原始输出，尚未经过校验归一化
type RawFields map[string]interface{}

// PageImage 渲染出的单页位图，页码从1开始
type PageImage struct {
	PageNumber int
	JPEG       []byte
	Width      int
	Height     int
}

// CandidateRecord 归一化后的候选人记录，是持久化和查询的唯一实体
type CandidateRecord struct {
	ResumeID       string    `json:"resume_id"`
	SourceFileName string    `json:"source_file_name"`
	IngestedAt     time.Time `json:"ingested_at"`

	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LinkedinURL string `json:"linkedin_url,omitempty"`
	GithubURL   string `json:"github_url,omitempty"`

	HighestDegree  string   `json:"highest_degree,omitempty"`
	Institution    string   `json:"institution,omitempty"`
	GraduationYear *int     `json:"graduation_year,omitempty"`
	Major          string   `json:"major,omitempty"`
	GPA            *float64 `json:"gpa,omitempty"`

	TotalExperienceYears *float64 `json:"total_experience_years,omitempty"`
	CurrentCompany       string   `json:"current_company,omitempty"`
	CurrentTitle         string   `json:"current_title,omitempty"`
	PreviousCompanies    []string `json:"previous_companies,omitempty"`

	TechnicalSkills      []string `json:"technical_skills,omitempty"`
	ProgrammingLanguages []string `json:"programming_languages,omitempty"`
	FrameworksTools      []string `json:"frameworks_tools,omitempty"`
	SoftSkills           []string `json:"soft_skills,omitempty"`
	Certifications       []string `json:"certifications,omitempty"`

	// 提取过程的溯源信息
	ExtractionStrategy string   `json:"extraction_strategy_used"`
	ConfidenceNotes    string   `json:"confidence_notes,omitempty"`
	UnresolvedFields   []string `json:"unresolved_fields,omitempty"`
}

// IdentityEmail 返回用于身份合并的规范化邮箱，为空表示无法按邮箱合并
func (r *CandidateRecord) IdentityEmail() string {
	return strings.ToLower(strings.TrimSpace(r.Email))
}
