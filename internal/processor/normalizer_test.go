package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rahul9182/Resume-screener/internal/types"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

func TestNormalize_FullRecord(t *testing.T) {
	n := NewNormalizer(WithClock(fixedClock))

	raw := types.RawFields{
		"name":                   "  Jane Doe ",
		"email":                  "Jane.Doe@Example.COM",
		"phone":                  "+1 (415) 555-0199",
		"linkedin_url":           "https://linkedin.com/in/janedoe",
		"highest_degree":         "M.S.",
		"institution":            "Stanford University",
		"graduation_year":        float64(2021),
		"major":                  "Computer Science",
		"gpa":                    3.7,
		"total_experience_years": 4.5,
		"current_company":        "Acme Corp",
		"current_title":          "Senior Engineer",
		"previous_companies":     []interface{}{"Globex", "Initech"},
		"programming_languages":  []interface{}{"Go", "Python", "go"},
	}

	record := n.Normalize(raw, "jane_doe.pdf", "vision")

	require.NotEmpty(t, record.ResumeID)
	assert.Equal(t, "jane_doe.pdf", record.SourceFileName)
	assert.Equal(t, fixedClock(), record.IngestedAt)
	assert.Equal(t, "vision", record.ExtractionStrategy)

	assert.Equal(t, "Jane Doe", record.Name)
	assert.Equal(t, "jane.doe@example.com", record.Email)
	assert.Equal(t, "+14155550199", record.Phone)
	require.NotNil(t, record.GraduationYear)
	assert.Equal(t, 2021, *record.GraduationYear)
	require.NotNil(t, record.GPA)
	assert.Equal(t, 3.7, *record.GPA)
	require.NotNil(t, record.TotalExperienceYears)
	assert.Equal(t, 4.5, *record.TotalExperienceYears)

	// 列表去重大小写不敏感，保留首次出现的写法
	assert.Equal(t, []string{"Go", "Python"}, record.ProgrammingLanguages)
	assert.Equal(t, []string{"Globex", "Initech"}, record.PreviousCompanies)
	assert.Empty(t, record.UnresolvedFields)
}

func TestNormalize_GPARescale(t *testing.T) {
	n := NewNormalizer(WithClock(fixedClock))

	tests := []struct {
		name     string
		input    interface{}
		expected float64
	}{
		{"十分制带量纲", "9.2/10", 3.68},
		{"四分制带量纲", "3.7/4.0", 3.7},
		{"裸数值四分制", 3.5, 3.5},
		{"裸数值十分制", 9.2, 3.68},
		{"百分制", float64(85), 3.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := n.Normalize(types.RawFields{"gpa": tt.input}, "a.pdf", "text-structured")
			require.NotNil(t, record.GPA, "GPA应被解析")
			assert.InDelta(t, tt.expected, *record.GPA, 0.001)
		})
	}
}

func TestNormalize_InvalidValuesMarkedUnresolved(t *testing.T) {
	n := NewNormalizer(WithClock(fixedClock))

	raw := types.RawFields{
		"email":           "not-an-email",
		"phone":           "123",
		"graduation_year": "2099", // 超出合理区间
		"gpa":             "excellent",
	}

	record := n.Normalize(raw, "b.pdf", "vision")

	assert.Empty(t, record.Email)
	assert.Empty(t, record.Phone)
	assert.Nil(t, record.GraduationYear)
	assert.Nil(t, record.GPA)
	// 顺序与字段声明顺序一致
	assert.Equal(t, []string{"email", "phone", "graduation_year", "gpa"}, record.UnresolvedFields)
}

func TestNormalize_MissingFieldsAreNotUnresolved(t *testing.T) {
	n := NewNormalizer(WithClock(fixedClock))

	record := n.Normalize(types.RawFields{"name": "John"}, "c.pdf", "vision")

	assert.Equal(t, "John", record.Name)
	assert.Empty(t, record.UnresolvedFields)
	assert.Nil(t, record.GPA)
	assert.Nil(t, record.GraduationYear)
}

func TestNormalize_ExperienceClamped(t *testing.T) {
	n := NewNormalizer(WithClock(fixedClock))

	record := n.Normalize(types.RawFields{"total_experience_years": "120 years"}, "d.pdf", "vision")
	require.NotNil(t, record.TotalExperienceYears)
	assert.Equal(t, 60.0, *record.TotalExperienceYears)

	record = n.Normalize(types.RawFields{"total_experience_years": "about 3.5 years"}, "d.pdf", "vision")
	require.NotNil(t, record.TotalExperienceYears)
	assert.Equal(t, 3.5, *record.TotalExperienceYears)

	// 负数经验截断到下界而不是丢掉符号
	record = n.Normalize(types.RawFields{"total_experience_years": "-5"}, "d.pdf", "vision")
	require.NotNil(t, record.TotalExperienceYears)
	assert.Equal(t, 0.0, *record.TotalExperienceYears)
}

func TestNormalize_NegativeGPARejected(t *testing.T) {
	n := NewNormalizer(WithClock(fixedClock))

	record := n.Normalize(types.RawFields{"gpa": "-3.5"}, "e.pdf", "vision")
	assert.Nil(t, record.GPA)
	assert.Equal(t, []string{"gpa"}, record.UnresolvedFields)
}

func TestNormalize_YearExtractedFromText(t *testing.T) {
	n := NewNormalizer(WithClock(fixedClock))

	record := n.Normalize(types.RawFields{"graduation_year": "Expected May 2027"}, "e.pdf", "vision")
	require.NotNil(t, record.GraduationYear)
	assert.Equal(t, 2027, *record.GraduationYear)

	// now为2026年，2027是允许的上限，2028不是
	record = n.Normalize(types.RawFields{"graduation_year": "2028"}, "e.pdf", "vision")
	assert.Nil(t, record.GraduationYear)
	assert.Equal(t, []string{"graduation_year"}, record.UnresolvedFields)
}

func TestNormalize_ListFromDelimitedString(t *testing.T) {
	n := NewNormalizer(WithClock(fixedClock))

	record := n.Normalize(types.RawFields{
		"technical_skills": "Docker, Kubernetes; AWS | Terraform\nDocker",
	}, "f.pdf", "vision")

	assert.Equal(t, []string{"Docker", "Kubernetes", "AWS", "Terraform"}, record.TechnicalSkills)
}

func TestNormalize_PhoneVariants(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		valid    bool
	}{
		{"+86 138-0000-1111", "+8613800001111", true},
		{"(415) 555-0199", "4155550199", true},
		{"12345", "", false},
		{"12345678901234567890", "", false},
	}

	for _, tt := range tests {
		phone, ok := normalizePhone(tt.input)
		assert.Equal(t, tt.valid, ok, "输入: %s", tt.input)
		assert.Equal(t, tt.expected, phone, "输入: %s", tt.input)
	}
}

func TestConfidenceNote(t *testing.T) {
	assert.Empty(t, ConfidenceNote(nil))
	assert.Contains(t, ConfidenceNote([]string{"gpa", "email"}), "gpa, email")
}
