package source

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospect-cli/internal/model"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestFillGapsNeverOverwrites(t *testing.T) {
	dst := &model.Company{
		Name:          "Acme Corp",
		Domain:        "acme.com",
		Industry:      "software",
		EmployeeCount: intPtr(120),
	}
	src := &model.Company{
		Name:          "ACME Corporation",
		Domain:        "acme.io",
		Industry:      "saas",
		EmployeeCount: intPtr(500),
		Country:       "US",
	}

	filled := FillGaps(dst, src)

	assert.Equal(t, "Acme Corp", dst.Name)
	assert.Equal(t, "acme.com", dst.Domain)
	assert.Equal(t, "software", dst.Industry)
	assert.Equal(t, 120, *dst.EmployeeCount)
	assert.Equal(t, "US", dst.Country)
	assert.Equal(t, []string{"country"}, filled)
}

func TestFillGapsFillsEmptyFields(t *testing.T) {
	dst := &model.Company{Name: "Acme"}
	src := &model.Company{
		Domain:        "acme.com",
		Industry:      "software",
		EmployeeCount: intPtr(42),
		RevenueUSD:    floatPtr(1_000_000),
		TechStack:     []string{"go", "postgres"},
		Description:   "Makes widgets.",
	}

	filled := FillGaps(dst, src)

	assert.Equal(t, "acme.com", dst.Domain)
	assert.Equal(t, 42, *dst.EmployeeCount)
	assert.Equal(t, 1_000_000.0, *dst.RevenueUSD)
	assert.Equal(t, []string{"go", "postgres"}, dst.TechStack)
	assert.ElementsMatch(t,
		[]string{"domain", "industry", "employee_count", "revenue_usd", "tech_stack", "description"},
		filled)
}

func TestFillGapsCopiesPointers(t *testing.T) {
	src := &model.Company{EmployeeCount: intPtr(10)}
	dst := &model.Company{}

	FillGaps(dst, src)
	*src.EmployeeCount = 99

	assert.Equal(t, 10, *dst.EmployeeCount)
}

func TestFillGapsExternalIDsUnion(t *testing.T) {
	dst := &model.Company{ExternalIDs: map[string]string{"apollo": "a-1"}}
	src := &model.Company{ExternalIDs: map[string]string{"apollo": "a-2", "pdl": "p-1"}}

	filled := FillGaps(dst, src)

	assert.Equal(t, "a-1", dst.ExternalIDs["apollo"])
	assert.Equal(t, "p-1", dst.ExternalIDs["pdl"])
	assert.Equal(t, []string{"external_id:pdl"}, filled)
}

func TestFillGapsEmptySourceFillsNothing(t *testing.T) {
	dst := &model.Company{Name: "Acme", Domain: "acme.com"}

	filled := FillGaps(dst, &model.Company{})

	assert.Empty(t, filled)
	assert.Equal(t, "Acme", dst.Name)
}
