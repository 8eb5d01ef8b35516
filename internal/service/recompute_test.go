package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/enrollment-api/internal/models"
)

func ptrFloat(v float64) *float64 {
	return &v
}

func fullGrades(scores [4]float64, weights [4]float64) models.GradeList {
	types := models.RequiredGradeTypes()
	grades := make(models.GradeList, 0, len(types))
	for i, gradeType := range types {
		grades = append(grades, models.Grade{Type: gradeType, Score: ptrFloat(scores[i]), Weight: weights[i]})
	}
	return grades
}

func TestRecomputeEmptyGrades(t *testing.T) {
	result := Recompute(models.GradeList{}, false)
	assert.Equal(t, models.EnrollmentStatusInProgress, result.Status)
	assert.Nil(t, result.FinalGrade)
}

func TestRecomputeMissingComponentStaysInProgress(t *testing.T) {
	grades := models.GradeList{
		{Type: models.GradeTypeProgressTest, Score: ptrFloat(8), Weight: 0.5},
		{Type: models.GradeTypeAssignment, Score: ptrFloat(7), Weight: 0.5},
	}
	result := Recompute(grades, false)
	assert.Equal(t, models.EnrollmentStatusInProgress, result.Status)
	assert.Nil(t, result.FinalGrade)
}

func TestRecomputeUnscoredComponentStaysInProgress(t *testing.T) {
	grades := fullGrades([4]float64{8, 7, 6, 9}, [4]float64{0.25, 0.25, 0.25, 0.25})
	grades[3].Score = nil
	result := Recompute(grades, false)
	assert.Equal(t, models.EnrollmentStatusInProgress, result.Status)
	assert.Nil(t, result.FinalGrade)
}

func TestRecomputeInvalidWeightSumStaysInProgress(t *testing.T) {
	grades := fullGrades([4]float64{8, 7, 6, 9}, [4]float64{0.3, 0.3, 0.3, 0.3})
	result := Recompute(grades, false)
	assert.Equal(t, models.EnrollmentStatusInProgress, result.Status)
	assert.Nil(t, result.FinalGrade)
}

func TestRecomputeWeightSumWithinEpsilon(t *testing.T) {
	// 0.1+0.2+0.3+0.4 accumulates binary rounding error but must still count
	// as a valid distribution.
	grades := fullGrades([4]float64{10, 10, 10, 10}, [4]float64{0.1, 0.2, 0.3, 0.4})
	result := Recompute(grades, false)
	require.NotNil(t, result.FinalGrade)
	assert.Equal(t, models.EnrollmentStatusPassed, result.Status)
	assert.InDelta(t, 10.0, *result.FinalGrade, 1e-9)
}

func TestRecomputePassed(t *testing.T) {
	grades := fullGrades([4]float64{6, 7, 5, 8}, [4]float64{0.25, 0.25, 0.25, 0.25})
	result := Recompute(grades, false)
	require.NotNil(t, result.FinalGrade)
	assert.Equal(t, models.EnrollmentStatusPassed, result.Status)
	assert.InDelta(t, 6.5, *result.FinalGrade, 1e-9)
}

func TestRecomputeExactPassMarkPasses(t *testing.T) {
	grades := fullGrades([4]float64{5, 5, 5, 5}, [4]float64{0.25, 0.25, 0.25, 0.25})
	result := Recompute(grades, false)
	require.NotNil(t, result.FinalGrade)
	assert.Equal(t, models.EnrollmentStatusPassed, result.Status)
}

func TestRecomputeNotPassed(t *testing.T) {
	grades := fullGrades([4]float64{4, 4, 5, 5}, [4]float64{0.25, 0.25, 0.25, 0.25})
	result := Recompute(grades, false)
	require.NotNil(t, result.FinalGrade)
	assert.Equal(t, models.EnrollmentStatusNotPassed, result.Status)
	assert.InDelta(t, 4.5, *result.FinalGrade, 1e-9)
}

func TestRecomputeAbsenteeismVetoPreservesFinalGrade(t *testing.T) {
	grades := fullGrades([4]float64{9, 9, 9, 9}, [4]float64{0.25, 0.25, 0.25, 0.25})
	result := Recompute(grades, true)
	require.NotNil(t, result.FinalGrade)
	assert.Equal(t, models.EnrollmentStatusNotPassed, result.Status)
	assert.InDelta(t, 9.0, *result.FinalGrade, 1e-9)
}

func TestRecomputeAbsenteeismVetoWithIncompleteGrades(t *testing.T) {
	grades := models.GradeList{
		{Type: models.GradeTypeProgressTest, Score: ptrFloat(8), Weight: 0.5},
	}
	result := Recompute(grades, true)
	assert.Equal(t, models.EnrollmentStatusNotPassed, result.Status)
	assert.Nil(t, result.FinalGrade)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	grades := fullGrades([4]float64{6, 7, 5, 8}, [4]float64{0.25, 0.25, 0.25, 0.25})
	first := Recompute(grades, false)
	second := Recompute(grades, false)
	assert.Equal(t, first.Status, second.Status)
	require.NotNil(t, second.FinalGrade)
	assert.Equal(t, *first.FinalGrade, *second.FinalGrade)
}
