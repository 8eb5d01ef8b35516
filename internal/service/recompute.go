package service

import (
	"math"

	"github.com/campushq/enrollment-api/internal/models"
)

// Grading constants shared by every recomputation trigger.
const (
	// AbsenteeismThreshold is the absence rate at which the veto kicks in.
	AbsenteeismThreshold = 0.20
	// PassMark is the minimum weighted final grade for a PASSED status.
	PassMark = 5.0
	// WeightEpsilon tolerates realistic decimal input in the weight-sum check.
	WeightEpsilon = 1e-6
)

// RecomputeResult is the derived state produced by Recompute.
type RecomputeResult struct {
	Status     models.EnrollmentStatus
	FinalGrade *float64
}

// Recompute derives enrollment status and final grade from the current grade
// set and absenteeism flag. It is a pure function and the only place this
// decision is made: enrollment creation, grade updates and attendance-driven
// recomputation all call it, so the two triggers can never disagree on
// identical state.
//
// The grade set is complete when every required component carries a score and
// the weights sum to one (within WeightEpsilon). Only then does a final grade
// exist; otherwise the enrollment stays IN_PROGRESS. The absenteeism veto
// forces NOT_PASSED unconditionally but preserves any computed final grade.
func Recompute(grades models.GradeList, absenteeismOverThreshold bool) RecomputeResult {
	scored := make(map[models.GradeType]bool, len(grades))
	weightSum := 0.0
	finalGrade := 0.0
	for _, grade := range grades {
		weightSum += grade.Weight
		if grade.Score != nil {
			scored[grade.Type] = true
			finalGrade += *grade.Score * grade.Weight
		}
	}

	complete := true
	for _, required := range models.RequiredGradeTypes() {
		if !scored[required] {
			complete = false
			break
		}
	}
	weightsValid := math.Abs(weightSum-1) <= WeightEpsilon

	result := RecomputeResult{Status: models.EnrollmentStatusInProgress}
	if complete && weightsValid {
		result.FinalGrade = &finalGrade
		if finalGrade >= PassMark {
			result.Status = models.EnrollmentStatusPassed
		} else {
			result.Status = models.EnrollmentStatusNotPassed
		}
	}

	if absenteeismOverThreshold {
		result.Status = models.EnrollmentStatusNotPassed
	}
	return result
}
