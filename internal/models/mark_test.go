package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeightedTotal(t *testing.T) {
	batch := &Batch{SupervisorPct: 50, InternalPct: 30, ExternalPct: 20}
	marks := []Mark{
		{Role: RoleSupervisor, Value: 45},
		{Role: RoleInternal, Value: 18},
		{Role: RoleExternal, Value: 20},
	}
	assert.InDelta(t, 31.9, WeightedTotal(marks, batch), 0.0001)
}

func TestWeightedTotalPartialMarks(t *testing.T) {
	batch := &Batch{SupervisorPct: 50, InternalPct: 30, ExternalPct: 20}
	marks := []Mark{{Role: RoleSupervisor, Value: 50}}
	assert.InDelta(t, 25.0, WeightedTotal(marks, batch), 0.0001)
}

func TestWeightedTotalRounding(t *testing.T) {
	batch := &Batch{SupervisorPct: 33, InternalPct: 33, ExternalPct: 34}
	marks := []Mark{
		{Role: RoleSupervisor, Value: 10},
		{Role: RoleInternal, Value: 10},
		{Role: RoleExternal, Value: 10},
	}
	assert.InDelta(t, 10.0, WeightedTotal(marks, batch), 0.0001)
}

func TestLetterGradeBoundaries(t *testing.T) {
	cases := []struct {
		total float64
		grade string
	}{
		{0, "F"},
		{31.9, "F"},
		{39.99, "F"},
		{40, "D"},
		{44.99, "D"},
		{45, "C"},
		{50, "C+"},
		{55, "B-"},
		{60, "B"},
		{65, "B+"},
		{70, "A-"},
		{75, "A"},
		{79.99, "A"},
		{80, "A+"},
		{100, "A+"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.grade, LetterGrade(tc.total), "total %.2f", tc.total)
	}
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, StatusPendingApproval, DeriveStatus(false, nil))
	assert.Equal(t, StatusSupervisorApproved, DeriveStatus(true, nil))

	accepted := func(t DocumentType) Document { return Document{Type: t, State: DocumentAccepted} }
	pending := func(t DocumentType) Document { return Document{Type: t, State: DocumentPending} }

	assert.Equal(t, StatusProposalDone, DeriveStatus(true, []Document{accepted(DocumentProposal)}))
	assert.Equal(t, StatusSupervisorApproved, DeriveStatus(true, []Document{pending(DocumentProposal)}))
	assert.Equal(t, StatusPreDefenseDone, DeriveStatus(true, []Document{accepted(DocumentProposal), accepted(DocumentPreDefense)}))
	assert.Equal(t, StatusDefenseDone, DeriveStatus(true, []Document{accepted(DocumentProposal), accepted(DocumentDefense)}))
	// Approval gate dominates: documents on an unapproved group do not count.
	assert.Equal(t, StatusPendingApproval, DeriveStatus(false, []Document{accepted(DocumentDefense)}))
}

func TestBatchWeightsValid(t *testing.T) {
	valid := &Batch{SupervisorPct: 50, InternalPct: 30, ExternalPct: 20}
	assert.True(t, valid.WeightsValid())
	invalid := &Batch{SupervisorPct: 50, InternalPct: 30, ExternalPct: 30}
	assert.False(t, invalid.WeightsValid())
}
