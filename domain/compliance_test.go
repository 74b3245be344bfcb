package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusForPercentage(t *testing.T) {
	tests := []struct {
		percentage int
		want       ComplianceStatus
	}{
		{100, ComplianceCompliant},
		{95, ComplianceCompliant},
		{94, CompliancePendingReview},
		{70, CompliancePendingReview},
		{69, ComplianceNonCompliant},
		{0, ComplianceNonCompliant},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForPercentage(tt.percentage), "percentage %d", tt.percentage)
	}
}
