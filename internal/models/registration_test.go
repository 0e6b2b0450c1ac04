package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScanCodeGenerated(t *testing.T) {
	code, err := ParseScanCode("AITE-X7K2M9-1719403")
	require.NoError(t, err)
	assert.Equal(t, "AITE-X7K2M9-1719403", code.Code)
	assert.Empty(t, code.RegistrationID)
}

func TestParseScanCodeLegacyPayload(t *testing.T) {
	code, err := ParseScanCode(LegacyPayload("AITE", "3a7c1f"))
	require.NoError(t, err)
	assert.Equal(t, "3a7c1f", code.RegistrationID)
	assert.Empty(t, code.Code)
}

func TestParseScanCodeRejectsEmpty(t *testing.T) {
	_, err := ParseScanCode("   ")
	require.Error(t, err)

	_, err = ParseScanCode("AITE-REGID:")
	require.Error(t, err)
}

func TestNextIncompleteSubject(t *testing.T) {
	detail := RegistrationDetail{
		Subjects: []Subject{
			{Name: "Math", TotalSessions: 2, CompletedSessions: 2},
			{Name: "Physics", TotalSessions: 4, CompletedSessions: 1},
		},
	}
	next := detail.NextIncompleteSubject()
	require.NotNil(t, next)
	assert.Equal(t, "Physics", next.Name)
	assert.False(t, detail.AllSessionsComplete())

	detail.Subjects[1].CompletedSessions = 4
	assert.Nil(t, detail.NextIncompleteSubject())
	assert.True(t, detail.AllSessionsComplete())
}
