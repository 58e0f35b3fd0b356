package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestIsCriticalValueNumeric(t *testing.T) {
	potassium := &TestCatalogEntry{
		Code:         "K",
		Kind:         TestKindNumeric,
		CriticalLow:  ptr(3.5),
		CriticalHigh: ptr(5.1),
	}

	cases := []struct {
		value    string
		critical bool
	}{
		{"4.2", false},
		{"3.5", false}, // bounds are inclusive of normal
		{"5.1", false},
		{"3.4", true},
		{"5.2", true},
		{"  4.8  ", false},
		{"-1", true},
	}

	for _, tc := range cases {
		got, err := potassium.IsCriticalValue(tc.value)
		require.NoError(t, err, "value %q", tc.value)
		assert.Equal(t, tc.critical, got, "value %q", tc.value)
	}
}

func TestIsCriticalValueNumericRejectsNonNumeric(t *testing.T) {
	entry := &TestCatalogEntry{
		Code:         "GLU",
		Kind:         TestKindNumeric,
		CriticalLow:  ptr(50),
		CriticalHigh: ptr(400),
	}

	_, err := entry.IsCriticalValue("normal")
	assert.Error(t, err)
}

func TestIsCriticalValueOneSidedRange(t *testing.T) {
	entry := &TestCatalogEntry{
		Code:         "TROP",
		Kind:         TestKindNumeric,
		CriticalHigh: ptr(0.04),
	}

	got, err := entry.IsCriticalValue("0.01")
	require.NoError(t, err)
	assert.False(t, got)

	got, err = entry.IsCriticalValue("1.2")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestIsCriticalValueQualitative(t *testing.T) {
	entry := &TestCatalogEntry{
		Code:          "BMP",
		Kind:          TestKindQualitative,
		AllowedValues: []string{"normal", "trace"},
	}

	got, err := entry.IsCriticalValue("normal")
	require.NoError(t, err)
	assert.False(t, got)

	// Matching is case-insensitive and trims whitespace
	got, err = entry.IsCriticalValue("  Normal ")
	require.NoError(t, err)
	assert.False(t, got)

	got, err = entry.IsCriticalValue("positive")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestIsCriticalValueDeterministic(t *testing.T) {
	entry := &TestCatalogEntry{
		Code:         "HGB",
		Kind:         TestKindNumeric,
		CriticalLow:  ptr(7.0),
		CriticalHigh: ptr(20.0),
	}

	first, err := entry.IsCriticalValue("6.9")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := entry.IsCriticalValue("6.9")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestIsCriticalValueUnknownKind(t *testing.T) {
	entry := &TestCatalogEntry{Code: "X", Kind: TestKind("binary")}
	_, err := entry.IsCriticalValue("1")
	assert.Error(t, err)
}
