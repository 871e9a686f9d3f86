package proctree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPressureOutput(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want Pressure
	}{
		{"normal", "The system has 34359738368 (2097152 pages with a page size of 16384).\nSystem-wide memory free percentage: 58%", PressureNormal},
		{"warning", "System memory pressure level: WARN", PressureWarning},
		{"critical", "memory pressure is Critical", PressureCritical},
		{"critical wins", "warn then critical", PressureCritical},
		{"empty", "", PressureNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyPressureOutput(tt.out))
		})
	}
}

func TestClassifyUsedPercent(t *testing.T) {
	assert.Equal(t, PressureNormal, classifyUsedPercent(40))
	assert.Equal(t, PressureNormal, classifyUsedPercent(84.9))
	assert.Equal(t, PressureWarning, classifyUsedPercent(85))
	assert.Equal(t, PressureWarning, classifyUsedPercent(94.99))
	assert.Equal(t, PressureCritical, classifyUsedPercent(95))
}

func TestPressureString(t *testing.T) {
	assert.Equal(t, "normal", PressureNormal.String())
	assert.Equal(t, "warning", PressureWarning.String())
	assert.Equal(t, "critical", PressureCritical.String())
	assert.Equal(t, "unknown", PressureUnknown.String())
}

func TestParsePressure(t *testing.T) {
	for _, p := range []Pressure{PressureNormal, PressureWarning, PressureCritical, PressureUnknown} {
		assert.Equal(t, p, ParsePressure(p.String()))
	}
	assert.Equal(t, PressureWarning, ParsePressure(" Warning "))
	assert.Equal(t, PressureUnknown, ParsePressure(""))
}
