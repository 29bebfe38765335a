package printer

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prevOut, prevErr, prevNoColor := stdout, stderr, color.NoColor
	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)
	color.NoColor = true
	t.Cleanup(func() {
		stdout, stderr, color.NoColor = prevOut, prevErr, prevNoColor
	})
	return &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "This is a test error")
	})

	t.Run("single suggestion is printed plainly", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "\nTry this fix\n")
		assert.NotContains(t, errOut.String(), "Either:")
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"First option", "Second option"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, errOut := capture(t)
	context := map[string]string{
		"Template": "CASA_SIMPLES",
		"Chain":    "A -> B -> A",
	}
	err := ErrorWithContext("Cyclic dependency", "", context, nil)
	require.Error(t, err)
	require.Equal(t, "Cyclic dependency", err.Error())
	assert.Contains(t, errOut.String(), "  Chain: A -> B -> A\n  Template: CASA_SIMPLES\n")
}

func TestMessages(t *testing.T) {
	out, _ := capture(t)

	Success("imported %d templates\n", 3)
	Warning("catalog is empty\n")
	Step("loading\n")
	Info("plain\n")

	assert.Equal(t, "✓ imported 3 templates\n⚠️  catalog is empty\n→ loading\nplain\n", out.String())
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		name         string
		canProceed   bool
		confirmation bool
		expected     string
	}{
		{"rejected", false, false, "✗ Rejected (rejected)\n"},
		{"warning", true, true, "⚠️  Needs confirmation (warning)\n"},
		{"accepted", true, false, "✓ Accepted (accepted)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := capture(t)
			Verdict(tt.name, tt.canProceed, tt.confirmation)
			assert.Equal(t, tt.expected, out.String())
		})
	}
}
