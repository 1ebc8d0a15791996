package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ankaa/models"
)

func runPhone(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := phoneCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPhoneNormalize(t *testing.T) {
	out, err := runPhone(t, "normalize", "(11) 98765-4321", "+55 (43) 3322-1100")
	require.NoError(t, err)
	assert.Contains(t, out, "(11) 98765-4321\t5511987654321\n")
	assert.Contains(t, out, "+55 (43) 3322-1100\t554333221100\n")
}

func TestPhoneNormalize_E164(t *testing.T) {
	out, err := runPhone(t, "normalize", "--e164", "011 98765 4321")
	require.NoError(t, err)
	assert.Contains(t, out, "\t+5511987654321\n")
}

func TestPhoneNormalize_Invalid(t *testing.T) {
	out, err := runPhone(t, "normalize", "12345", "(11) 98765-4321")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 numbers are invalid")
	assert.Contains(t, out, "12345\tinvalid:")
}

func TestPhoneNormalize_UnknownCountry(t *testing.T) {
	_, err := runPhone(t, "normalize", "--country", "XX", "123")
	assert.ErrorContains(t, err, "unsupported country")
}

func TestAllTerminal(t *testing.T) {
	assert.True(t, allTerminal(nil))
	assert.True(t, allTerminal([]models.DeliveryRecord{{Status: models.DeliveryDelivered}, {Status: models.DeliveryFailed}}))
	assert.False(t, allTerminal([]models.DeliveryRecord{{Status: models.DeliveryDelivered}, {Status: models.DeliveryRetrying}}))
}
