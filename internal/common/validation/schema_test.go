package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paymentSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"applicationId", "premiumAmount"},
	"properties": map[string]interface{}{
		"applicationId": map[string]interface{}{"type": "string", "minLength": 1},
		"premiumAmount": map[string]interface{}{"type": "integer", "minimum": 1},
		"payment": map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"paymentReference"},
		},
	},
}

func TestValidateInput_Valid(t *testing.T) {
	res, err := ValidateInput(map[string]interface{}{
		"applicationId": "app-1",
		"premiumAmount": float64(48000),
	}, paymentSchema)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Nil(t, res.FieldErrors())
}

func TestValidateInput_ReportsFields(t *testing.T) {
	res, err := ValidateInput(map[string]interface{}{
		"premiumAmount": float64(0),
		"payment":       map[string]interface{}{},
	}, paymentSchema)
	require.NoError(t, err)
	assert.False(t, res.Valid)

	assert.True(t, res.HasErrors("applicationId"))
	assert.True(t, res.HasErrors("premiumAmount"))
	assert.True(t, res.HasErrors("payment.paymentReference"))
	assert.Len(t, res.GetErrorMessages(), 3)
	assert.Contains(t, res.FieldErrors(), "applicationId")
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(map[string]interface{}{"type": 12})
	assert.Error(t, err)
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("jane@broker.co.ke"))
	assert.False(t, ValidateEmail("jane@"))
}
