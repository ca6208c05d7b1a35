package payment

import (
	"testing"

	"insurance-checkout/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "local safaricom", input: "0712345678", want: "0712345678"},
		{name: "local 01x range", input: "0110345678", want: "0110345678"},
		{name: "international with plus", input: "+254712345678", want: "0712345678"},
		{name: "international without plus", input: "254712345678", want: "0712345678"},
		{name: "separators", input: "0712 345-678", want: "0712345678"},
		{name: "unsupported prefix", input: "0812345678", wantErr: true},
		{name: "too short", input: "071234567", wantErr: true},
		{name: "letters", input: "07123abcde", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrPaymentRejected)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
