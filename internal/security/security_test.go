package security

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fairvalue-engine/internal/errors"
)

func TestValidateSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{" aapl ", "AAPL", true},
		{"brk.b", "BRK.B", true},
		{"RELIANCE.NS", "RELIANCE.NS", true},
		{"^GSPC", "^GSPC", true},
		{"EURUSD=X", "EURUSD=X", true},
		{"M&M.NS", "M&M.NS", true},
		{"", "", false},
		{"   ", "", false},
		{"AAPL; DROP TABLE reports", "", false},
		{".HIDDEN", "", false},
		{"ABCDEFGHIJKLMNOPQRSTUV", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateSymbol(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, apperrors.ErrInputValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaskCredential(t *testing.T) {
	assert.Equal(t, "", MaskCredential(""))
	assert.Equal(t, "***", MaskCredential("abc"))
	assert.Equal(t, "de****", MaskCredential("demo12"))
	assert.Equal(t, "ABCD****WXYZ", MaskCredential("ABCD1234WXYZ"))
}

func TestMaskSecrets(t *testing.T) {
	in := `Get "https://www.alphavantage.co/query?apikey=ABCD1234WXYZ&function=OVERVIEW&symbol=IBM": dial tcp: timeout`
	out := MaskSecrets(in)
	assert.NotContains(t, out, "ABCD1234WXYZ")
	assert.Contains(t, out, "apikey=ABCD****WXYZ&function=OVERVIEW")

	assert.Equal(t, "api_key: ABCD****WXYZ", MaskSecrets("api_key: ABCD1234WXYZ"))
	assert.Equal(t, "nothing to hide", MaskSecrets("nothing to hide"))
}

func TestMaskError(t *testing.T) {
	assert.NoError(t, MaskError(nil))

	plain := errors.New("boom")
	assert.Same(t, plain, MaskError(plain))

	wrapped := fmt.Errorf("fetch apikey=ABCD1234WXYZ: %w", apperrors.ErrUpstreamUnavailable)
	masked := MaskError(wrapped)
	assert.NotContains(t, masked.Error(), "ABCD1234WXYZ")
	assert.ErrorIs(t, masked, apperrors.ErrUpstreamUnavailable)
}
