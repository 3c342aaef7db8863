package adapters

import (
	"strings"
	"testing"

	"github.com/smallbiznis/mediavault/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySHA512(t *testing.T) {
	body := []byte(`{"obj":{"id":1}}`)
	sig := SignSHA512("secret", body)

	require.NoError(t, VerifySHA512("secret", body, sig))
	require.NoError(t, VerifySHA512("secret", body, " "+strings.ToUpper(sig)+" "))
	assert.ErrorIs(t, VerifySHA512("secret", []byte(`{"obj":{"id":2}}`), sig), domain.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySHA512("other", body, sig), domain.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySHA512("secret", body, ""), domain.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySHA512("", body, sig), domain.ErrInvalidSignature)
}
