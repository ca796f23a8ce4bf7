package lnurl

import (
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeWithHrp(hrp, url string) (string, error) {
	conv, err := bech32.ConvertBits([]byte(url), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, conv)
}

func TestParseAddressValid(t *testing.T) {
	user, domain, err := ParseAddress("satoshi@bitcoin.org")
	require.NoError(t, err)
	assert.Equal(t, "satoshi", user)
	assert.Equal(t, "bitcoin.org", domain)
}

func TestParseAddressWithSubdomain(t *testing.T) {
	user, domain, err := ParseAddress("user@pay.wallet.com")
	require.NoError(t, err)
	assert.Equal(t, "user", user)
	assert.Equal(t, "pay.wallet.com", domain)
}

func TestParseAddressNoAt(t *testing.T) {
	_, _, err := ParseAddress("invalid")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestParseAddressMultipleAt(t *testing.T) {
	_, _, err := ParseAddress("user@domain@extra")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestParseAddressEmptyUser(t *testing.T) {
	_, _, err := ParseAddress("@domain.com")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestParseAddressInvalidDomain(t *testing.T) {
	_, _, err := ParseAddress("user@localhost")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestParseAddressTrimsWhitespace(t *testing.T) {
	_, _, err := ParseAddress("  user@domain.com  ")
	assert.NoError(t, err)
}

func TestEncodeLnurl(t *testing.T) {
	url := "https://service.com/api/lnurl"
	encoded, err := Encode(url)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(encoded, "LNURL1"))

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, url, decoded)
}

func TestDecodeRejectsWrongHrp(t *testing.T) {
	encoded, err := encodeWithHrp("notlnurl", "https://example.com")
	require.NoError(t, err)

	_, err = Decode(encoded)
	assert.True(t, errors.Is(err, ErrInvalidFormat))
}
