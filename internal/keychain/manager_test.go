// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package keychain

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRoundTrip(t *testing.T) {
	m := NewManagerWithRing(keyring.NewArrayKeyring(nil))

	_, err := m.LoadAPIToken()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SaveAPIToken("tok-123"))
	require.NoError(t, m.SaveDBDSN("postgres://u:p@localhost/app"))

	tok, err := m.LoadAPIToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)

	dsn, err := m.LoadDBDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/app", dsn)

	require.NoError(t, m.ClearAll())
	_, err = m.LoadDBDSN()
	assert.ErrorIs(t, err, ErrNotFound)
}
