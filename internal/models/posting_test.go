package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostingHash(t *testing.T) {
	base := Posting{Company: "Acme", Title: "SWE Intern", URL: "https://acme.com/jobs/1", Location: "NYC"}

	t.Run("stable across fetches", func(t *testing.T) {
		other := base
		other.Text = "different body"
		other.RetrievedAt = time.Now()
		assert.Equal(t, base.Hash(), other.Hash())
		assert.Len(t, base.Hash(), 64)
	})

	t.Run("identity fields change the hash", func(t *testing.T) {
		other := base
		other.Location = "Boston"
		assert.NotEqual(t, base.Hash(), other.Hash())
	})

	t.Run("empty location uses sentinel", func(t *testing.T) {
		a := base
		a.Location = ""
		b := base
		b.Location = DefaultLocation
		assert.Equal(t, a.Hash(), b.Hash())
	})
}

func TestPostingAgeDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Nil(t, Posting{}.AgeDays(now))

	posted := now.Add(-50 * time.Hour)
	age := Posting{PostedAt: &posted}.AgeDays(now)
	require.NotNil(t, age)
	assert.Equal(t, 2, *age)
}
