package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-league/models"
)

func TestRegister(t *testing.T) {
	f := newFixture(t)
	dir := f.league.Players

	p, err := dir.Register(context.Background(), RegisterInput{ExternalUserID: "u1", Username: " José ", Country: "es"})
	require.NoError(t, err)
	assert.Equal(t, "José", p.Username)
	assert.Equal(t, "ES", p.Country)
	assert.Equal(t, int64(1000), p.Coins)
	assert.Equal(t, 1, p.Level)

	got, err := dir.GetByExternalID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = dir.Register(context.Background(), RegisterInput{ExternalUserID: "u2", Username: "José"})
	assert.ErrorIs(t, err, ErrPlayerExists)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	dir := f.league.Players

	tests := []RegisterInput{
		{ExternalUserID: "u1", Username: ""},
		{ExternalUserID: "", Username: "bob"},
		{ExternalUserID: "u1", Username: "bob", Country: "XX1"},
		{ExternalUserID: "u1", Username: "bob", Country: "ZZ"},
	}
	for _, in := range tests {
		_, err := dir.Register(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", in)
	}
}

func TestNormalizeCountry(t *testing.T) {
	code, err := NormalizeCountry("tr")
	require.NoError(t, err)
	assert.Equal(t, "TR", code)

	code, err = NormalizeCountry("")
	require.NoError(t, err)
	assert.Empty(t, code)

	_, err = NormalizeCountry("Turkey")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSearch_FoldsAccentsAndCase(t *testing.T) {
	f := newFixture(t)
	dir := f.league.Players
	for i, name := range []string{"José", "Josephine", "Müller", "anna"} {
		_, err := dir.Register(context.Background(), RegisterInput{ExternalUserID: string(rune('a' + i)), Username: name})
		require.NoError(t, err)
	}

	got, err := dir.Search(context.Background(), "JOSE", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"José", "Josephine"}, usernames(got))

	got, err = dir.Search(context.Background(), "muller", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Müller"}, usernames(got))

	got, err = dir.Search(context.Background(), "", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	p := f.player(t, 1, 0)

	require.NoError(t, f.league.Players.Delete(context.Background(), p.ID))
	_, err := f.league.Players.Get(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.league.Players.Delete(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertIdentities_KeepsBalanceAndLevel(t *testing.T) {
	f := newFixture(t)
	dir := f.league.Players
	p, err := dir.Register(context.Background(), RegisterInput{ExternalUserID: "ext-1", Username: "old", Country: "DE"})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Player{}).Where("id = ?", p.ID).Updates(map[string]any{"coins": 42, "level": 17}).Error)

	upserted, failed := dir.UpsertIdentities(context.Background(), []models.RemoteProfile{
		{ExternalID: "ext-1", Username: "renamed", Country: "fr", UpdatedAt: time.Now()},
		{ExternalID: "ext-2", Username: "newcomer", Country: "??", UpdatedAt: time.Now()},
	})
	assert.Equal(t, 2, upserted)
	assert.Equal(t, 0, failed)

	got, err := dir.GetByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "renamed", got.Username)
	assert.Equal(t, "FR", got.Country)
	assert.Equal(t, int64(42), got.Coins)
	assert.Equal(t, 17, got.Level)

	fresh, err := dir.GetByExternalID(context.Background(), "ext-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), fresh.Coins)
	assert.Empty(t, fresh.Country)
}

func usernames(ps []models.Player) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Username
	}
	return out
}
