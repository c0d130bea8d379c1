package queue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nzbcore/nzbcore/internal/model"
)

func TestDecideDupeNoConflictWhenKeysDiffer(t *testing.T) {
	existing := &model.Collection{DupeKey: "a", DupeScore: 100}
	candidate := &model.Collection{DupeKey: "b", DupeScore: 0}
	require.Equal(t, dupeActionAccept, decideDupe(existing, candidate))
}

func TestDecideDupeHigherScoreWins(t *testing.T) {
	existing := &model.Collection{DupeKey: "k", DupeScore: 50}
	candidate := &model.Collection{DupeKey: "k", DupeScore: 100}
	require.Equal(t, dupeActionAccept, decideDupe(existing, candidate))
}

func TestDecideDupeTieFavorsExisting(t *testing.T) {
	existing := &model.Collection{DupeKey: "k", DupeScore: 50}
	candidate := &model.Collection{DupeKey: "k", DupeScore: 50}
	require.Equal(t, dupeActionReject, decideDupe(existing, candidate))
}

func TestDecideDupeAllModeKeepsBoth(t *testing.T) {
	existing := &model.Collection{DupeKey: "k", DupeScore: 50}
	candidate := &model.Collection{DupeKey: "k", DupeScore: 10, DupeMode: model.DupeModeAll}
	require.Equal(t, dupeActionAcceptAlongside, decideDupe(existing, candidate))
}

func TestDecideDupeForceModeAlwaysAccepts(t *testing.T) {
	existing := &model.Collection{DupeKey: "k", DupeScore: 999}
	candidate := &model.Collection{DupeKey: "k", DupeScore: 0, DupeMode: model.DupeModeForce}
	require.Equal(t, dupeActionAccept, decideDupe(existing, candidate))
}
