package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JavaBool/votely/internal/database/models"
)

// ballotSetup creates an open election with one approved candidate and one
// approved elector.
type ballotSetup struct {
	election  *models.Election
	candidate *models.Candidate
	elector   *models.Elector
}

func newBallotSetup(t *testing.T, env *testEnv, mutate func(*ElectionInput)) *ballotSetup {
	t.Helper()
	e := createActiveElection(t, env, mutate)

	c := &models.Candidate{
		ID:         "cand-" + e.ID,
		ElectionID: e.ID,
		Name:       "Jo March",
		Status:     models.CandidateApproved,
	}
	require.NoError(t, env.db.CreateCandidate(c))

	elector, err := env.electors.Add(e.ID, &ElectorInput{
		Name:  "Ada Lovelace",
		Phone: "+15551230001",
		Email: "ada@example.com",
	})
	require.NoError(t, err)

	return &ballotSetup{election: e, candidate: c, elector: elector}
}

func TestEmailOTPVotingFlow(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, nil)

	require.NoError(t, env.voting.RequestEmailOTP(s.election.ID, "Ada@Example.com"))
	code := env.sender.lastCode(t)

	_, err := env.voting.VerifyEmailOTP(s.election.ID, "ada@example.com", "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	token, err := env.voting.VerifyEmailOTP(s.election.ID, "ada@example.com", code)
	require.NoError(t, err)

	msg, err := env.voting.CastBallot(token, s.candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultVoteSuccessMessage, msg)

	elector, err := env.db.GetElector(s.elector.ID)
	require.NoError(t, err)
	assert.True(t, elector.HasVoted)

	count, err := env.db.CountVotes(s.election.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRequestEmailOTPMasksRollMembership(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, nil)

	// Same nil response for an address that is not on the roll, and no mail
	require.NoError(t, env.voting.RequestEmailOTP(s.election.ID, "stranger@example.com"))
	assert.Equal(t, 0, env.sender.count())
}

func TestPhonePath(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, func(in *ElectionInput) { in.AllowPhoneVoting = true })
	ctx := context.Background()

	env.verifier.number = "+15551230001"
	token, err := env.voting.AuthenticatePhone(ctx, s.election.ID, "provider-token")
	require.NoError(t, err)

	_, err = env.voting.CastBallot(token, s.candidate.ID)
	require.NoError(t, err)
}

func TestPhonePathUnknownNumber(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, func(in *ElectionInput) { in.AllowPhoneVoting = true })

	env.verifier.number = "+19990000000"
	_, err := env.voting.AuthenticatePhone(context.Background(), s.election.ID, "provider-token")
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestPhonePathDisabled(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, nil) // allow_phone_voting defaults to off

	env.verifier.number = "+15551230001"
	_, err := env.voting.AuthenticatePhone(context.Background(), s.election.ID, "provider-token")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSecretCodePath(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, nil)

	code, err := env.electors.GetSecretCode(s.elector.ID)
	require.NoError(t, err)

	// Phone branch
	token, err := env.voting.AuthenticateSecretCode(s.election.ID, "Ada Lovelace", "+15551230001", code)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Email branch works for the same elector
	_, err = env.voting.AuthenticateSecretCode(s.election.ID, "Ada Lovelace", "ada@example.com", code)
	require.NoError(t, err)

	// Name is an exact co-factor: identifier and code alone are not enough
	_, err = env.voting.AuthenticateSecretCode(s.election.ID, "A. Lovelace", "+15551230001", code)
	assert.ErrorIs(t, err, ErrNotEligible)

	_, err = env.voting.AuthenticateSecretCode(s.election.ID, "Ada Lovelace", "+15551230001", "WRONG123")
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestCastBallotExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, nil)

	code, err := env.electors.GetSecretCode(s.elector.ID)
	require.NoError(t, err)
	token, err := env.voting.AuthenticateSecretCode(s.election.ID, "Ada Lovelace", "+15551230001", code)
	require.NoError(t, err)

	_, err = env.voting.CastBallot(token, s.candidate.ID)
	require.NoError(t, err)

	// The ballot token is single use
	_, err = env.voting.CastBallot(token, s.candidate.ID)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Re-authenticating after voting is rejected outright
	_, err = env.voting.AuthenticateSecretCode(s.election.ID, "Ada Lovelace", "+15551230001", code)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	count, err := env.db.CountVotes(s.election.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCastBallotRaceLosesCleanly(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, nil)

	// Two tokens issued before either ballot lands
	code, err := env.electors.GetSecretCode(s.elector.ID)
	require.NoError(t, err)
	token1, err := env.voting.AuthenticateSecretCode(s.election.ID, "Ada Lovelace", "+15551230001", code)
	require.NoError(t, err)
	token2, err := env.voting.AuthenticateSecretCode(s.election.ID, "Ada Lovelace", "ada@example.com", code)
	require.NoError(t, err)

	_, err = env.voting.CastBallot(token1, s.candidate.ID)
	require.NoError(t, err)

	_, err = env.voting.CastBallot(token2, s.candidate.ID)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	count, err := env.db.CountVotes(s.election.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCastBallotCandidateChecks(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, nil)

	pending := &models.Candidate{
		ID:         "pending-cand",
		ElectionID: s.election.ID,
		Name:       "Not Approved",
		Status:     models.CandidatePending,
	}
	require.NoError(t, env.db.CreateCandidate(pending))

	other := createActiveElection(t, env, func(in *ElectionInput) { in.Title = "Other Election" })
	foreign := &models.Candidate{
		ID:         "foreign-cand",
		ElectionID: other.ID,
		Name:       "Wrong Race",
		Status:     models.CandidateApproved,
	}
	require.NoError(t, env.db.CreateCandidate(foreign))

	code, err := env.electors.GetSecretCode(s.elector.ID)
	require.NoError(t, err)

	auth := func() string {
		t.Helper()
		token, err := env.voting.AuthenticateSecretCode(s.election.ID, "Ada Lovelace", "+15551230001", code)
		require.NoError(t, err)
		return token
	}

	_, err = env.voting.CastBallot(auth(), "no-such-candidate")
	assert.True(t, IsValidation(err))

	_, err = env.voting.CastBallot(auth(), pending.ID)
	assert.True(t, IsValidation(err))

	_, err = env.voting.CastBallot(auth(), foreign.ID)
	assert.True(t, IsValidation(err))

	// None of the rejected ballots flipped the flag
	elector, err := env.db.GetElector(s.elector.ID)
	require.NoError(t, err)
	assert.False(t, elector.HasVoted)
}

func TestCastBallotNOTA(t *testing.T) {
	env := newTestEnv(t)

	in := votingWindow()
	in.AllowNOTA = true
	e, err := env.elections.Create(in)
	require.NoError(t, err)
	_, err = env.elections.Publish(e.ID)
	require.NoError(t, err)

	elector, err := env.electors.Add(e.ID, &ElectorInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	code, err := env.electors.GetSecretCode(elector.ID)
	require.NoError(t, err)

	nota, err := env.db.GetNOTACandidate(e.ID)
	require.NoError(t, err)

	token, err := env.voting.AuthenticateSecretCode(e.ID, "Ada", "ada@example.com", code)
	require.NoError(t, err)
	_, err = env.voting.CastBallot(token, nota.ID)
	require.NoError(t, err)

	tallies, err := env.db.TallyVotes(e.ID)
	require.NoError(t, err)
	require.Len(t, tallies, 1)
	assert.Equal(t, 1, tallies[0].Votes)
}

func TestVotingClosedPaths(t *testing.T) {
	env := newTestEnv(t)

	e, err := env.elections.Create(expiredWindow())
	require.NoError(t, err)
	_, err = env.elections.Publish(e.ID)
	require.NoError(t, err)

	err = env.voting.RequestEmailOTP(e.ID, "ada@example.com")
	assert.ErrorIs(t, err, ErrVotingClosed)

	_, err = env.voting.AuthenticateSecretCode(e.ID, "Ada", "ada@example.com", "ABCD2345")
	assert.ErrorIs(t, err, ErrVotingClosed)
}

func TestCustomSuccessMessage(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, nil)

	elector, err := env.electors.Add(s.election.ID, &ElectorInput{
		Name:             "Grace Hopper",
		Email:            "grace@example.com",
		CustomSuccessMsg: "See you at the reunion.",
	})
	require.NoError(t, err)
	code, err := env.electors.GetSecretCode(elector.ID)
	require.NoError(t, err)

	token, err := env.voting.AuthenticateSecretCode(s.election.ID, "Grace Hopper", "grace@example.com", code)
	require.NoError(t, err)
	msg, err := env.voting.CastBallot(token, s.candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, "See you at the reunion.", msg)
}

func TestResetVoteAllowsRevote(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, nil)

	code, err := env.electors.GetSecretCode(s.elector.ID)
	require.NoError(t, err)
	token, err := env.voting.AuthenticateSecretCode(s.election.ID, "Ada Lovelace", "+15551230001", code)
	require.NoError(t, err)
	_, err = env.voting.CastBallot(token, s.candidate.ID)
	require.NoError(t, err)

	require.NoError(t, env.voting.ResetVote(s.election.ID, s.elector.ID))

	count, err := env.db.CountVotes(s.election.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// The elector can authenticate and vote again
	token, err = env.voting.AuthenticateSecretCode(s.election.ID, "Ada Lovelace", "+15551230001", code)
	require.NoError(t, err)
	_, err = env.voting.CastBallot(token, s.candidate.ID)
	require.NoError(t, err)
}

func TestResetVoteOTPFlow(t *testing.T) {
	env := newTestEnv(t)
	admin := seedAdmin(t, env, "alice", "hunter2passw0rd", true)
	s := newBallotSetup(t, env, nil)

	// An unvoted elector has nothing to reset
	err := env.voting.RequestResetVoteOTP(admin, s.elector.ID)
	assert.True(t, IsValidation(err))

	secret, err := env.electors.GetSecretCode(s.elector.ID)
	require.NoError(t, err)
	token, err := env.voting.AuthenticateSecretCode(s.election.ID, "Ada Lovelace", "+15551230001", secret)
	require.NoError(t, err)
	_, err = env.voting.CastBallot(token, s.candidate.ID)
	require.NoError(t, err)

	require.NoError(t, env.voting.RequestResetVoteOTP(admin, s.elector.ID))
	code := env.sender.lastCode(t)

	// A wrong code leaves the vote untouched
	err = env.voting.ConfirmResetVote(admin, s.elector.ID, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	got, err := env.db.GetElector(s.elector.ID)
	require.NoError(t, err)
	assert.True(t, got.HasVoted)

	require.NoError(t, env.voting.ConfirmResetVote(admin, s.elector.ID, code))
	got, err = env.db.GetElector(s.elector.ID)
	require.NoError(t, err)
	assert.False(t, got.HasVoted)
	count, err := env.db.CountVotes(s.election.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestResetVoteWithoutBallot(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, nil)

	err := env.voting.ResetVote(s.election.ID, s.elector.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompletedElectionIsAnonymous(t *testing.T) {
	env := newTestEnv(t)
	s := newBallotSetup(t, env, nil)

	code, err := env.electors.GetSecretCode(s.elector.ID)
	require.NoError(t, err)
	token, err := env.voting.AuthenticateSecretCode(s.election.ID, "Ada Lovelace", "+15551230001", code)
	require.NoError(t, err)
	_, err = env.voting.CastBallot(token, s.candidate.ID)
	require.NoError(t, err)

	_, err = env.elections.EndNow(s.election.ID)
	require.NoError(t, err)

	// The vote itself survives completion
	count, err := env.db.CountVotes(s.election.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// But the receipt linking it to the elector is gone, so a reset is
	// rejected and no join back to the elector exists
	err = env.voting.ResetVote(s.election.ID, s.elector.ID)
	assert.True(t, IsValidation(err))

	votes, err := env.db.ListVotes(s.election.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.NotContains(t, votes[0].ID, s.elector.ID)

	// The receipt row is really gone
	err = env.db.ResetVote(s.election.ID, s.elector.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
