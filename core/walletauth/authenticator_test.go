package walletauth

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainFM/model"
)

// fakeProfiles records GetOrCreate calls without a database.
type fakeProfiles struct {
	created []string
}

func (f *fakeProfiles) GetByWallet(wallet string) (*model.Profile, error) { return nil, nil }
func (f *fakeProfiles) Create(profile *model.Profile) error              { return nil }
func (f *fakeProfiles) Update(wallet string, displayName, avatarURL *string) (*model.Profile, error) {
	return nil, nil
}
func (f *fakeProfiles) GetOrCreate(wallet string) (*model.Profile, error) {
	f.created = append(f.created, wallet)
	return &model.Profile{WalletAddress: strings.ToLower(wallet)}, nil
}

// newTestWallet returns a throwaway key and its address.
func newTestWallet(t *testing.T) (privKeyHex, address string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestVerifyHappyPath(t *testing.T) {
	keyHex, wallet := newTestWallet(t)
	profiles := &fakeProfiles{}
	auth := NewAuthenticator(NewMemNonceStore(nil), profiles)
	ctx := context.Background()

	challenge, err := auth.IssueNonce(ctx, wallet)
	require.NoError(t, err)
	assert.Contains(t, challenge, "ChainFM wants you to sign in")

	sig, err := SignChallenge(challenge, keyHex)
	require.NoError(t, err)

	profile, err := auth.Verify(ctx, wallet, challenge, sig)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(wallet), profile.WalletAddress)
	assert.Len(t, profiles.created, 1)
}

func TestVerifyNonceIsSingleUse(t *testing.T) {
	keyHex, wallet := newTestWallet(t)
	auth := NewAuthenticator(NewMemNonceStore(nil), &fakeProfiles{})
	ctx := context.Background()

	challenge, err := auth.IssueNonce(ctx, wallet)
	require.NoError(t, err)
	sig, err := SignChallenge(challenge, keyHex)
	require.NoError(t, err)

	_, err = auth.Verify(ctx, wallet, challenge, sig)
	require.NoError(t, err)

	// Replaying the same challenge and signature must fail.
	_, err = auth.Verify(ctx, wallet, challenge, sig)
	assert.ErrorIs(t, err, ErrNonceExpired)
}

func TestVerifyWrongSigner(t *testing.T) {
	_, wallet := newTestWallet(t)
	otherKeyHex, _ := newTestWallet(t)

	auth := NewAuthenticator(NewMemNonceStore(nil), &fakeProfiles{})
	ctx := context.Background()

	challenge, err := auth.IssueNonce(ctx, wallet)
	require.NoError(t, err)

	sig, err := SignChallenge(challenge, otherKeyHex)
	require.NoError(t, err)

	_, err = auth.Verify(ctx, wallet, challenge, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyMalformedSignature(t *testing.T) {
	_, wallet := newTestWallet(t)
	auth := NewAuthenticator(NewMemNonceStore(nil), &fakeProfiles{})
	ctx := context.Background()

	challenge, err := auth.IssueNonce(ctx, wallet)
	require.NoError(t, err)

	_, err = auth.Verify(ctx, wallet, challenge, "0xdeadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyExpiredNonce(t *testing.T) {
	keyHex, wallet := newTestWallet(t)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	nonces := NewMemNonceStore(func() time.Time { return current })
	auth := NewAuthenticator(nonces, &fakeProfiles{})
	ctx := context.Background()

	challenge, err := auth.IssueNonce(ctx, wallet)
	require.NoError(t, err)
	sig, err := SignChallenge(challenge, keyHex)
	require.NoError(t, err)

	current = current.Add(NonceTTL + time.Second)

	_, err = auth.Verify(ctx, wallet, challenge, sig)
	assert.ErrorIs(t, err, ErrNonceExpired)
}

func TestVerifyStaleChallengeAfterReissue(t *testing.T) {
	keyHex, wallet := newTestWallet(t)
	auth := NewAuthenticator(NewMemNonceStore(nil), &fakeProfiles{})
	ctx := context.Background()

	first, err := auth.IssueNonce(ctx, wallet)
	require.NoError(t, err)
	_, err = auth.IssueNonce(ctx, wallet)
	require.NoError(t, err)

	sig, err := SignChallenge(first, keyHex)
	require.NoError(t, err)

	// Only the latest challenge is live.
	_, err = auth.Verify(ctx, wallet, first, sig)
	assert.ErrorIs(t, err, ErrNonceExpired)
}

func TestVerifyWalletCaseInsensitive(t *testing.T) {
	keyHex, wallet := newTestWallet(t)
	auth := NewAuthenticator(NewMemNonceStore(nil), &fakeProfiles{})
	ctx := context.Background()

	challenge, err := auth.IssueNonce(ctx, strings.ToUpper(wallet))
	require.NoError(t, err)
	sig, err := SignChallenge(challenge, keyHex)
	require.NoError(t, err)

	_, err = auth.Verify(ctx, strings.ToLower(wallet), challenge, sig)
	assert.NoError(t, err)
}

func TestRecoverSignerRoundTrip(t *testing.T) {
	keyHex, wallet := newTestWallet(t)

	message := "arbitrary message"
	sig, err := SignChallenge(message, keyHex)
	require.NoError(t, err)

	recovered, err := RecoverSigner(message, sig)
	require.NoError(t, err)
	assert.Equal(t, wallet, recovered)
}

func TestRecoverSignerRejectsShortSignature(t *testing.T) {
	_, err := RecoverSigner("msg", "0x0102")
	assert.Error(t, err)
}

func TestTokenIssueParseRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	token, err := issuer.Issue("0xAbC0000000000000000000000000000000000001")
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "0xAbC0000000000000000000000000000000000001", claims.WalletAddress)
}

func TestTokenParseRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a").Issue("0xabc")
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret-b").Parse(token)
	assert.Error(t, err)
}
