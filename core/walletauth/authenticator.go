// Package walletauth authenticates wallet ownership through single-use,
// time-boxed signature challenges. A wallet asks for a nonce, signs it,
// and trades the signature for a profile; the nonce is consumed on
// success so the signature cannot be replayed.
package walletauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ChainFM/logger"
	"ChainFM/model"
	"ChainFM/repository"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// NonceTTL bounds how long an issued challenge stays valid.
const NonceTTL = 5 * time.Minute

var (
	// ErrNonceExpired covers an absent, expired or mismatched challenge.
	ErrNonceExpired = errors.New("nonce expired or missing")

	// ErrInvalidSignature means the recovered signer does not match the
	// claimed wallet.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Authenticator issues and verifies wallet challenges.
type Authenticator struct {
	nonces   NonceStore
	profiles repository.ProfileRepository
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(nonces NonceStore, profiles repository.ProfileRepository) *Authenticator {
	return &Authenticator{nonces: nonces, profiles: profiles}
}

// IssueNonce generates a fresh challenge for the wallet, overwriting any
// prior pending one. Concurrent issuance for the same wallet is
// last-write-wins; only the caller holds the fresh value, so that is safe.
func (a *Authenticator) IssueNonce(ctx context.Context, wallet string) (string, error) {
	challenge := fmt.Sprintf("ChainFM wants you to sign in: %s", uuid.New().String())
	if err := a.nonces.Save(ctx, wallet, challenge, NonceTTL); err != nil {
		return "", err
	}
	logger.Debug("Nonce issued", logger.String("wallet", strings.ToLower(wallet)))
	return challenge, nil
}

// Verify checks the signature over a previously issued challenge. On
// success the nonce is deleted, making replay with the same challenge
// impossible, and the wallet's profile is returned (created on first
// sign-in).
func (a *Authenticator) Verify(ctx context.Context, wallet, challenge, signature string) (*model.Profile, error) {
	stored, err := a.nonces.Get(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if stored == "" || stored != challenge {
		return nil, ErrNonceExpired
	}

	signer, err := RecoverSigner(challenge, signature)
	if err != nil {
		logger.Warn("Signature recovery failed",
			logger.String("wallet", wallet),
			logger.ErrorField(err))
		return nil, ErrInvalidSignature
	}
	if !strings.EqualFold(signer, wallet) {
		logger.Warn("Signer mismatch",
			logger.String("claimed", wallet),
			logger.String("recovered", signer))
		return nil, ErrInvalidSignature
	}

	// Consume the nonce before handing back a profile; a second verify
	// with the same challenge must fail.
	if err := a.nonces.Delete(ctx, wallet); err != nil {
		return nil, err
	}

	profile, err := a.profiles.GetOrCreate(wallet)
	if err != nil {
		return nil, err
	}

	logger.Info("Wallet authenticated", logger.String("wallet", profile.WalletAddress))
	return profile, nil
}

// RecoverSigner recovers the address that produced an EIP-191
// personal-sign signature over the given message.
func RecoverSigner(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("malformed signature: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	// Wallets return V as 27/28; secp256k1 recovery wants 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := personalSignDigest(message)
	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("public key recovery failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey).Hex(), nil
}

// SignChallenge signs a challenge with a raw private key. Test helper for
// producing valid signatures without a wallet.
func SignChallenge(message string, privKeyHex string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(personalSignDigest(message), key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

func personalSignDigest(message string) []byte {
	prefixed := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message)) + message
	return crypto.Keccak256([]byte(prefixed))
}
