// Package auth implements the identity collaborator: it turns a bearer
// token into a verified actor with its attribute snapshot. The gateway
// core never inspects tokens itself.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/devastator99/socratic-gateway/pkg/interfaces"
	"github.com/devastator99/socratic-gateway/pkg/types"
)

// walletClaims is the token payload issued by the wallet auth service:
// the wallet address plus the NFT holdings verified at sign-in.
type walletClaims struct {
	jwt.RegisteredClaims
	WalletAddress string   `json:"wallet_address"`
	NFTHoldings   []string `json:"nft_holdings"`
}

// JWTVerifier validates HMAC-signed wallet tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTVerifier creates a verifier for tokens signed with secret. If
// issuer is non-empty, the token's iss claim must match.
func NewJWTVerifier(secret []byte, issuer string) *JWTVerifier {
	return &JWTVerifier{
		secret: secret,
		issuer: issuer,
		now:    time.Now,
	}
}

// Verify parses and validates the token, returning the actor it encodes.
func (v *JWTVerifier) Verify(token string) (types.Actor, error) {
	if token == "" {
		return types.Actor{}, interfaces.ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims walletClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return types.Actor{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return types.Actor{}, interfaces.ErrInvalidToken
	}
	if !types.IsValidWallet(claims.WalletAddress) {
		return types.Actor{}, types.ErrInvalidWallet
	}

	return types.Actor{
		Wallet:   claims.WalletAddress,
		Holdings: claims.NFTHoldings,
	}, nil
}
