package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/JavaBool/votely/internal/database/models"
)

// Claims represents the JWT claims for an authenticated admin session
type Claims struct {
	AdminID             string `json:"admin_id"`
	Username            string `json:"username"`
	IsSuperAdmin        bool   `json:"is_super_admin"`
	PermManageElections bool   `json:"perm_manage_elections"`
	PermManageElectors  bool   `json:"perm_manage_electors"`
	PermManageAdmins    bool   `json:"perm_manage_admins"`
	ForceChangePassword bool   `json:"force_change_password"`
	jwt.RegisteredClaims
}

// BallotClaims represents the short-lived JWT issued to an authenticated
// elector. The token is single-use: its ID is marked spent when the ballot
// is cast.
type BallotClaims struct {
	ElectorID  string `json:"elector_id"`
	ElectionID string `json:"election_id"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token generation and validation
type JWTManager struct {
	secret           []byte
	expiration       time.Duration
	ballotExpiration time.Duration
	issuer           string

	mu    sync.Mutex
	spent map[string]time.Time // ballot token ID -> expiry
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, expiration, ballotExpiration time.Duration, issuer string) *JWTManager {
	return &JWTManager{
		secret:           []byte(secret),
		expiration:       expiration,
		ballotExpiration: ballotExpiration,
		issuer:           issuer,
		spent:            make(map[string]time.Time),
	}
}

// GenerateToken generates a session token for an admin
func (m *JWTManager) GenerateToken(admin *models.Admin) (string, error) {
	now := time.Now()
	claims := &Claims{
		AdminID:             admin.ID,
		Username:            admin.Username,
		IsSuperAdmin:        admin.IsSuperAdmin,
		PermManageElections: admin.PermManageElections,
		PermManageElectors:  admin.PermManageElectors,
		PermManageAdmins:    admin.PermManageAdmins,
		ForceChangePassword: admin.ForceChangePassword,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates an admin session token and returns its claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// GenerateBallotToken generates a short-lived single-use token for an elector
// who has passed one of the voter authentication paths.
func (m *JWTManager) GenerateBallotToken(electorID, electionID string) (string, error) {
	now := time.Now()
	claims := &BallotClaims{
		ElectorID:  electorID,
		ElectionID: electionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   electorID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ballotExpiration)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign ballot token: %w", err)
	}
	return signed, nil
}

// ValidateBallotToken validates an elector's ballot token. A token whose ID
// has been marked spent is rejected even when its signature and expiry are
// still good.
func (m *JWTManager) ValidateBallotToken(tokenString string) (*BallotClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &BallotClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid ballot token: %w", err)
	}

	claims, ok := token.Claims.(*BallotClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid ballot token claims")
	}

	m.mu.Lock()
	_, used := m.spent[claims.ID]
	m.mu.Unlock()
	if used {
		return nil, fmt.Errorf("ballot token already used")
	}

	return claims, nil
}

// MarkBallotTokenUsed records a ballot token ID as spent. Expired markers are
// swept opportunistically since their tokens can no longer validate anyway.
func (m *JWTManager) MarkBallotTokenUsed(claims *BallotClaims) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, exp := range m.spent {
		if exp.Before(now) {
			delete(m.spent, id)
		}
	}

	expiry := now.Add(m.ballotExpiration)
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}
	m.spent[claims.ID] = expiry
}
