package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
	"gorm.io/gorm"

	"github.com/collectpay/collect-api/internal/types"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrDomainNotAllowed   = errors.New("domain not allowed")
	ErrMerchantNotFound   = errors.New("merchant not found")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

var domainPattern = regexp.MustCompile(`^(?i)([a-z0-9]+(-[a-z0-9]+)*\.)+[a-z]{2,}$`)

const (
	pbkdf2Iterations = 100000
	pbkdf2KeyLen     = 64
)

// Claims is the session token payload for the merchant dashboard.
type Claims struct {
	jwt.RegisteredClaims
	MerchantID string `json:"merchant_id"`
	Role       string `json:"role"`
}

// Service handles merchant identity: registration, login, session tokens,
// API credentials and the HMAC/domain gate that guards signed order creation.
type Service struct {
	db           *Database
	jwtSecret    []byte
	trustedHosts map[string]bool
}

// NewService creates an auth service. trustedHosts are origin hostnames
// exempt from the merchant domain allowlist (typically localhost).
func NewService(db *gorm.DB, jwtSecret string, trustedHosts []string) *Service {
	trusted := make(map[string]bool, len(trustedHosts))
	for _, h := range trustedHosts {
		trusted[strings.ToLower(h)] = true
	}
	return &Service{
		db:           NewDatabase(db),
		jwtSecret:    []byte(jwtSecret),
		trustedHosts: trusted,
	}
}

// Register creates a merchant with a salted password hash and fresh API
// credentials.
func (s *Service) Register(name, email, password, businessName, phone string) (*types.Merchant, error) {
	email = strings.ToLower(email)

	existing, err := s.db.GetMerchantByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	apiKey, apiSecret, err := generateAPICredentials()
	if err != nil {
		return nil, err
	}

	merchant := &types.Merchant{
		ID:           newID(),
		Name:         name,
		Email:        email,
		Password:     HashPassword(password),
		BusinessName: businessName,
		Phone:        phone,
		APIKey:       apiKey,
		APISecret:    apiSecret,
		Role:         types.RoleMerchant,
	}

	if err := s.db.CreateMerchant(merchant); err != nil {
		return nil, err
	}
	return merchant, nil
}

// Login verifies the password and returns the merchant on success.
func (s *Service) Login(email, password string) (*types.Merchant, error) {
	merchant, err := s.db.GetMerchantByEmail(strings.ToLower(email))
	if err != nil {
		return nil, err
	}
	if merchant == nil || !VerifyPassword(password, merchant.Password) {
		return nil, ErrInvalidCredentials
	}
	return merchant, nil
}

// GenerateToken issues a 24-hour session JWT for the merchant dashboard.
func (s *Service) GenerateToken(merchant *types.Merchant) (string, time.Time, error) {
	expiration := time.Now().Add(24 * time.Hour)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		MerchantID: merchant.ID,
		Role:       merchant.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, ErrTokenGeneration
	}
	return tokenString, expiration, nil
}

// ValidateToken verifies a session JWT's signature and expiry.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GetMerchant loads a merchant by id.
func (s *Service) GetMerchant(id string) (*types.Merchant, error) {
	return s.db.GetMerchant(id)
}

// GetMerchantByAPIKey resolves the X-Api-Key header to a merchant.
func (s *Service) GetMerchantByAPIKey(apiKey string) (*types.Merchant, error) {
	return s.db.GetMerchantByAPIKey(apiKey)
}

// VerifyRequestSignature recomputes the HMAC-SHA256 of the untouched raw
// request body under the merchant's secret and compares it to the supplied
// hex signature in constant time. The raw bytes must be used as received:
// re-serializing the body could change its layout and desync the signature.
func (s *Service) VerifyRequestSignature(merchant *types.Merchant, rawBody []byte, signature string) error {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(merchant.APISecret))
	mac.Write(rawBody)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return ErrInvalidSignature
	}
	return nil
}

// SignBody produces the hex HMAC-SHA256 signature a caller must send for the
// given body. Exported for clients and tests.
func SignBody(apiSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckOrigin enforces the domain allowlist: an Origin/Referer resolving to a
// non-trusted hostname must appear in the merchant's allowlist. Empty origins
// pass; non-browser callers carry none.
func (s *Service) CheckOrigin(merchant *types.Merchant, origin string) error {
	host := ExtractHostname(origin)
	if host == "" || s.trustedHosts[host] {
		return nil
	}

	allowed, err := s.db.IsDomainAllowed(merchant.ID, host)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrDomainNotAllowed
	}
	return nil
}

// ExtractHostname pulls the lowercase hostname out of an Origin or Referer
// header value. Malformed values degrade to a best-effort strip of the
// scheme and path.
func ExtractHostname(origin string) string {
	if origin == "" {
		return ""
	}
	if u, err := url.Parse(origin); err == nil && u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}
	host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	host = strings.SplitN(host, "/", 2)[0]
	host = strings.SplitN(host, ":", 2)[0]
	return strings.ToLower(host)
}

// Domains lists a merchant's allowlisted domains.
func (s *Service) Domains(merchantID string) ([]types.MerchantDomain, error) {
	return s.db.GetDomainsByMerchant(merchantID)
}

// AddDomain validates and allowlists a domain for the merchant.
func (s *Service) AddDomain(merchantID, domain string) (*types.MerchantDomain, error) {
	if !domainPattern.MatchString(domain) {
		return nil, fmt.Errorf("invalid domain format: %s", domain)
	}
	return s.db.AddDomain(merchantID, strings.ToLower(domain))
}

// RemoveDomain drops a domain from the allowlist.
func (s *Service) RemoveDomain(domainID string) error {
	return s.db.RemoveDomain(domainID)
}

// RegenerateKeys replaces the merchant's API key and secret. The old pair
// stops working immediately.
func (s *Service) RegenerateKeys(merchantID string) (apiKey, apiSecret string, err error) {
	apiKey, apiSecret, err = generateAPICredentials()
	if err != nil {
		return "", "", err
	}

	err = s.db.UpdateMerchant(merchantID, map[string]interface{}{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	})
	if err != nil {
		return "", "", err
	}
	return apiKey, apiSecret, nil
}

// AllMerchants lists every merchant, newest first.
func (s *Service) AllMerchants() ([]types.Merchant, error) {
	return s.db.GetAllMerchants()
}

// HashPassword derives a salted pbkdf2 hash, stored as "salt:hash" hex.
func HashPassword(password string) string {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	hash := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(hash)
}

// VerifyPassword checks a password against a stored "salt:hash" value.
func VerifyPassword(password, stored string) bool {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	hash := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return hmac.Equal(hash, expected)
}

// generateAPICredentials issues a key of the form cp_live_<32 hex> and a
// 64-hex-character secret.
func generateAPICredentials() (string, string, error) {
	keyBytes := make([]byte, 16)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", "", err
	}
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", err
	}
	return "cp_live_" + hex.EncodeToString(keyBytes), hex.EncodeToString(secretBytes), nil
}

func newID() string {
	return uuid.New().String()
}
