package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/collectpay/collect-api/internal/types"
)

func setupTestService(t *testing.T) *Service {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Merchant{}, &types.MerchantDomain{}))
	return NewService(db, "test-session-secret", []string{"localhost", "127.0.0.1"})
}

func registerTestMerchant(t *testing.T, svc *Service) *types.Merchant {
	merchant, err := svc.Register("Asha Verma", "asha@example.com", "super-secret-pw", "Asha Stores", "9876543210")
	require.NoError(t, err)
	return merchant
}

func TestPasswordHashing(t *testing.T) {
	hashed := HashPassword("super-secret-pw")
	assert.Contains(t, hashed, ":")
	assert.NotContains(t, hashed, "super-secret-pw")

	assert.True(t, VerifyPassword("super-secret-pw", hashed))
	assert.False(t, VerifyPassword("wrong-password", hashed))
	assert.False(t, VerifyPassword("super-secret-pw", "malformed"))

	// Same password hashes differently thanks to the random salt.
	assert.NotEqual(t, hashed, HashPassword("super-secret-pw"))
}

func TestRegisterAndLogin(t *testing.T) {
	svc := setupTestService(t)

	merchant := registerTestMerchant(t, svc)
	assert.True(t, strings.HasPrefix(merchant.APIKey, "cp_live_"))
	assert.Len(t, merchant.APIKey, len("cp_live_")+32)
	assert.Len(t, merchant.APISecret, 64)
	assert.Equal(t, types.RoleMerchant, merchant.Role)

	t.Run("duplicate email rejected", func(t *testing.T) {
		_, err := svc.Register("Other", "ASHA@example.com", "another-pass", "Other Stores", "")
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("login succeeds case insensitively", func(t *testing.T) {
		found, err := svc.Login("Asha@Example.com", "super-secret-pw")
		require.NoError(t, err)
		assert.Equal(t, merchant.ID, found.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login("asha@example.com", "not-the-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Login("nobody@example.com", "super-secret-pw")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestSessionTokens(t *testing.T) {
	svc := setupTestService(t)
	merchant := registerTestMerchant(t, svc)

	token, expiration, err := svc.GenerateToken(merchant)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiration, time.Minute)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, merchant.ID, claims.MerchantID)
	assert.Equal(t, types.RoleMerchant, claims.Role)

	t.Run("tampered token rejected", func(t *testing.T) {
		_, err := svc.ValidateToken(token + "x")
		assert.Error(t, err)
	})

	t.Run("foreign secret rejected", func(t *testing.T) {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
		require.NoError(t, err)
		require.NoError(t, db.AutoMigrate(&types.Merchant{}, &types.MerchantDomain{}))
		other := NewService(db, "different-secret", nil)

		_, err = other.ValidateToken(token)
		assert.Error(t, err)
	})
}

func TestRequestSignatures(t *testing.T) {
	svc := setupTestService(t)
	merchant := registerTestMerchant(t, svc)
	body := []byte(`{"customer_name":"Asha Verma","amount":150.00}`)

	signature := SignBody(merchant.APISecret, body)
	assert.NoError(t, svc.VerifyRequestSignature(merchant, body, signature))

	t.Run("tampered body", func(t *testing.T) {
		tampered := []byte(`{"customer_name":"Asha Verma","amount":1150.00}`)
		err := svc.VerifyRequestSignature(merchant, tampered, signature)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("wrong secret", func(t *testing.T) {
		err := svc.VerifyRequestSignature(merchant, body, SignBody("other-secret", body))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("non-hex signature", func(t *testing.T) {
		err := svc.VerifyRequestSignature(merchant, body, "not-hex!")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestExtractHostname(t *testing.T) {
	cases := []struct {
		origin string
		want   string
	}{
		{"https://shop.example.com", "shop.example.com"},
		{"https://Shop.Example.COM/checkout", "shop.example.com"},
		{"http://localhost:3000", "localhost"},
		{"shop.example.com:8080/cart", "shop.example.com"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractHostname(tc.origin), "origin %q", tc.origin)
	}
}

func TestCheckOrigin(t *testing.T) {
	svc := setupTestService(t)
	merchant := registerTestMerchant(t, svc)

	t.Run("empty origin passes", func(t *testing.T) {
		assert.NoError(t, svc.CheckOrigin(merchant, ""))
	})

	t.Run("trusted host passes without allowlist", func(t *testing.T) {
		assert.NoError(t, svc.CheckOrigin(merchant, "http://localhost:3000"))
	})

	t.Run("unknown domain denied", func(t *testing.T) {
		err := svc.CheckOrigin(merchant, "https://evil.example.com")
		assert.ErrorIs(t, err, ErrDomainNotAllowed)
	})

	t.Run("allowlisted domain passes", func(t *testing.T) {
		_, err := svc.AddDomain(merchant.ID, "shop.example.com")
		require.NoError(t, err)
		assert.NoError(t, svc.CheckOrigin(merchant, "https://shop.example.com/checkout"))
	})
}

func TestDomainManagement(t *testing.T) {
	svc := setupTestService(t)
	merchant := registerTestMerchant(t, svc)

	t.Run("valid domain is stored lowercase", func(t *testing.T) {
		domain, err := svc.AddDomain(merchant.ID, "Shop.Example.COM")
		require.NoError(t, err)
		assert.Equal(t, "shop.example.com", domain.Domain)
	})

	t.Run("invalid formats rejected", func(t *testing.T) {
		for _, bad := range []string{"not a domain", "http://shop.example.com", "shop", "-bad.example.com"} {
			_, err := svc.AddDomain(merchant.ID, bad)
			assert.Error(t, err, "domain %q", bad)
		}
	})

	t.Run("remove drops the domain", func(t *testing.T) {
		domain, err := svc.AddDomain(merchant.ID, "store.example.in")
		require.NoError(t, err)

		require.NoError(t, svc.RemoveDomain(domain.ID))

		domains, err := svc.Domains(merchant.ID)
		require.NoError(t, err)
		for _, d := range domains {
			assert.NotEqual(t, "store.example.in", d.Domain)
		}
	})
}

func TestRegenerateKeys(t *testing.T) {
	svc := setupTestService(t)
	merchant := registerTestMerchant(t, svc)

	apiKey, apiSecret, err := svc.RegenerateKeys(merchant.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(apiKey, "cp_live_"))
	assert.NotEqual(t, merchant.APIKey, apiKey)
	assert.NotEqual(t, merchant.APISecret, apiSecret)

	// The old key no longer resolves; the new one does.
	old, err := svc.GetMerchantByAPIKey(merchant.APIKey)
	require.NoError(t, err)
	assert.Nil(t, old)

	current, err := svc.GetMerchantByAPIKey(apiKey)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, merchant.ID, current.ID)
}
