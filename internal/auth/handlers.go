package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/collectpay/collect-api/internal/audit"
	"github.com/collectpay/collect-api/internal/types"
	"github.com/collectpay/collect-api/pkg/response"
)

// GinHandlers contains HTTP handlers for merchant identity endpoints
type GinHandlers struct {
	service *Service
	audit   *audit.Logger
}

// NewGinHandlers creates a new set of HTTP handlers for identity endpoints
func NewGinHandlers(service *Service, auditLogger *audit.Logger) *GinHandlers {
	return &GinHandlers{
		service: service,
		audit:   auditLogger,
	}
}

type registerRequest struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	BusinessName string `json:"business_name" binding:"required"`
	Phone        string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterHandler handles POST requests to register a new merchant.
// The API secret is returned once, at registration time.
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		merchant, err := h.service.Register(req.Name, req.Email, req.Password, req.BusinessName, req.Phone)
		if err == ErrEmailTaken {
			response.BadRequest(c, err.Error())
			return
		}
		if err != nil {
			response.InternalError(c, "registration failed")
			return
		}

		h.audit.Log(merchant.Email, merchant.ID, audit.ActionRegister, map[string]interface{}{
			"business_name": merchant.BusinessName,
		}, c.ClientIP())

		token, expiration, err := h.service.GenerateToken(merchant)
		if err != nil {
			response.InternalError(c, "registration failed")
			return
		}

		response.Success(c, gin.H{
			"token":      token,
			"expiration": expiration,
			"merchant": gin.H{
				"id":            merchant.ID,
				"name":          merchant.Name,
				"email":         merchant.Email,
				"business_name": merchant.BusinessName,
				"role":          merchant.Role,
				"api_key":       merchant.APIKey,
				"api_secret":    merchant.APISecret,
			},
		})
	}
}

// LoginHandler handles POST requests to authenticate a merchant
func (h *GinHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "email and password required")
			return
		}

		merchant, err := h.service.Login(req.Email, req.Password)
		if err == ErrInvalidCredentials {
			response.Unauthorized(c, err.Error())
			return
		}
		if err != nil {
			response.InternalError(c, "login failed")
			return
		}

		h.audit.Log(merchant.Email, merchant.ID, audit.ActionLogin, map[string]interface{}{
			"success": true,
		}, c.ClientIP())

		token, expiration, err := h.service.GenerateToken(merchant)
		if err != nil {
			response.InternalError(c, "login failed")
			return
		}

		response.Success(c, gin.H{
			"token":      token,
			"expiration": expiration,
			"merchant": gin.H{
				"id":            merchant.ID,
				"name":          merchant.Name,
				"email":         merchant.Email,
				"business_name": merchant.BusinessName,
				"role":          merchant.Role,
			},
		})
	}
}

// ProfileHandler handles GET requests for the authenticated merchant profile
func (h *GinHandlers) ProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchant := MerchantFromContext(c)
		if merchant == nil {
			response.Unauthorized(c, "authentication required")
			return
		}

		domains, err := h.service.Domains(merchant.ID)
		if err != nil {
			response.InternalError(c, "failed to fetch profile")
			return
		}

		response.Success(c, gin.H{
			"id":            merchant.ID,
			"name":          merchant.Name,
			"email":         merchant.Email,
			"business_name": merchant.BusinessName,
			"phone":         merchant.Phone,
			"role":          merchant.Role,
			"api_key":       merchant.APIKey,
			"domains":       domains,
			"created_at":    merchant.CreatedAt,
		})
	}
}

// ListDomainsHandler handles GET requests for the merchant's domain allowlist
func (h *GinHandlers) ListDomainsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchant := MerchantFromContext(c)
		domains, err := h.service.Domains(merchant.ID)
		response.Handle(c, domains, err)
	}
}

// AddDomainHandler handles POST requests to allowlist a domain
func (h *GinHandlers) AddDomainHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchant := MerchantFromContext(c)

		var req struct {
			Domain string `json:"domain" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "domain is required")
			return
		}

		domain, err := h.service.AddDomain(merchant.ID, req.Domain)
		if err != nil {
			response.BadRequest(c, "invalid domain format")
			return
		}

		h.audit.Log(merchant.Email, merchant.ID, audit.ActionDomainAdd, map[string]interface{}{
			"domain": domain.Domain,
		}, c.ClientIP())

		response.Success(c, domain)
	}
}

// RemoveDomainHandler handles DELETE requests to drop an allowlisted domain
func (h *GinHandlers) RemoveDomainHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchant := MerchantFromContext(c)
		domainID := c.Param("id")

		if err := h.service.RemoveDomain(domainID); err != nil {
			response.InternalError(c, "failed to remove domain")
			return
		}

		h.audit.Log(merchant.Email, merchant.ID, audit.ActionDomainRemove, map[string]interface{}{
			"domain_id": domainID,
		}, c.ClientIP())

		response.Success(c, gin.H{"message": "domain removed"})
	}
}

// RegenerateKeysHandler handles POST requests to rotate API credentials
func (h *GinHandlers) RegenerateKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchant := MerchantFromContext(c)

		apiKey, apiSecret, err := h.service.RegenerateKeys(merchant.ID)
		if err != nil {
			response.InternalError(c, "failed to regenerate keys")
			return
		}

		h.audit.Log(merchant.Email, merchant.ID, audit.ActionAPIKeyRegenerate, map[string]interface{}{}, c.ClientIP())

		response.Success(c, gin.H{
			"api_key":    apiKey,
			"api_secret": apiSecret,
		})
	}
}

// AdminMerchantsHandler handles GET requests for the merchant directory
// (admin). Admin accounts themselves are not listed.
func (h *GinHandlers) AdminMerchantsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchants, err := h.service.AllMerchants()
		if err != nil {
			response.InternalError(c, "failed to fetch merchants")
			return
		}

		out := make([]gin.H, 0, len(merchants))
		for _, m := range merchants {
			if m.Role == types.RoleAdmin {
				continue
			}
			out = append(out, gin.H{
				"id":            m.ID,
				"name":          m.Name,
				"email":         m.Email,
				"business_name": m.BusinessName,
				"created_at":    m.CreatedAt,
			})
		}
		response.Success(c, out)
	}
}

// MerchantFromContext returns the merchant set by the auth middleware, or nil.
func MerchantFromContext(c *gin.Context) *types.Merchant {
	value, exists := c.Get("merchant")
	if !exists {
		return nil
	}
	merchant, ok := value.(*types.Merchant)
	if !ok {
		return nil
	}
	return merchant
}
