package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mautops/timesheet-gin/internal/config"
	"github.com/mautops/timesheet-gin/internal/model"
)

// 上下文中的用户信息键
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
	ContextName   = "name"
)

// rolePriority realm 角色中取最高者
var rolePriority = []model.Role{
	model.RoleSuperAdmin,
	model.RoleManagement,
	model.RoleManager,
	model.RoleLead,
	model.RoleEmployee,
}

// Identity 已认证的调用者
type Identity struct {
	UserID string
	Name   string
	Role   model.Role
}

// TokenValidator JWT 校验器
// 配置 HMAC 密钥时使用 HS256,否则从 JWKS 获取 RSA 公钥
type TokenValidator struct {
	issuer     string
	jwksURL    string
	hmacSecret []byte
	roleClaim  string
	jwksCache  *sync.Map
	httpClient *http.Client
}

// NewTokenValidator 根据认证配置创建校验器
func NewTokenValidator(cfg config.AuthConfig) *TokenValidator {
	jwksURL := cfg.JWKSURL
	if jwksURL == "" && cfg.Issuer != "" {
		jwksURL = fmt.Sprintf("%s/protocol/openid-connect/certs", strings.TrimSuffix(cfg.Issuer, "/"))
	}
	roleClaim := cfg.RoleClaim
	if roleClaim == "" {
		roleClaim = "role"
	}
	v := &TokenValidator{
		issuer:     cfg.Issuer,
		jwksURL:    jwksURL,
		roleClaim:  roleClaim,
		jwksCache:  &sync.Map{},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	if cfg.HMACSecret != "" {
		v.hmacSecret = []byte(cfg.HMACSecret)
	}
	return v
}

// ValidateToken 校验 token 并解析出调用者身份
func (v *TokenValidator) ValidateToken(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("missing subject")
	}

	role, ok := v.resolveRole(claims)
	if !ok {
		return nil, errors.New("token carries no recognised role")
	}

	name, _ := claims["name"].(string)
	if name == "" {
		name, _ = claims["preferred_username"].(string)
	}

	return &Identity{UserID: sub, Name: name, Role: role}, nil
}

func (v *TokenValidator) keyFunc(token *jwt.Token) (interface{}, error) {
	if v.hmacSecret != nil {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.hmacSecret, nil
	}

	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, errors.New("missing kid in token header")
	}
	return v.GetPublicKey(kid)
}

// resolveRole 优先读取配置的角色声明,其次取 realm_access.roles 中级别最高的角色
func (v *TokenValidator) resolveRole(claims jwt.MapClaims) (model.Role, bool) {
	if raw, ok := claims[v.roleClaim].(string); ok {
		role := model.Role(strings.ToLower(raw))
		if role.Valid() {
			return role, true
		}
	}

	realm, ok := claims["realm_access"].(map[string]interface{})
	if !ok {
		return "", false
	}
	rawRoles, _ := realm["roles"].([]interface{})
	granted := make(map[model.Role]bool, len(rawRoles))
	for _, r := range rawRoles {
		if s, ok := r.(string); ok {
			granted[model.Role(strings.ToLower(s))] = true
		}
	}
	for _, role := range rolePriority {
		if granted[role] {
			return role, true
		}
	}
	return "", false
}

// GetPublicKey 获取公钥 (从 JWKS 或缓存)
func (v *TokenValidator) GetPublicKey(kid string) (interface{}, error) {
	if cached, ok := v.jwksCache.Load(kid); ok {
		return cached, nil
	}
	if v.jwksURL == "" {
		return nil, errors.New("no JWKS endpoint configured")
	}

	resp, err := v.httpClient.Get(v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	for _, key := range jwks.Keys {
		if key.Kid != kid {
			continue
		}
		publicKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
		v.jwksCache.Store(kid, publicKey)
		return publicKey, nil
	}

	return nil, fmt.Errorf("key not found in JWKS: %s", kid)
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode n: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode e: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// AuthMiddleware JWT 认证中间件,将调用者写入 gin 上下文
func AuthMiddleware(validator *TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "missing authorization header",
			})
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")

		identity, err := validator.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "invalid token",
				"detail":  err.Error(),
			})
			return
		}

		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextRole, identity.Role)
		c.Set(ContextName, identity.Name)

		c.Next()
	}
}

// IdentityFromContext 读取认证中间件写入的调用者
func IdentityFromContext(c *gin.Context) (Identity, bool) {
	userID := c.GetString(ContextUserID)
	raw, exists := c.Get(ContextRole)
	if userID == "" || !exists {
		return Identity{}, false
	}
	role, ok := raw.(model.Role)
	if !ok {
		return Identity{}, false
	}
	return Identity{UserID: userID, Name: c.GetString(ContextName), Role: role}, true
}
