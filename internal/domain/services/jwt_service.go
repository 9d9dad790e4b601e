package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/error/code"
	"sams-http-service/internal/infrastructure/config"
)

// LoginObserver 接收登录结果，用于失败登录告警
type LoginObserver interface {
	RecordFailedLogin(ctx context.Context, username, ip string) (*models.Alert, error)
	ClearFailedLogins(ctx context.Context, username string) error
}

// InterfaceJWTService 定义JWT服务接口
type InterfaceJWTService interface {
	GenerateToken(identity models.Identity) (string, time.Time, error)
	ValidateToken(tokenString string) (*models.Identity, error)
	Login(ctx context.Context, username, password, ip string) (*LoginResult, error)
}

// LoginResult 表示登录结果
type LoginResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      models.Identity `json:"user"`
}

// JWTClaims 定义JWT令牌的声明结构
type JWTClaims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	SiteIDs  []uint `json:"site_ids,omitempty"`
	AllSites bool   `json:"all_sites,omitempty"`
	jwt.RegisteredClaims
}

// JWTService 提供JWT相关服务
type JWTService struct {
	secretKey string
	issuer    string
	ttl       time.Duration
	DB        *gorm.DB
	observer  LoginObserver
	log       *zap.Logger
	now       clock
}

// NewJWTService 创建一个新的JWT服务
func NewJWTService(cfg *config.Config, db *gorm.DB, observer LoginObserver, log *zap.Logger) *JWTService {
	ttl := cfg.JWTTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{
		secretKey: cfg.JWTSecretKey,
		issuer:    "sams-http-service",
		ttl:       ttl,
		DB:        db,
		observer:  observer,
		log:       log,
		now:       utcNow,
	}
}

// 1 GenerateToken 生成JWT令牌
func (s *JWTService) GenerateToken(identity models.Identity) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := &JWTClaims{
		UserID:   identity.UserID,
		Username: identity.Username,
		Role:     string(identity.Role),
		SiteIDs:  identity.SiteIDs,
		AllSites: identity.AllSites,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", identity.UserID),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// 2 ValidateToken 验证JWT令牌并返回调用方身份
func (s *JWTService) ValidateToken(tokenString string) (*models.Identity, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, code.New(code.ErrTokenInvalid, "无效或已过期的令牌")
	}
	if claims.UserID == 0 || claims.Role == "" {
		return nil, code.New(code.ErrTokenInvalid, "令牌声明不完整")
	}

	return &models.Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     models.Role(claims.Role),
		SiteIDs:  claims.SiteIDs,
		AllSites: claims.AllSites,
	}, nil
}

// 3 Login 处理用户登录请求，失败次数交由告警规则统计
func (s *JWTService) Login(ctx context.Context, username, password, ip string) (*LoginResult, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Preload("Sites").Where("username = ?", username).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dbError(err, 0)
	}

	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		if _, ferr := s.observer.RecordFailedLogin(ctx, username, ip); ferr != nil {
			s.log.Warn("记录登录失败次数出错", zap.String("username", username), zap.Error(ferr))
		}
		return nil, code.New(code.ErrUserPasswordIncorrect, "")
	}
	if user.Status != "active" {
		return nil, code.New(code.ErrUserDisabled, "")
	}

	if err := s.observer.ClearFailedLogins(ctx, username); err != nil {
		s.log.Warn("清除登录失败记录出错", zap.String("username", username), zap.Error(err))
	}

	identity := models.Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		SiteIDs:  user.SiteIDs(),
		AllSites: user.AllSites,
	}
	token, expiresAt, err := s.GenerateToken(identity)
	if err != nil {
		return nil, err
	}

	s.log.Info("用户登录成功", zap.Uint("user_id", user.ID), zap.String("ip", ip))
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: identity}, nil
}
