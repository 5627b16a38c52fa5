package services

import (
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// NotificationScope is the only scope a notification token grants.
const NotificationScope = "payment-notification"

// NotificationTokenService issues and checks the tokens embedded in the
// notification URL handed to the payment processor. A token authorizes
// status reports for exactly one order.
type NotificationTokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewNotificationTokenService creates a new NotificationTokenService.
func NewNotificationTokenService(secret string, ttl time.Duration) *NotificationTokenService {
	return &NotificationTokenService{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue returns a signed token for orderID.
func (s *NotificationTokenService) Issue(orderID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"order_id": orderID,
		"scope":    NotificationScope,
		"exp":      now.Add(s.ttl).Unix(),
		"iat":      now.Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign notification token: %w", err)
	}
	return tokenString, nil
}

// Validate parses tokenString and returns the order it was issued for.
func (s *NotificationTokenService) Validate(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if scope, _ := claims["scope"].(string); scope != NotificationScope {
		return "", fmt.Errorf("%w: wrong scope %q", ErrInvalidToken, scope)
	}
	orderID, _ := claims["order_id"].(string)
	if orderID == "" {
		return "", fmt.Errorf("%w: missing order_id", ErrInvalidToken)
	}
	return orderID, nil
}
