package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
)

// There are no accounts: a member token is minted when a display name is
// admitted to a room and proves nothing beyond that membership. It expires
// with the room.
const (
	memberTokenCookie = "member_token"

	roomIdClaim = "room-id"
	nameClaim   = "name"
	expClaim    = "exp"
)

type contextKey string

const membershipKey contextKey = "membership"

// Membership identifies a display name admitted to a room.
type Membership struct {
	RoomId string
	Name   string
}

func WithMembership(ctx context.Context, m Membership) context.Context {
	return context.WithValue(ctx, membershipKey, m)
}

func MembershipFrom(ctx context.Context) (Membership, bool) {
	m, ok := ctx.Value(membershipKey).(Membership)
	return m, ok
}

// createMemberToken mints an HS256 token for the member, expiring when the
// room does (expiresAt in epoch milliseconds).
func (s *DropRoomApp) createMemberToken(roomId, name string, expiresAt int64) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		roomIdClaim: roomId,
		nameClaim:   name,
		expClaim:    expiresAt / 1000,
	})

	return token.SignedString(s.signingKey)
}

func (s *DropRoomApp) parseMemberToken(tokenString string) (Membership, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return Membership{}, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return Membership{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Membership{}, fmt.Errorf("invalid token claims")
	}

	roomId, ok := claims[roomIdClaim].(string)
	if !ok || roomId == "" {
		return Membership{}, fmt.Errorf("invalid room id claim")
	}

	name, ok := claims[nameClaim].(string)
	if !ok || name == "" {
		return Membership{}, fmt.Errorf("invalid name claim")
	}

	return Membership{RoomId: roomId, Name: name}, nil
}

func createMemberCookie(tokenString string, expiresAt int64) *http.Cookie {
	return &http.Cookie{
		Name:     memberTokenCookie,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.UnixMilli(expiresAt),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
