package auth

import (
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Error text doubles as the protocol message sent to clients.
var (
	ErrTokenRequired = errors.New("Authentication token required")
	ErrInvalidFormat = errors.New("Invalid token format")
	ErrTokenExpired  = errors.New("Token expired")
	ErrTampered      = errors.New("Invalid or tampered token")
)

// TicketTTL bounds the lifetime of a signed match ticket.
const TicketTTL = 60 * time.Second

// Ticket proves a player was matched into a specific room.
type Ticket struct {
	PlayerID string
	RoomID   string
}

// Service verifies bearer tokens and mints match tickets. With no secret
// configured (dev mode) tokens are decoded unsigned but exp is still enforced.
type Service struct {
	secret      []byte
	requireAuth bool
}

func NewService(secret string, requireAuth bool) *Service {
	s := &Service{requireAuth: requireAuth}
	if secret != "" {
		s.secret = []byte(secret)
	}
	return s
}

// CanSign reports whether a shared secret is configured.
func (s *Service) CanSign() bool {
	return len(s.secret) > 0
}

// Authenticate resolves a bearer token to a player id. A missing token yields
// an ephemeral anonymous id unless auth is required.
func (s *Service) Authenticate(token string) (string, error) {
	if token == "" {
		if s.requireAuth || s.CanSign() {
			return "", ErrTokenRequired
		}
		return AnonID(), nil
	}

	claims := jwt.MapClaims{}

	if s.CanSign() {
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrTampered
			}
			return s.secret, nil
		})
		if err != nil || !parsed.Valid {
			return "", classify(err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return "", ErrInvalidFormat
		}
		exp, err := claims.GetExpirationTime()
		if err != nil {
			return "", ErrInvalidFormat
		}
		if exp != nil && exp.Before(time.Now()) {
			return "", ErrTokenExpired
		}
	}

	id, ok := claims["id"].(string)
	if !ok || id == "" {
		return "", ErrInvalidFormat
	}
	return id, nil
}

// MintTicket signs a short-lived match ticket binding playerID to roomID.
func (s *Service) MintTicket(playerID, roomID string) (string, error) {
	if !s.CanSign() {
		return "", errors.New("ticket secret not configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"playerId": playerID,
		"roomId":   roomID,
		"iat":      now.Unix(),
		"exp":      now.Add(TicketTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyTicket checks a match ticket's signature and expiry.
func (s *Service) VerifyTicket(token string) (Ticket, error) {
	if !s.CanSign() {
		return Ticket{}, errors.New("ticket secret not configured")
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTampered
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Ticket{}, classify(err)
	}

	playerID, _ := claims["playerId"].(string)
	roomID, _ := claims["roomId"].(string)
	if playerID == "" || roomID == "" {
		return Ticket{}, ErrInvalidFormat
	}
	return Ticket{PlayerID: playerID, RoomID: roomID}, nil
}

// AnonID generates an ephemeral player id for unauthenticated dev connections.
func AnonID() string {
	return "anon_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + strconv.FormatInt(rand.Int63n(1<<40), 36)
}

func classify(err error) error {
	switch {
	case err == nil:
		return ErrTampered
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrInvalidFormat
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTampered
	}
}
