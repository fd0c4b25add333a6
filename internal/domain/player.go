package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxClientTokenLen = 64

var (
	ErrClientTokenEmpty   = errors.New("client token empty")
	ErrClientTokenTooLong = errors.New("client token too long")
)

type (
	PlayerID    string
	ClientToken string
)

// Player is the bookkeeping record of one attached player.
type Player struct {
	ID        PlayerID    `json:"id"`
	Owner     ClientToken `json:"-"`
	Endpoint  string      `json:"endpoint"`
	CreatedAt time.Time   `json:"created_at"`
}

func NewPlayer(owner ClientToken, endpoint string) (*Player, error) {
	if len(owner) == 0 {
		return nil, ErrClientTokenEmpty
	}
	if len(owner) > MaxClientTokenLen {
		return nil, ErrClientTokenTooLong
	}
	return &Player{
		ID:        PlayerID(uuid.NewString()),
		Owner:     owner,
		Endpoint:  endpoint,
		CreatedAt: time.Now(),
	}, nil
}
