package strategy

import (
	"github.com/angeloszaimis/users-cluster/internal/backend"
)

type Strategy interface {
	Name() string
	SelectBackend(backends []*backend.Backend) *backend.Backend
}
