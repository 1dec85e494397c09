package biz

import (
	"github.com/heurist-network/reply-bridge/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Queue   *usecase.QueueUsecase
	Filter  *usecase.FilterUsecase
	Context *usecase.ContextBuilderUsecase
	Reply   *usecase.ReplyUsecase
}
