package notification

import (
	"github.com/smallbiznis/catering/internal/notification/outbox"
	"github.com/smallbiznis/catering/internal/notification/repository"
	"github.com/smallbiznis/catering/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(outbox.NewPublisher),
	fx.Provide(outbox.NewDispatcher),
)
