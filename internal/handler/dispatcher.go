package handler

import (
	"context"
	"log/slog"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/collector"
	"github.com/hitoshi/giftman/internal/middleware"
	"github.com/hitoshi/giftman/internal/notify"
	"github.com/hitoshi/giftman/internal/person"
	"github.com/hitoshi/giftman/internal/repository"
	"github.com/hitoshi/giftman/internal/security"
	"github.com/hitoshi/giftman/internal/session"
	"github.com/hitoshi/giftman/internal/transfer"
	"github.com/hitoshi/giftman/internal/wish"
	"github.com/hitoshi/giftman/internal/workflow"
)

// BotDeps はボットディスパッチャの組み立てに必要な依存をまとめる。
type BotDeps struct {
	Logger      *slog.Logger
	Sender      bot.Sender
	Sessions    *session.Store
	RateLimiter *middleware.RateLimiter

	Persons      repository.PersonRepository
	Admins       repository.AdminRepository
	Collectors   repository.CollectorRepository
	ServiceUsers repository.ServiceUserRepository

	PersonService    *person.Service
	WishService      *wish.Service
	CollectorManager *collector.Manager
	TransferService  *transfer.Service

	Sanitizer security.TextSanitizer
	LinkGuard security.LinkGuardService

	AdminSecretPhrase   string
	ServiceSecretPhrase string
}

// NewBotDispatcher は全ハンドラ・フロー・ミドルウェアを登録した
// ディスパッチャを構築する。
//
// ミドルウェアの合成順（外側から）:
//
//	Recovery → Logging → RateLimit → Serialize → Identity
//
// ロールゲート（RequireAdmin等）はディスパッチャ全体ではなく、
// 制限対象のハンドラを個別に包む。
func NewBotDispatcher(deps *BotDeps) *bot.Dispatcher {
	resolver := func(ctx context.Context, update *bot.Update) string {
		return deps.Sessions.State(update.From.ID)
	}
	d := bot.NewDispatcher(deps.Logger, deps.Sender, resolver)

	// 予期しないエラーで中断したワークフローを途中のステップに残さない
	d.OnError(func(_ context.Context, update *bot.Update) {
		deps.Sessions.Clear(update.From.ID)
	})

	d.Use(
		middleware.NewRecoveryMiddleware(),
		middleware.NewLoggingMiddleware(deps.Logger),
		deps.RateLimiter.Middleware(deps.Logger, deps.Sender),
		middleware.NewSerializeMiddleware(deps.Sessions),
		middleware.NewIdentityMiddleware(deps.Persons, deps.Admins, deps.Collectors, deps.Sessions, deps.Sender),
	)

	// ワークフロー
	engine := workflow.NewEngine(deps.Sessions, deps.Sender, deps.Logger)
	registrationFlow := workflow.NewRegistrationFlow(deps.PersonService)
	wishFlow := workflow.NewWishFlow(deps.WishService, deps.Sanitizer, deps.LinkGuard)
	collectorFlow := workflow.NewCollectorFlow(deps.CollectorManager)
	engine.Register(d, registrationFlow)
	engine.Register(d, wishFlow)
	engine.Register(d, collectorFlow)

	// ハンドラ
	startHandler := NewStartHandler(engine, registrationFlow, deps.ServiceUsers, deps.Persons, deps.Sender)
	cancelHandler := NewCancelHandler(engine, deps.Sender)
	profileHandler := NewProfileHandler(engine, registrationFlow, deps.Sender)
	wishHandler := NewWishHandler(deps.WishService, engine, wishFlow, deps.Sender)
	birthdayHandler := NewBirthdayHandler(deps.TransferService, deps.CollectorManager, deps.PersonService, deps.WishService, deps.Sessions, deps.Sender)
	collectorHandler := NewCollectorHandler(deps.TransferService, engine, collectorFlow, deps.Sender)
	adminHandler := NewAdminHandler(deps.PersonService, deps.CollectorManager, deps.Sessions, deps.Sender)
	grantHandler := NewGrantHandler(deps.Admins, deps.ServiceUsers, deps.PersonService, deps.Sessions, deps.Sender,
		deps.AdminSecretPhrase, deps.ServiceSecretPhrase)

	// ロールゲート
	requireAdmin := middleware.NewRequireAdmin(deps.Sender)
	requireServiceUser := middleware.NewRequireServiceUser(deps.ServiceUsers, deps.Sender)
	requireCollector := middleware.NewRequireCollector(deps.Sender)
	requireActiveCollector := middleware.NewRequireActiveCollector(deps.Sender)

	// コマンド
	d.HandleCommand("start", bot.HandlerFunc(startHandler.Start))
	d.HandleCommand("help", bot.HandlerFunc(startHandler.Help))
	d.HandleCommand("support", bot.HandlerFunc(startHandler.Support))
	d.HandleCommand("cancel", bot.HandlerFunc(cancelHandler.Cancel))
	d.HandleCommand("profile", bot.HandlerFunc(profileHandler.View))
	d.HandleCommand("wishes", bot.HandlerFunc(wishHandler.List))
	d.HandleCommand("collector", bot.HandlerFunc(collectorHandler.Panel))
	d.HandleCommand("admin", requireAdmin(bot.HandlerFunc(adminHandler.Panel)))
	d.HandleCommand("get_admin", bot.HandlerFunc(grantHandler.StartAdminGrant))
	d.HandleCommand("get_service_user", bot.HandlerFunc(grantHandler.StartServiceGrant))
	d.HandleCommand("admin_list", requireServiceUser(bot.HandlerFunc(grantHandler.AdminList)))

	// コールバック（完全一致）
	d.HandleCallback(RegisterCallback, bot.HandlerFunc(startHandler.Register))
	d.HandleCallback(workflow.CancelCallback, bot.HandlerFunc(cancelHandler.Cancel))
	d.HandleCallback(ProfileEditCallback, bot.HandlerFunc(profileHandler.Edit))
	d.HandleCallback(WishAddCallback, bot.HandlerFunc(wishHandler.Add))
	d.HandleCallback(CollectorCreateCallback, bot.HandlerFunc(collectorHandler.Create))
	d.HandleCallback(CollectorEditCallback, requireCollector(bot.HandlerFunc(collectorHandler.Edit)))
	d.HandleCallback(CollectorReportCallback, requireActiveCollector(bot.HandlerFunc(collectorHandler.Report)))
	d.HandleCallback(AdminDeleteCallback, requireAdmin(bot.HandlerFunc(adminHandler.StartDelete)))
	d.HandleCallback(AdminAssignCallback, requireAdmin(bot.HandlerFunc(adminHandler.StartAssign)))
	d.HandleCallback(AdminDeactivateCallback, requireAdmin(bot.HandlerFunc(adminHandler.StartDeactivate)))
	d.HandleCallback(AdminConfirmDeleteCallback, requireAdmin(bot.HandlerFunc(adminHandler.ConfirmDelete)))
	d.HandleCallback(AdminConfirmAssignCallback, requireAdmin(bot.HandlerFunc(adminHandler.ConfirmAssign)))
	d.HandleCallback(AdminConfirmDeactivateCallback, requireAdmin(bot.HandlerFunc(adminHandler.ConfirmDeactivate)))

	// コールバック（前置一致）。wish_del_confirm: は wish_del: の前に
	// 登録すること（前置一致は登録順に評価される）。
	d.HandleCallbackPrefix(WishConfirmDeletePrefix, bot.HandlerFunc(wishHandler.ConfirmDelete))
	d.HandleCallbackPrefix(WishDeleteCallbackPrefix, bot.HandlerFunc(wishHandler.Delete))
	d.HandleCallbackPrefix(WishEditCallbackPrefix, bot.HandlerFunc(wishHandler.Edit))
	d.HandleCallbackPrefix(notify.GiftInfoCallbackPrefix, bot.HandlerFunc(birthdayHandler.GiftInfo))
	d.HandleCallbackPrefix(notify.TransferredCallbackPrefix, bot.HandlerFunc(birthdayHandler.Transferred))
	d.HandleCallbackPrefix(notify.GreetCallbackPrefix, bot.HandlerFunc(birthdayHandler.Greet))

	// ステート
	d.HandleState(GreetTextState, bot.HandlerFunc(birthdayHandler.GreetText))
	d.HandleState(AdminDeleteSelectState, requireAdmin(bot.HandlerFunc(adminHandler.SelectDelete)))
	d.HandleState(AdminAssignSelectState, requireAdmin(bot.HandlerFunc(adminHandler.SelectAssign)))
	d.HandleState(AdminPhraseState, bot.HandlerFunc(grantHandler.AdminPhrase))
	d.HandleState(ServicePhraseState, bot.HandlerFunc(grantHandler.ServicePhrase))
	d.HandleState(AdminRemoveSelectState, requireServiceUser(bot.HandlerFunc(grantHandler.AdminRemoveSelect)))

	d.HandleFallback(NewFallback(deps.Sender))

	d.Build()
	return d
}
