package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/repository"
	"github.com/hitoshi/giftman/internal/session"
	"github.com/hitoshi/giftman/internal/workflow"
)

// 権限付与フローのステート。
const (
	AdminPhraseState       = "grant:admin_phrase"
	ServicePhraseState     = "grant:service_phrase"
	AdminRemoveSelectState = "grant:admin_remove_select"
)

// keyAdminList は管理者一覧の番号選択リストのセッションキー。
const keyAdminList = "admins"

const (
	phrasePrompt        = "Введите секретную фразу:"
	phraseMismatchReply = "Неверная фраза. Попробуйте ещё раз:"
	adminGrantedReply   = "Права администратора выданы."
	alreadyAdminReply   = "Вы уже администратор."
	serviceGrantedReply = "Вы назначены сервисным пользователем."
	adminListEmptyReply = "Администраторов пока нет."
	adminRevokedReply   = "Права администратора сняты."
)

// GrantHandler は秘密フレーズによるロール付与（/get_admin・/get_service_user）と
// サービスユーザーによる管理者一覧・剥奪（/admin_list）を処理する。
type GrantHandler struct {
	admins        repository.AdminRepository
	serviceUsers  repository.ServiceUserRepository
	persons       PersonFinder
	sessions      *session.Store
	sender        bot.Sender
	adminPhrase   string
	servicePhrase string
}

// NewGrantHandler はGrantHandlerを生成する。
func NewGrantHandler(
	admins repository.AdminRepository,
	serviceUsers repository.ServiceUserRepository,
	persons PersonFinder,
	sessions *session.Store,
	sender bot.Sender,
	adminPhrase, servicePhrase string,
) *GrantHandler {
	return &GrantHandler{
		admins:        admins,
		serviceUsers:  serviceUsers,
		persons:       persons,
		sessions:      sessions,
		sender:        sender,
		adminPhrase:   adminPhrase,
		servicePhrase: servicePhrase,
	}
}

// StartAdminGrant は/get_adminで秘密フレーズの入力待ちに入る。
func (h *GrantHandler) StartAdminGrant(ctx context.Context, update *bot.Update) error {
	h.sessions.Begin(update.From.ID, AdminPhraseState)
	return h.promptPhrase(ctx, update.ChatID)
}

// StartServiceGrant は/get_service_userで秘密フレーズの入力待ちに入る。
func (h *GrantHandler) StartServiceGrant(ctx context.Context, update *bot.Update) error {
	h.sessions.Begin(update.From.ID, ServicePhraseState)
	return h.promptPhrase(ctx, update.ChatID)
}

// AdminPhrase は管理者フレーズの入力を検証する。不一致は再入力を促す。
func (h *GrantHandler) AdminPhrase(ctx context.Context, update *bot.Update) error {
	if !phraseMatches(update.Text, h.adminPhrase) {
		return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: phraseMismatchReply})
	}
	h.sessions.Clear(update.From.ID)

	if err := h.admins.Create(ctx, update.From.ID); err != nil {
		var exists *model.AlreadyExistsError
		if errors.As(err, &exists) {
			return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: alreadyAdminReply})
		}
		return err
	}
	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: adminGrantedReply})
}

// ServicePhrase はサービスユーザーフレーズの入力を検証する。
// 一致した場合、既存のサービスユーザー指定は上書きされる。
func (h *GrantHandler) ServicePhrase(ctx context.Context, update *bot.Update) error {
	if !phraseMatches(update.Text, h.servicePhrase) {
		return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: phraseMismatchReply})
	}
	h.sessions.Clear(update.From.ID)

	if err := h.serviceUsers.Set(ctx, update.From.ID); err != nil {
		return fmt.Errorf("failed to set service user: %w", err)
	}
	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: serviceGrantedReply})
}

// AdminList は/admin_listで管理者一覧を番号付きで表示し、剥奪の番号選択に入る。
// RequireServiceUserゲートの内側で呼ばれる。
func (h *GrantHandler) AdminList(ctx context.Context, update *bot.Update) error {
	grants, err := h.admins.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list admins: %w", err)
	}
	if len(grants) == 0 {
		return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: adminListEmptyReply})
	}

	var b strings.Builder
	b.WriteString("Администраторы:\n")
	ids := make([]int64, 0, len(grants))
	for i, grant := range grants {
		name := strconv.FormatInt(grant.PersonID, 10)
		person, err := h.persons.Find(ctx, grant.PersonID)
		if err != nil {
			return fmt.Errorf("failed to resolve admin person: %w", err)
		}
		if person != nil {
			name = person.FullName()
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
		ids = append(ids, grant.PersonID)
	}
	b.WriteString("\nВведите номер администратора, чтобы снять права:")

	sess := h.sessions.Begin(update.From.ID, AdminRemoveSelectState)
	sess.SetList(keyAdminList, ids)

	return h.sender.SendMessage(ctx, &bot.Message{
		ChatID: update.ChatID,
		Text:   b.String(),
		Keyboard: bot.Keyboard{
			bot.Row(bot.Button{Text: "Отмена", Callback: workflow.CancelCallback}),
		},
	})
}

// AdminRemoveSelect は剥奪対象の番号入力を処理する。
func (h *GrantHandler) AdminRemoveSelect(ctx context.Context, update *bot.Update) error {
	sess := h.sessions.Get(update.From.ID)
	if sess == nil {
		return replySessionExpired(ctx, h.sender, update.ChatID)
	}

	ids, err := sess.List(keyAdminList)
	if err != nil {
		return sessionDataReply(ctx, err, h.sessions, h.sender, update)
	}

	index, err := strconv.Atoi(strings.TrimSpace(update.Text))
	if err != nil || index < 1 || index > len(ids) {
		return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: badSelectionReply})
	}
	h.sessions.Clear(update.From.ID)

	if err := h.admins.DeleteByPerson(ctx, ids[index-1]); err != nil {
		var notFound *model.NotFoundError
		if errors.As(err, &notFound) {
			return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Этот участник уже не администратор."})
		}
		return err
	}
	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: adminRevokedReply})
}

func (h *GrantHandler) promptPhrase(ctx context.Context, chatID int64) error {
	return h.sender.SendMessage(ctx, &bot.Message{
		ChatID: chatID,
		Text:   phrasePrompt,
		Keyboard: bot.Keyboard{
			bot.Row(bot.Button{Text: "Отмена", Callback: workflow.CancelCallback}),
		},
	})
}

// phraseMatches は秘密フレーズを定数時間で比較する。
func phraseMatches(input, phrase string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(input)), []byte(phrase)) == 1
}
