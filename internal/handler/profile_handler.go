package handler

import (
	"context"
	"fmt"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/middleware"
	"github.com/hitoshi/giftman/internal/workflow"
)

// ProfileEditCallback はプロフィール編集開始のコールバックデータ。
const ProfileEditCallback = "profile_edit"

// ProfileHandler はプロフィールの表示と編集入口を処理する。
type ProfileHandler struct {
	engine           *workflow.Engine
	registrationFlow *workflow.Flow
	sender           bot.Sender
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(engine *workflow.Engine, registrationFlow *workflow.Flow, sender bot.Sender) *ProfileHandler {
	return &ProfileHandler{engine: engine, registrationFlow: registrationFlow, sender: sender}
}

// View は/profileコマンドでプロフィールを表示する。
func (h *ProfileHandler) View(ctx context.Context, update *bot.Update) error {
	actor, err := middleware.ActorFromContext(ctx)
	if err != nil {
		return err
	}

	person := actor.Person
	text := fmt.Sprintf("Ваш профиль:\nФамилия: %s\nИмя: %s\nОтчество: %s\nДата рождения: %s",
		person.FamilyName, person.GivenName, person.Patronymic,
		person.BirthDate.Format(workflow.BirthDateLayout))

	return h.sender.SendMessage(ctx, &bot.Message{
		ChatID: update.ChatID,
		Text:   text,
		Keyboard: bot.Keyboard{
			bot.Row(bot.Button{Text: "Изменить", Callback: ProfileEditCallback}),
		},
	})
}

// Edit は保存済みデータを初期値として登録フローの確認画面へ再入する。
func (h *ProfileHandler) Edit(ctx context.Context, update *bot.Update) error {
	actor, err := middleware.ActorFromContext(ctx)
	if err != nil {
		return err
	}

	person := actor.Person
	return h.engine.StartConfirm(ctx, h.registrationFlow, update, map[string]string{
		workflow.KeyMode:       workflow.ModeEdit,
		workflow.KeyFamilyName: person.FamilyName,
		workflow.KeyGivenName:  person.GivenName,
		workflow.KeyPatronymic: person.Patronymic,
		workflow.KeyBirthDate:  person.BirthDate.Format(workflow.BirthDateLayout),
	})
}
