package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/security"
	"github.com/hitoshi/giftman/internal/session"
)

// フロー名。ステート名とコールバックの名前空間になる。
const (
	RegistrationFlowName = "registration"
	WishFlowName         = "wish"
	CollectorFlowName    = "collector"
)

// 収集値のセッションキー。
const (
	KeyFamilyName = "family_name"
	KeyGivenName  = "given_name"
	KeyPatronymic = "patronymic"
	KeyBirthDate  = "birth_date"
	KeyWishText   = "text"
	KeyWishURL    = "url"
	KeyWishID     = "_wish_id"
	KeyPhone      = "phone"
	KeyBank       = "bank"
)

// RegistrationCommitter は登録フローのコミット先。
type RegistrationCommitter interface {
	// Register は新規メンバーを登録する。
	Register(ctx context.Context, person *model.Person) error
	// UpdateProfile は既存メンバーの氏名と誕生日を更新する。
	UpdateProfile(ctx context.Context, person *model.Person) error
}

// WishCommitter はウィッシュフローのコミット先。
type WishCommitter interface {
	// Add はウィッシュを追加する。
	Add(ctx context.Context, personID int64, text, url string) (*model.Wish, error)
	// Edit は既存のウィッシュを更新する。
	Edit(ctx context.Context, wishID string, personID int64, text, url string) error
}

// CollectorCommitter は集金担当者フローのコミット先。
type CollectorCommitter interface {
	// Register は集金担当者レコードを非アクティブ状態で作成する。
	Register(ctx context.Context, personID int64, phone, bank string) error
	// UpdateRouting は送金先データを更新する。
	UpdateRouting(ctx context.Context, personID int64, phone, bank string) error
}

// NewRegistrationFlow は登録フロー（姓 → 名 → 父称 → 誕生日）を構築する。
// ModeCreateで新規登録、ModeEditでプロフィール更新としてコミットされる。
func NewRegistrationFlow(committer RegistrationCommitter) *Flow {
	return &Flow{
		Name: RegistrationFlowName,
		Steps: []Step{
			{
				Name:      "family_name",
				Key:       KeyFamilyName,
				Prompt:    "Введите вашу фамилию:",
				EditLabel: "Фамилия",
				Validate:  ValidateName,
			},
			{
				Name:      "given_name",
				Key:       KeyGivenName,
				Prompt:    "Введите ваше имя:",
				EditLabel: "Имя",
				Validate:  ValidateName,
			},
			{
				Name:      "patronymic",
				Key:       KeyPatronymic,
				Prompt:    "Введите ваше отчество:",
				EditLabel: "Отчество",
				Validate:  ValidateName,
			},
			{
				Name:      "birth_date",
				Key:       KeyBirthDate,
				Prompt:    "Введите дату рождения в формате ДД.ММ.ГГГГ:",
				EditLabel: "Дата рождения",
				Validate:  ValidateBirthDate,
			},
		},
		Summary: func(sess *session.Session) (string, error) {
			familyName, err := sess.Value(KeyFamilyName)
			if err != nil {
				return "", err
			}
			givenName, err := sess.Value(KeyGivenName)
			if err != nil {
				return "", err
			}
			patronymic, err := sess.Value(KeyPatronymic)
			if err != nil {
				return "", err
			}
			birthDate, err := sess.Value(KeyBirthDate)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Проверьте данные:\nФамилия: %s\nИмя: %s\nОтчество: %s\nДата рождения: %s",
				familyName, givenName, patronymic, birthDate), nil
		},
		Commit: func(ctx context.Context, update *bot.Update, sess *session.Session) (string, error) {
			person, err := personFromSession(update, sess)
			if err != nil {
				return "", err
			}
			if sess.ValueOr(KeyMode, ModeCreate) == ModeEdit {
				if err := committer.UpdateProfile(ctx, person); err != nil {
					return "", fmt.Errorf("failed to update profile: %w", err)
				}
				return "Профиль обновлён.", nil
			}
			if err := committer.Register(ctx, person); err != nil {
				return "", fmt.Errorf("failed to register person: %w", err)
			}
			return "Регистрация завершена! Нажмите /help, чтобы посмотреть возможности.", nil
		},
	}
}

// personFromSession は収集済みの値からPersonを組み立てる。
func personFromSession(update *bot.Update, sess *session.Session) (*model.Person, error) {
	familyName, err := sess.Value(KeyFamilyName)
	if err != nil {
		return nil, err
	}
	givenName, err := sess.Value(KeyGivenName)
	if err != nil {
		return nil, err
	}
	patronymic, err := sess.Value(KeyPatronymic)
	if err != nil {
		return nil, err
	}
	rawBirthDate, err := sess.Value(KeyBirthDate)
	if err != nil {
		return nil, err
	}
	birthDate, err := time.Parse(BirthDateLayout, rawBirthDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse collected birth date: %w", err)
	}

	now := time.Now()
	return &model.Person{
		ID:         update.From.ID,
		Handle:     update.From.Handle,
		FamilyName: familyName,
		GivenName:  givenName,
		Patronymic: patronymic,
		BirthDate:  birthDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// NewWishFlow はウィッシュフロー（本文 → 任意のURL）を構築する。
// KeyWishIDが初期値に入っている場合は既存ウィッシュの編集としてコミットされる。
func NewWishFlow(committer WishCommitter, sanitizer security.TextSanitizer, guard security.LinkGuardService) *Flow {
	return &Flow{
		Name: WishFlowName,
		Steps: []Step{
			{
				Name:      "text",
				Key:       KeyWishText,
				Prompt:    "Опишите желаемый подарок:",
				EditLabel: "Описание",
				Validate:  NewWishTextValidator(sanitizer),
			},
			{
				Name:      "url",
				Key:       KeyWishURL,
				Prompt:    "Отправьте ссылку на подарок или нажмите «Пропустить»:",
				EditLabel: "Ссылка",
				Optional:  true,
				Validate:  NewWishURLValidator(guard),
			},
		},
		Summary: func(sess *session.Session) (string, error) {
			text, err := sess.Value(KeyWishText)
			if err != nil {
				return "", err
			}
			url := sess.ValueOr(KeyWishURL, "")
			if url == "" {
				return fmt.Sprintf("Проверьте данные:\nОписание: %s\nСсылка: нет", text), nil
			}
			return fmt.Sprintf("Проверьте данные:\nОписание: %s\nСсылка: %s", text, url), nil
		},
		Commit: func(ctx context.Context, update *bot.Update, sess *session.Session) (string, error) {
			text, err := sess.Value(KeyWishText)
			if err != nil {
				return "", err
			}
			url := sess.ValueOr(KeyWishURL, "")

			if wishID := sess.ValueOr(KeyWishID, ""); wishID != "" {
				if err := committer.Edit(ctx, wishID, update.From.ID, text, url); err != nil {
					return "", fmt.Errorf("failed to edit wish: %w", err)
				}
				return "Желание обновлено.", nil
			}
			if _, err := committer.Add(ctx, update.From.ID, text, url); err != nil {
				return "", fmt.Errorf("failed to add wish: %w", err)
			}
			return "Желание добавлено.", nil
		},
	}
}

// NewCollectorFlow は集金担当者フロー（電話番号 → 任意の銀行名）を構築する。
// ModeCreateで非アクティブ登録、ModeEditで送金先データ更新としてコミットされる。
func NewCollectorFlow(committer CollectorCommitter) *Flow {
	return &Flow{
		Name: CollectorFlowName,
		Steps: []Step{
			{
				Name:      "phone",
				Key:       KeyPhone,
				Prompt:    "Введите номер телефона для переводов (+7XXXXXXXXXX или 8XXXXXXXXXX):",
				EditLabel: "Телефон",
				Validate:  ValidatePhone,
			},
			{
				Name:      "bank",
				Key:       KeyBank,
				Prompt:    "Введите название банка или нажмите «Пропустить»:",
				EditLabel: "Банк",
				Optional:  true,
				Validate:  ValidateBank,
			},
		},
		Summary: func(sess *session.Session) (string, error) {
			phone, err := sess.Value(KeyPhone)
			if err != nil {
				return "", err
			}
			bank := sess.ValueOr(KeyBank, "")
			if bank == "" {
				bank = "не указан"
			}
			return fmt.Sprintf("Проверьте данные:\nТелефон: %s\nБанк: %s", phone, bank), nil
		},
		Commit: func(ctx context.Context, update *bot.Update, sess *session.Session) (string, error) {
			phone, err := sess.Value(KeyPhone)
			if err != nil {
				return "", err
			}
			bank := sess.ValueOr(KeyBank, "")

			if sess.ValueOr(KeyMode, ModeCreate) == ModeEdit {
				if err := committer.UpdateRouting(ctx, update.From.ID, phone, bank); err != nil {
					return "", fmt.Errorf("failed to update collector routing: %w", err)
				}
				return "Реквизиты обновлены.", nil
			}
			if err := committer.Register(ctx, update.From.ID, phone, bank); err != nil {
				return "", fmt.Errorf("failed to register collector: %w", err)
			}
			return "Вы зарегистрированы как сборщик. Администратор может назначить вас активным.", nil
		},
	}
}
