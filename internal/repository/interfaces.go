// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/giftman/internal/model"
)

// PersonRepository はメンバーデータの永続化インターフェース。
type PersonRepository interface {
	// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Person, error)

	// Create はメンバーを作成する。
	// 同一IDが既に存在する場合はAlreadyExistsErrorを返す。
	Create(ctx context.Context, person *model.Person) error

	// Update はメンバーの氏名・誕生日・ハンドルを更新する。
	// 存在しない場合はNotFoundErrorを返す。
	Update(ctx context.Context, person *model.Person) error

	// DeleteByID は指定IDのメンバーを削除する。
	// wishes、transfers、greetings、admin_grants、collectors、service_userは
	// CASCADE削除される。存在しない場合はNotFoundErrorを返す。
	DeleteByID(ctx context.Context, id int64) error

	// ListAll は全メンバーを姓の昇順で返す。
	ListAll(ctx context.Context) ([]*model.Person, error)

	// ListByBirthday は誕生日の月日が一致するメンバーを返す。年は無視する。
	ListByBirthday(ctx context.Context, month time.Month, day int) ([]*model.Person, error)
}

// WishRepository はウィッシュリストの永続化インターフェース。
type WishRepository interface {
	// FindByID は指定IDのウィッシュを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Wish, error)

	// Create はウィッシュを作成する。
	Create(ctx context.Context, wish *model.Wish) error

	// Update は所有者本人のウィッシュのテキストとURLを更新する。
	// 所有者不一致または不存在の場合はNotFoundErrorを返す。
	Update(ctx context.Context, wish *model.Wish) error

	// DeleteByIDAndOwner は所有者本人のウィッシュを削除する。
	// 所有者不一致または不存在の場合はNotFoundErrorを返す。
	DeleteByIDAndOwner(ctx context.Context, id string, personID int64) error

	// ListByPerson はメンバーの全ウィッシュを作成順で返す。
	ListByPerson(ctx context.Context, personID int64) ([]*model.Wish, error)
}

// TransferRepository は送金記録の永続化インターフェース。
type TransferRepository interface {
	// Record は送金記録を冪等に作成する。
	// 既存チェックと挿入は同一トランザクション内で行い、
	// (sender, honoree) の一意制約を競合時の最終判定に使う。
	// 新規に記録された場合はtrue、既に記録済みの場合はfalseを返す。
	Record(ctx context.Context, transfer *model.Transfer) (bool, error)

	// ListByHonoree は対象者宛の送金記録を記録日時の降順で返す。
	ListByHonoree(ctx context.Context, honoreeID int64) ([]*model.Transfer, error)

	// ListAll は全送金記録を対象者ID・記録日時降順で返す。
	ListAll(ctx context.Context) ([]*model.Transfer, error)
}

// GreetingRepository はお祝いメッセージの永続化インターフェース。
type GreetingRepository interface {
	// Create はお祝いメッセージを保存する。
	Create(ctx context.Context, greeting *model.Greeting) error

	// ListByHonoree は対象者宛のお祝いメッセージを作成順で返す。
	ListByHonoree(ctx context.Context, honoreeID int64) ([]*model.Greeting, error)
}

// AdminRepository は管理者権限の永続化インターフェース。
type AdminRepository interface {
	// Create は管理者権限を付与する。
	// 既に付与済みの場合はAlreadyExistsErrorを返す。
	Create(ctx context.Context, personID int64) error

	// FindByPerson はメンバーの管理者権限を取得する。未付与の場合はnilを返す。
	FindByPerson(ctx context.Context, personID int64) (*model.AdminGrant, error)

	// DeleteByPerson は管理者権限を剥奪する。
	// 未付与の場合はNotFoundErrorを返す。
	DeleteByPerson(ctx context.Context, personID int64) error

	// ListAll は全管理者権限を付与日時の昇順で返す。
	ListAll(ctx context.Context) ([]*model.AdminGrant, error)
}

// CollectorRepository は集金担当者の永続化インターフェース。
// アクティブフラグの切り替えはSwapActive経由でのみ行うこと。
type CollectorRepository interface {
	// Create は集金担当者レコードを非アクティブ状態で作成する。
	// 既に存在する場合はAlreadyExistsErrorを返す。
	Create(ctx context.Context, collector *model.Collector) error

	// FindByPerson はメンバーの集金担当者レコードを取得する。
	// 見つからない場合はnilを返す。
	FindByPerson(ctx context.Context, personID int64) (*model.Collector, error)

	// UpdateRouting は送金先データ（電話番号・銀行名）を更新する。
	// 存在しない場合はNotFoundErrorを返す。
	UpdateRouting(ctx context.Context, personID int64, phone, bank string) error

	// FindActive は現在アクティブな集金担当者を取得する。
	// 不在の場合はnilを返す。
	FindActive(ctx context.Context) (*model.Collector, error)

	// SwapActive は1トランザクション内で現アクティブを解除し、
	// 指定メンバーをアクティブにする。行ロック（FOR UPDATE）で
	// 同時実行のアクティベーションを直列化する。
	// レコードが存在しない場合はNotFoundErrorを返す。
	SwapActive(ctx context.Context, personID int64) error

	// Deactivate は現アクティブな集金担当者を解除する。
	// アクティブが不在でもエラーにしない。
	Deactivate(ctx context.Context) error

	// CountActive はアクティブな集金担当者の件数を返す。
	// 不変条件の監視用（期待値は常に0または1）。
	CountActive(ctx context.Context) (int, error)
}

// ServiceUserRepository はサービスユーザー指定の永続化インターフェース。
type ServiceUserRepository interface {
	// Set はサービスユーザーを設定する。既存の指定は上書きされる。
	Set(ctx context.Context, personID int64) error

	// Get は現在のサービスユーザーを取得する。未設定の場合はnilを返す。
	Get(ctx context.Context) (*model.ServiceUser, error)

	// Init は未設定の場合のみサービスユーザーを設定する。
	// 起動時のブートストラップ用。
	Init(ctx context.Context, personID int64) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
