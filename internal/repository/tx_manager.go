package repository

import "context"

// トランザクション内で使う約束。
// 活動ログと通知は「保存成功後のベストエフォート」なのでここには入れない。
type TxRepos interface {
	Orders() OrderRepository
	Products() ProductRepository
	Users() UserRepository
	Reviews() ReviewRepository
}

// UsecaseからTxの開始/commit/rollbackを隠す。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
