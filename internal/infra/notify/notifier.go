package notify

import (
	"context"
	"encoding/json"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"go.uber.org/zap"
)

// 通知の送信口。DBへの保存が正で、キュー発行はベストエフォート。
type Notifier struct {
	repo repo.NotificationRepository
	mq   *AMQPPublisher // nilならキュー発行なし（ローカル実行など）
	log  *zap.Logger
}

func NewNotifier(r repo.NotificationRepository, mq *AMQPPublisher, log *zap.Logger) *Notifier {
	return &Notifier{repo: r, mq: mq, log: log}
}

func (n *Notifier) Notify(ctx context.Context, in model.Notification) error {
	//同じ注文×同じステータスは一度だけ（初期のPLACEDは常に通す）
	if in.Status != "" && in.Status != string(model.OrderStatusPlaced) {
		exists, err := n.repo.ExistsDuplicate(ctx, in.UserID, in.Kind, in.ReferenceID, in.Status)
		if err != nil {
			return err
		}
		if exists {
			n.log.Debug("duplicate notification skipped",
				zap.Int64("user_id", in.UserID),
				zap.String("reference_id", in.ReferenceID),
				zap.String("status", in.Status),
			)
			return nil
		}
	}

	created, err := n.repo.Create(ctx, in)
	if err != nil {
		return err
	}

	if n.mq == nil {
		return nil
	}

	payload := map[string]interface{}{
		"notification_id": created.ID,
		"user_id":         created.UserID,
		"title":           created.Title,
		"body":            created.Body,
		"kind":            string(created.Kind),
		"reference_id":    created.ReferenceID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	//発行失敗でも保存済みの通知は有効。呼び出し側で握りつぶしてログに残す。
	return n.mq.Publish(body)
}
