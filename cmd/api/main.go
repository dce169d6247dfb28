package main

import (
	"marketplace/internal/config"
	"marketplace/internal/domain/model"
	"marketplace/internal/handler"
	"marketplace/internal/infra/db"
	"marketplace/internal/infra/notify"
	infraRepo "marketplace/internal/infra/repository"
	"marketplace/internal/server"
	"marketplace/internal/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	//.envは無くてもよい（本番は環境変数で渡す）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
		&model.Review{},
		&model.Activity{},
		&model.ActivitySellerTag{},
		&model.Notification{},
	); err != nil {
		log.Fatal("migrate failed", zap.Error(err))
	}

	//Repository（GORM実装）生成
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	reviewRepo := infraRepo.NewReviewGormRepository(gormDB)
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	activityRepo := infraRepo.NewActivityGormRepository(gormDB)
	notificationRepo := infraRepo.NewNotificationGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//通知。AMQP_URLが無ければDB保存だけになる。
	var mq *notify.AMQPPublisher
	if cfg.AMQPURL != "" {
		mq, err = notify.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			log.Fatal("amqp connect failed", zap.Error(err))
		}
		defer mq.Close()
	}
	notifier := notify.NewNotifier(notificationRepo, mq, log)

	//Usecase生成
	orderUC := usecase.NewOrderUsecase(txManager, activityRepo, notifier, log)
	statusUC := usecase.NewOrderStatusUsecase(txManager, activityRepo, notifier, log)
	productUC := usecase.NewProductUsecase(productRepo, reviewRepo, orderRepo, userRepo, activityRepo, log)
	activityUC := usecase.NewActivityUsecase(activityRepo, log)
	notificationUC := usecase.NewNotificationUsecase(notificationRepo)

	//Handler生成
	hs := server.Handlers{
		Order:        handler.NewOrderHandler(orderUC, statusUC),
		Product:      handler.NewProductHandler(productUC),
		Activity:     handler.NewActivityHandler(activityUC),
		Notification: handler.NewNotificationHandler(notificationUC),
	}

	//Server起動
	e := server.New(cfg, hs)
	if err := server.Start(e, cfg); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.GoEnv == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
