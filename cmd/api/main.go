package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"qrcard_backend/internal/controller"
	"qrcard_backend/internal/middleware"
	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/cache"
	"qrcard_backend/pkg/config"
	"qrcard_backend/pkg/cron"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/email"
	"qrcard_backend/pkg/gallery"
	"qrcard_backend/pkg/otp"
	"qrcard_backend/pkg/payment"
	"qrcard_backend/pkg/seed"
	"qrcard_backend/pkg/subscription"
	"qrcard_backend/pkg/utils/jwt"
	"qrcard_backend/pkg/utils/response"
	"qrcard_backend/pkg/utils/storage"
	"qrcard_backend/pkg/utils/validation"
)

func setupRoutes(app *fiber.App) {
	api := app.Group("/api")
	auth := middleware.AuthMiddleware()

	api.Get("/health", controller.Health)
	api.Get("/config", controller.GetClientConfig)
	api.Get("/plans", controller.ListPlans)

	// Auth
	authGroup := api.Group("/auth")
	authGroup.Post("/register", controller.Register)
	authGroup.Post("/verify-email", controller.VerifyEmail)
	authGroup.Post("/login", controller.Login)
	authGroup.Post("/forgot-password", controller.ForgotPassword)
	authGroup.Post("/reset-password", controller.ResetPassword)
	authGroup.Post("/otp/send", controller.SendOTP)
	authGroup.Post("/otp/verify", controller.VerifyOTP)
	authGroup.Get("/me", auth, controller.GetMe)

	// Public card
	card := api.Group("/c")
	card.Get("/:username", controller.GetPublicCard)
	card.Post("/:username/view", controller.RecordCardView)
	card.Get("/:username/qr", controller.GetPublicQR)

	// Profile
	user := api.Group("/user", auth)
	user.Get("/profile", controller.GetProfile)
	user.Put("/profile", controller.UpdateProfile)
	user.Put("/company", controller.UpdateCompany)
	user.Post("/avatar", controller.UploadAvatar)
	user.Post("/phone/send-code", controller.SendPhoneVerification)
	user.Post("/phone/verify", controller.VerifyPhone)

	api.Get("/dashboard/stats", auth, controller.GetDashboardStats)

	// QR
	qrGroup := api.Group("/qr", auth)
	qrGroup.Get("/", controller.GetMyQR)
	qrGroup.Get("/style", controller.GetQRStyle)
	qrGroup.Put("/style", middleware.RequireFeature(subscription.QRCustomization), controller.UpdateQRStyle)

	// Gallery
	gal := api.Group("/gallery", auth)
	gal.Get("/", controller.ListGallery)
	gal.Post("/", middleware.CheckGalleryLimit(gallery.KindImage), controller.UploadGallery)
	gal.Post("/videos", middleware.CheckGalleryLimit(gallery.KindVideo), controller.AddVideo)
	gal.Put("/order", controller.ReorderGallery)
	gal.Delete("/:id", middleware.CheckGalleryOwnership(), controller.DeleteGalleryItem)

	// Referrals, rewards, wallet
	refer := api.Group("/refer", auth)
	refer.Get("/code", controller.GetReferralCode)
	refer.Get("/stats", controller.GetReferralStats)
	refer.Get("/wallet", controller.GetWallet)
	refer.Post("/withdraw", controller.RequestWithdrawal)

	rw := api.Group("/rewards", auth)
	rw.Get("/", controller.GetRewards)
	rw.Post("/:code/claim", controller.ClaimReward)

	// Payments
	pay := api.Group("/payments")
	pay.Post("/stripe/webhook", controller.HandleStripeWebhook)
	pay.Post("/:ref/callback", controller.PaymentCallback)
	pay.Get("/", auth, controller.ListMyPayments)
	pay.Post("/checkout", auth, controller.CreateCheckout)
	pay.Get("/:ref/status", auth, controller.GetPaymentStatus)

	// Admin
	admin := api.Group("/admin", auth, middleware.RequireAdmin())
	admin.Get("/users", controller.AdminListUsers)
	admin.Put("/users/:id/plan", controller.AdminSetPlan)
	admin.Get("/referrals", controller.AdminListReferrals)
	admin.Put("/referrals/:id/approve", controller.ApproveReferral)
	admin.Put("/referrals/:id/reject", controller.RejectReferral)
	admin.Get("/withdrawals", controller.AdminListWithdrawals)
	admin.Put("/withdrawals/:id/approve", controller.ApproveWithdrawal)
	admin.Put("/withdrawals/:id/reject", controller.RejectWithdrawal)
	admin.Get("/monitor", monitor.New(monitor.Config{Title: "qrcard API"}))
}

func main() {
	cfg := config.Load()
	jwt.SetSecret(cfg.JWT.Secret)

	if err := database.InitDB(cfg.Database.URL); err != nil {
		log.Fatalf("[Main] %v", err)
	}
	if err := database.MigrateDatabase(model.All()...); err != nil {
		log.Fatalf("[Main] migration failed: %v", err)
	}
	if err := seed.SeedAdmin(database.GetDB()); err != nil {
		log.Errorf("[Main] seeding admin: %v", err)
	}

	rdb := cache.Setup(cfg.Redis)
	defer cache.Close()

	if cfg.Email.ResendAPIKey != "" {
		if err := email.InitEmailService(cfg.Email, cfg.Server.ClientBaseURL); err != nil {
			log.Errorf("[Main] email disabled: %v", err)
		}
	} else {
		log.Warn("[Main] RESEND_API_KEY not set, emails are disabled")
	}

	var store storage.ObjectStore
	if r2, err := storage.NewR2Store(context.Background(), cfg.Storage); err != nil {
		log.Warnf("[Main] uploads disabled: %v", err)
	} else {
		store = r2
	}

	stripeGW := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	})
	var gateways []payment.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateways = append(gateways, stripeGW)
	}
	if cfg.PhonePe.MerchantID != "" {
		gateways = append(gateways, payment.NewPhonePe(payment.PhonePeConfig{
			BaseURL:    cfg.PhonePe.BaseURL,
			MerchantID: cfg.PhonePe.MerchantID,
			SaltKey:    cfg.PhonePe.SaltKey,
			SaltIndex:  cfg.PhonePe.SaltIndex,
		}, nil))
	}
	if cfg.ChainPay.APIKey != "" {
		gateways = append(gateways, payment.NewChainPay(payment.ChainPayConfig{
			BaseURL: cfg.ChainPay.BaseURL,
			APIKey:  cfg.ChainPay.APIKey,
		}, nil))
	}
	registry := payment.NewRegistry(gateways...)
	log.Infof("[Main] payment gateways: %v", registry.Names())

	controller.Init(controller.Deps{
		Config:   cfg,
		Store:    store,
		OTP:      otp.NewService(rdb, otp.LogSender{}),
		Payments: registry,
		Stripe:   stripeGW,
	})

	scheduler, err := cron.Start(cron.Jobs{
		DB:            database.GetDB(),
		Mailer:        email.GlobalEmailService,
		ClientBaseURL: cfg.Server.ClientBaseURL,
	})
	if err != nil {
		log.Fatalf("[Main] starting scheduler: %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: response.ErrorHandler,
		BodyLimit:    validation.MaxGalleryFileSize * 21,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	setupRoutes(app)

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("[Main] server stopped: %v", err)
		}
	}()
	log.Infof("[Main] listening on :%s", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("[Main] shutting down")
	<-scheduler.Stop().Done()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("[Main] shutdown: %v", err)
	}
}
