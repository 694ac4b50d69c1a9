package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ArmelNjike/MomoBill/app/controllers"
	"github.com/ArmelNjike/MomoBill/app/repository"
	"github.com/ArmelNjike/MomoBill/internal/pkg/billing"
	"github.com/ArmelNjike/MomoBill/internal/pkg/cache"
	"github.com/ArmelNjike/MomoBill/internal/pkg/database"
	"github.com/ArmelNjike/MomoBill/internal/pkg/env"
	"github.com/ArmelNjike/MomoBill/internal/pkg/gateway"
	"github.com/ArmelNjike/MomoBill/internal/pkg/router"
	"github.com/ArmelNjike/MomoBill/internal/pkg/scheduler"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	factory := repository.InitGlobalFactory(database.GetDB())
	repos := factory.GetRepositories()

	gw := gateway.NewClientFromEnv()
	svc := billing.NewService(repos, gw, env.GetEnv("PAYMENT_CALLBACK_URL", ""))
	controllers.InitializeBillingController(svc)

	// Periodic billing sweep
	scheduler.Setup(scheduler.NewSweeper(repos, svc, gw)).Start()

	app := fiber.New(fiber.Config{
		AppName: "MomoBill",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
