package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	jwtware "github.com/gofiber/jwt/v2"
	"github.com/shopspring/decimal"
	"github.com/wichananm65/pet-shop-fulfillment/internal/cart"
	"github.com/wichananm65/pet-shop-fulfillment/internal/config"
	"github.com/wichananm65/pet-shop-fulfillment/internal/infrastructure/database/postgres"
	"github.com/wichananm65/pet-shop-fulfillment/internal/infrastructure/messaging/rabbitmq"
	"github.com/wichananm65/pet-shop-fulfillment/internal/order"
	"github.com/wichananm65/pet-shop-fulfillment/internal/product"
	"github.com/wichananm65/pet-shop-fulfillment/internal/user"
)

type repositories struct {
	products product.Repository
	users    user.Repository
	carts    cart.Repository
	orders   order.Repository
}

func main() {
	cfg := config.Load()
	log.SetLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	repos, closeStorage := mustOpenStorage(cfg)
	defer closeStorage()

	publisher, closePublisher := openPublisher(cfg)
	defer closePublisher()

	productService := product.NewService(repos.products, cfg.StorageTimeout)
	userService := user.NewService(repos.users, cfg.StorageTimeout)
	cartService := cart.NewService(repos.carts, productService, productService, userService, order.NewPlacedLookup(repos.orders), cfg.StorageTimeout)
	orderService := order.NewService(repos.orders, cartService, publisher, cfg.StorageTimeout)

	productHandler := product.NewHandler(productService)
	userHandler := user.NewHandler(userService)
	cartHandler := cart.NewHandler(cartService)
	orderHandler := order.NewHandler(orderService, userService)

	app := fiber.New()
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	setupCORS(app)

	productHandler.RegisterPublicRoutes(app)

	app.Use(jwtware.New(jwtware.Config{
		SigningKey: []byte(cfg.JWTSecret),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		},
	}))

	userHandler.RegisterProtectedRoutes(app)
	cartHandler.RegisterProtectedRoutes(app)
	orderHandler.RegisterProtectedRoutes(app)
	productHandler.RegisterProtectedRoutes(app)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	log.Infof("starting server on %s (storage=%s)", cfg.Addr, cfg.Storage)
	if err := app.Listen(cfg.Addr); err != nil {
		log.Errorf("server stopped: %v", err)
	}
}

func setupCORS(app *fiber.App) {
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
}

func mustOpenStorage(cfg config.Config) (repositories, func()) {
	if cfg.Storage == config.StorageMemory {
		log.Warn("using in-memory storage; state is lost on exit")
		return repositories{
			products: product.NewInMemoryRepository(demoCatalog()),
			users:    user.NewInMemoryRepository(demoUsers()),
			carts:    cart.NewInMemoryRepository(nil),
			orders:   order.NewInMemoryRepository(),
		}, func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := postgres.Open(ctx, postgres.Options{
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		log.Fatalf("%v", err)
	}
	return postgresRepositories(db), func() { db.Close() }
}

func postgresRepositories(db *sql.DB) repositories {
	return repositories{
		products: product.NewPostgresRepository(db),
		users:    user.NewPostgresRepository(db),
		carts:    cart.NewPostgresRepository(db),
		orders:   order.NewPostgresRepository(db),
	}
}

func openPublisher(cfg config.Config) (order.Publisher, func()) {
	if cfg.RabbitMQURL == "" {
		log.Info("RABBITMQ_URL not set; OrderPlaced events are not published")
		return order.NopPublisher, func() {}
	}
	pool, err := rabbitmq.NewChannelPool(cfg.RabbitMQURL, cfg.RabbitMQQueue, cfg.ChannelPoolSize)
	if err != nil {
		// orders must still be accepted while the broker is down
		log.Errorf("rabbitmq unavailable, OrderPlaced events disabled: %v", err)
		return order.NopPublisher, func() {}
	}
	return rabbitmq.NewPublisher(pool, cfg.RabbitMQQueue), pool.Close
}

func demoCatalog() []product.Product {
	img := "/uploads/cat-sweater.png"
	return []product.Product{
		{ID: 1, Name: "Cat Sweater", Price: decimal.RequireFromString("29.99"), Stock: 5, Img: &img},
		{ID: 2, Name: "Salmon Kibble 2kg", Price: decimal.RequireFromString("10.00"), Stock: 10},
		{ID: 3, Name: "Feather Wand", Price: decimal.RequireFromString("4.50"), Stock: 25},
	}
}

func demoUsers() []user.User {
	return []user.User{
		{ID: 1, Email: "alice@example.com", FirstName: "Alice", LastName: "Demo"},
		{ID: 2, Email: "bob@example.com", FirstName: "Bob", LastName: "Demo"},
	}
}
