// Package routesはroutingを行います。
package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"wellness-todo/backend/internal/clock"
	"wellness-todo/backend/internal/config"
	"wellness-todo/backend/internal/handlers"
	"wellness-todo/backend/internal/repositories"
	"wellness-todo/backend/internal/services"
)

// SetupRouter はGinルーターをセットアップし、すべてのエンドポイントを登録します。
func SetupRouter(db *sqlx.DB, cfg *config.Config, clk clock.Clock) (*gin.Engine, error) {
	jwtService, err := services.NewJWTService(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.NoMethod(methodNotAllowed(r))

	// CORS対策
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// リポジトリ
	todoRepo := repositories.NewTodoRepository(db, cfg.QueryTimeout)
	userRepo := repositories.NewUserRepository(db)

	// サービス
	todoService := services.NewTodoService(todoRepo, clk)
	userService := services.NewUserService(userRepo)

	// ハンドラー
	userHandler := handlers.NewUserHandler(userService, jwtService)
	todoHandler := handlers.NewTodoHandler(todoService)

	// ルーティング
	r.GET("/api/hello", HelloHandler)
	r.GET("/api/dbcheck", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Database connection failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Database connection is healthy"})
	})
	r.POST("/api/register", userHandler.RegisterHandler)
	r.POST("/api/login", userHandler.LoginHandler)

	authorized := r.Group("/api")
	authorized.Use(AuthMiddleware(jwtService))
	{
		authorized.GET("/todos", todoHandler.GetTodosHandler)
		authorized.POST("/todos", todoHandler.CreateTodoHandler)
		authorized.PUT("/todos", todoHandler.UpdateTodoHandler)
		authorized.DELETE("/todos", todoHandler.DeleteTodoHandler)
		authorized.GET("/todos/:id", todoHandler.GetTodoByIDHandler)
		authorized.PUT("/todos/:id", todoHandler.UpdateTodoHandler)
		authorized.DELETE("/todos/:id", todoHandler.DeleteTodoHandler)
		authorized.GET("/protected", userHandler.ProtectedHandler)
	}

	return r, nil
}

func HelloHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello from Go Backend!"})
}
