// @title           SAMS HTTP Service API
// @version         1.0
// @description     Site access management: entry/exit logging, live occupancy, safety alerts and emergency mode

// @BasePath  /api

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Enter the token with the `Bearer ` prefix
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"sams-http-service/internal/app/jobs"
	"sams-http-service/internal/app/realtime"
	"sams-http-service/internal/app/routes"
	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/domain/services"
	"sams-http-service/internal/domain/services/container"
	"sams-http-service/internal/infrastructure/config"
	"sams-http-service/internal/infrastructure/database"
	"sams-http-service/internal/infrastructure/mqtt"
	Logger "sams-http-service/pkg/logger"
)

func main() {
	// 加载.env文件，失败时继续使用已有环境变量
	envErr := godotenv.Load()

	// 获取配置
	cfg := config.GetConfig()

	// 初始化日志配置
	log, err := Logger.SetupLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogDir)
	if err != nil {
		fmt.Printf("初始化日志配置失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if envErr != nil {
		Logger.Warning("无法加载.env文件: %v", envErr)
	} else {
		Logger.Info("成功加载.env文件")
	}

	// 创建数据库连接池
	pool, err := database.NewConnectionPool(cfg, log.Named("db"))
	if err != nil {
		log.Fatal("无法创建数据库连接池", zap.Error(err))
	}
	db := pool.GetDB()

	if cfg.DBMigrationMode == "drop" {
		log.Warn("在drop模式下运行，将删除并重建所有表")
	}
	if err := database.Migrate(db, cfg.DBMigrationMode); err != nil {
		log.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 确保系统中有管理员账户
	if err := ensureAdminExists(db, cfg); err != nil {
		log.Fatal("创建默认管理员失败", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 服务容器，Redis不可用时使用内存存储
	serviceContainer := container.NewServiceContainer(db, cfg, newRedisClient(cfg), log)
	go serviceContainer.RunJanitor(ctx, time.Minute)

	// 实时推送
	occupancy := serviceContainer.GetService("occupancy").(services.InterfaceOccupancyService)
	hub := realtime.NewHub(occupancy, realtime.Config{Heartbeat: cfg.HeartbeatInterval}, log.Named("hub"))
	hub.SubscribeTo(serviceContainer.Bus())
	go hub.Run(ctx)

	// 设备事件桥接
	if cfg.MQTTEnabled() {
		client := mqtt.NewClient(cfg, log.Named("mqtt"))
		token := client.Connect()
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			log.Warn("MQTT首次连接未成功，将在后台重试", zap.Error(token.Error()))
		}
		mqtt.NewBridge(client, cfg.MQTTTopicPrefix, cfg.MQTTQoS, log.Named("mqtt")).SubscribeTo(serviceContainer.Bus())
		defer client.Disconnect(250)
	}

	// 告警周期检查
	alerts := serviceContainer.GetService("alert").(services.InterfaceAlertService)
	go jobs.NewAlertChecks(alerts, cfg.AlertCheckInterval, log.Named("jobs")).Run(ctx)

	// 初始化路由
	r := routes.SetupRouter(serviceContainer, hub)
	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printSystemInfo(log, pool)

	go func() {
		// 监听所有接口(0.0.0.0)而不是只监听localhost
		Logger.Info("服务器启动在: http://0.0.0.0:%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("启动服务器失败", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("正在关闭服务器")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("关闭HTTP服务失败", zap.Error(err))
	}
	serviceContainer.Close()
	if err := pool.Close(); err != nil {
		log.Error("关闭数据库连接失败", zap.Error(err))
	}
	log.Info("服务器已关闭")
}

// newRedisClient 未启用Redis时返回nil
func newRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.RedisEnabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// ensureAdminExists 确保系统中有管理员账户
func ensureAdminExists(db *gorm.DB, cfg *config.Config) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	// 如果没有管理员，创建默认管理员
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.DefaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("生成密码哈希失败: %w", err)
	}

	admin := models.User{
		Username: "admin",
		Password: string(hashedPassword),
		Role:     models.RoleAdmin,
		Status:   "active",
		AllSites: true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	Logger.Info("已创建默认管理员账户")
	return nil
}

// printSystemInfo 打印系统信息
func printSystemInfo(log *zap.Logger, pool *database.ConnectionPool) {
	// 打印数据库连接池信息
	if stats, err := pool.Stats(); err == nil {
		log.Info("数据库连接池状态", zap.Any("stats", stats))
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	log.Info("系统资源",
		zap.Int("cpu", runtime.NumCPU()),
		zap.Int("goroutines", runtime.NumGoroutine()),
		zap.Uint64("alloc_mib", m.Alloc/1024/1024),
		zap.Uint64("sys_mib", m.Sys/1024/1024),
	)
}
