package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sn-sync/backend/config"
	"sn-sync/backend/internal/api/handler"
	"sn-sync/backend/internal/api/middleware"
	"sn-sync/backend/pkg/jwt"
	"sn-sync/backend/pkg/redis"
)

// RoleSuperAdmin 设备管理角色
const RoleSuperAdmin = "super_admin"

// 手动触发批处理的限流：每人每分钟 2 次
const (
	batchRateLimit  = 2
	batchRateWindow = time.Minute
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 可为 nil：限流降级放行
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(1 << 20))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr))
	{
		// 设备登记与采集/压缩
		sn := v1.Group("/sn")
		sn.Use(middleware.RoleAuth(RoleSuperAdmin))
		{
			sn.GET("", h.Device.ListDevices)
			sn.POST("", h.Device.CreateDevice)
			sn.PUT("/:id", h.Device.UpdateDevice)
			sn.DELETE("/:id", h.Device.DeleteDevice)

			sn.POST("/:id/collect", h.Device.Collect)
			sn.POST("/:id/compact", h.Device.Compact)

			batch := middleware.RateLimit(rdb, batchRateLimit, batchRateWindow)
			sn.POST("/collect-all", batch, h.Device.CollectAll)
			sn.POST("/compact-all", batch, h.Device.CompactAll)
		}

		// 打卡记录（普通员工只能看本人，Service 层限定）
		machineData := v1.Group("/machine-data")
		{
			machineData.GET("", h.MachineData.ListMachineData)
			machineData.GET("/export", h.MachineData.ExportMachineData)
		}
	}

	return r
}
