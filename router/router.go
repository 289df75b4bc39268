package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ichikitsu-lab/OrderingSystem/controllers"
	"github.com/ichikitsu-lab/OrderingSystem/hub"
	"github.com/ichikitsu-lab/OrderingSystem/middlewares"
	"github.com/ichikitsu-lab/OrderingSystem/mirror"
	"github.com/ichikitsu-lab/OrderingSystem/services"
	"github.com/ichikitsu-lab/OrderingSystem/settings"
	"github.com/ichikitsu-lab/OrderingSystem/sound"
)

// Deps mengumpulkan semua dependensi yang dibutuhkan route handler.
type Deps struct {
	Store         *mirror.Store
	Dispatcher    *services.Dispatcher
	Hub           *hub.Hub
	Settings      *settings.Store
	Gate          *sound.Gate
	RetentionDays int
}

func SetupRouter(deps Deps) *gin.Engine {
	r := gin.Default()

	r.Use(middlewares.CORSMiddlewares())
	r.Use(middlewares.LoggerMiddleware())

	// Inisialisasi controller
	tableCtrl := controllers.NewTableController(deps.Store, deps.Dispatcher)
	orderCtrl := controllers.NewOrderController(deps.Store, deps.Dispatcher)
	menuCtrl := controllers.NewMenuController(deps.Store, deps.Dispatcher)
	historyCtrl := controllers.NewHistoryController(deps.Store, deps.Dispatcher, deps.RetentionDays)
	settingsCtrl := controllers.NewSettingsController(deps.Settings, deps.Gate)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Push stream untuk UI shell
	r.GET("/ws", controllers.UIStreamHandler(deps.Hub))

	// TABLES
	r.GET("/tables", tableCtrl.GetAllTables)
	r.POST("/tables", tableCtrl.CreateTable)
	r.GET("/tables/:table_id", tableCtrl.GetTableByID)
	r.GET("/tables/:table_id/orders", tableCtrl.GetTableOrders)
	r.POST("/tables/:table_id/open", tableCtrl.OpenTable)
	r.POST("/tables/:table_id/payment", tableCtrl.ClosePayment)

	// ORDERS
	r.GET("/orders", orderCtrl.GetAllOrders)
	r.POST("/orders", orderCtrl.CreateOrder)
	r.DELETE("/orders/:order_id", orderCtrl.DeleteOrder)

	// MENU
	r.GET("/menu", menuCtrl.GetMenu)
	r.POST("/menu", menuCtrl.CreateMenuItem)
	r.PATCH("/menu/:item_id", menuCtrl.UpdateMenuItem)
	r.DELETE("/menu/:item_id", menuCtrl.DeleteMenuItem)

	// HISTORY
	r.GET("/history", historyCtrl.GetHistory)
	r.DELETE("/history/:history_id", historyCtrl.DeleteHistory)

	// SETTINGS
	r.GET("/settings", settingsCtrl.GetSettings)
	r.PATCH("/settings", settingsCtrl.UpdateSettings)
	r.POST("/interact", settingsCtrl.Interact)

	return r
}
