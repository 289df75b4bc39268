package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ichikitsu-lab/OrderingSystem/mirror"
	"github.com/ichikitsu-lab/OrderingSystem/services"
	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

type TableController struct {
	Store      *mirror.Store
	Dispatcher *services.Dispatcher
}

func NewTableController(store *mirror.Store, dispatcher *services.Dispatcher) *TableController {
	return &TableController{Store: store, Dispatcher: dispatcher}
}

// GetAllTables -> seluruh meja dari mirror, urut nomor
func (tc *TableController) GetAllTables(c *gin.Context) {
	utils.RespondJSON(c, http.StatusOK, "List of tables", tc.Store.Tables())
}

// GetTableByID -> detail satu meja
func (tc *TableController) GetTableByID(c *gin.Context) {
	tableID := c.Param("table_id")
	table, ok := tc.Store.Table(tableID)
	if !ok {
		utils.RespondError(c, http.StatusNotFound, services.ErrTableNotFound)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table detail", table)
}

// GetTableOrders -> order yang sedang berjalan di satu meja
func (tc *TableController) GetTableOrders(c *gin.Context) {
	tableID := c.Param("table_id")
	if _, ok := tc.Store.Table(tableID); !ok {
		utils.RespondError(c, http.StatusNotFound, services.ErrTableNotFound)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Orders for table", tc.Store.OrdersByTable(tableID))
}

// CreateTable -> menambahkan meja baru
func (tc *TableController) CreateTable(c *gin.Context) {
	var req struct {
		Number string `json:"number" binding:"required"`
		Seats  int    `json:"seats" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	table, err := tc.Dispatcher.CreateTable(req.Number, req.Seats)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}
	utils.InfoLogger.Printf("New table created: %s (seats=%d)", table.Number, table.Seats)
	utils.RespondJSON(c, http.StatusCreated, "Table created successfully", table)
}

// OpenTable -> menempati meja (available -> occupied)
func (tc *TableController) OpenTable(c *gin.Context) {
	tableID := c.Param("table_id")
	var req struct {
		CustomerCount int `json:"customer_count" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if err := tc.Dispatcher.OpenTable(tableID, req.CustomerCount); err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}
	table, _ := tc.Store.Table(tableID)
	utils.InfoLogger.Printf("Table %s opened for %d customers", table.Number, req.CustomerCount)
	utils.RespondJSON(c, http.StatusOK, "Table opened", table)
}

// ClosePayment -> tutup meja, tulis riwayat, meja kembali available
func (tc *TableController) ClosePayment(c *gin.Context) {
	tableID := c.Param("table_id")
	var req struct {
		PaymentMethod string `json:"payment_method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if err := tc.Dispatcher.ClosePayment(tableID, req.PaymentMethod); err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}
	table, _ := tc.Store.Table(tableID)
	utils.InfoLogger.Printf("Table %s closed (%s)", table.Number, req.PaymentMethod)
	utils.RespondJSON(c, http.StatusOK, "Payment completed", table)
}
