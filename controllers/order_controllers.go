package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ichikitsu-lab/OrderingSystem/mirror"
	"github.com/ichikitsu-lab/OrderingSystem/services"
	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

type OrderController struct {
	Store      *mirror.Store
	Dispatcher *services.Dispatcher
}

func NewOrderController(store *mirror.Store, dispatcher *services.Dispatcher) *OrderController {
	return &OrderController{Store: store, Dispatcher: dispatcher}
}

// GetAllOrders -> seluruh order berjalan
func (oc *OrderController) GetAllOrders(c *gin.Context) {
	utils.RespondJSON(c, http.StatusOK, "List of orders", oc.Store.Orders())
}

// CreateOrder -> tambah satu line item ke meja
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req struct {
		TableID    string `json:"table_id" binding:"required"`
		MenuItemID string `json:"menu_item_id" binding:"required"`
		Quantity   int    `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := oc.Dispatcher.AddOrderItem(req.TableID, req.MenuItemID, req.Quantity)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order item added", order)
}

// DeleteOrder -> hapus satu line item
func (oc *OrderController) DeleteOrder(c *gin.Context) {
	orderID := c.Param("order_id")
	if err := oc.Dispatcher.RemoveOrderItem(orderID); err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order item removed", gin.H{"id": orderID})
}
