package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ichikitsu-lab/OrderingSystem/mirror"
	"github.com/ichikitsu-lab/OrderingSystem/services"
	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

type MenuController struct {
	Store      *mirror.Store
	Dispatcher *services.Dispatcher
}

func NewMenuController(store *mirror.Store, dispatcher *services.Dispatcher) *MenuController {
	return &MenuController{Store: store, Dispatcher: dispatcher}
}

// GetMenu -> item aktif urut kategori lalu nama; ?all=true ikut nonaktif
func (mc *MenuController) GetMenu(c *gin.Context) {
	activeOnly := c.Query("all") != "true"
	utils.RespondJSON(c, http.StatusOK, "List of menu items", mc.Store.MenuItems(activeOnly))
}

type menuItemReq struct {
	Name        string  `json:"name" binding:"required"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

// CreateMenuItem -> tambah item menu baru
func (mc *MenuController) CreateMenuItem(c *gin.Context) {
	var req menuItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	item, err := mc.Dispatcher.CreateMenuItem(req.Name, req.Price, req.Category, req.Description, req.ImageURL)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}
	utils.InfoLogger.Printf("Menu item created: %s (%s)", item.Name, utils.FormatCurrency(item.Price))
	utils.RespondJSON(c, http.StatusCreated, "Menu item created", item)
}

// UpdateMenuItem -> ubah nama/harga/kategori; order lama tidak tersentuh
func (mc *MenuController) UpdateMenuItem(c *gin.Context) {
	itemID := c.Param("item_id")
	var req menuItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if err := mc.Dispatcher.UpdateMenuItem(itemID, req.Name, req.Price, req.Category, req.Description, req.ImageURL); err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}
	item, _ := mc.Store.MenuItem(itemID)
	utils.RespondJSON(c, http.StatusOK, "Menu item updated", item)
}

// DeleteMenuItem -> soft delete (is_active=false)
func (mc *MenuController) DeleteMenuItem(c *gin.Context) {
	itemID := c.Param("item_id")
	if err := mc.Dispatcher.DeactivateMenuItem(itemID); err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Menu item deactivated", gin.H{"id": itemID})
}
