package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ichikitsu-lab/OrderingSystem/mirror"
	"github.com/ichikitsu-lab/OrderingSystem/models"
	"github.com/ichikitsu-lab/OrderingSystem/services"
	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

type HistoryController struct {
	Store      *mirror.Store
	Dispatcher *services.Dispatcher
	// RetentionDays membatasi tampilan riwayat; 0 = tanpa batas.
	// Hanya filter layar, row tidak pernah di-purge.
	RetentionDays int
}

func NewHistoryController(store *mirror.Store, dispatcher *services.Dispatcher, retentionDays int) *HistoryController {
	return &HistoryController{Store: store, Dispatcher: dispatcher, RetentionDays: retentionDays}
}

// GetHistory -> arsip pembayaran terbaru dulu
func (hc *HistoryController) GetHistory(c *gin.Context) {
	entries := hc.Store.History()
	if hc.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -hc.RetentionDays)
		filtered := make([]models.OrderHistory, 0, len(entries))
		for _, h := range entries {
			if h.CompletedAt.After(cutoff) {
				filtered = append(filtered, h)
			}
		}
		entries = filtered
	}
	utils.RespondJSON(c, http.StatusOK, "Order history", entries)
}

// DeleteHistory -> soft delete satu arsip
func (hc *HistoryController) DeleteHistory(c *gin.Context) {
	historyID := c.Param("history_id")
	if err := hc.Dispatcher.SoftDeleteHistory(historyID); err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "History entry deleted", gin.H{"id": historyID})
}
