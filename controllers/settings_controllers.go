package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ichikitsu-lab/OrderingSystem/settings"
	"github.com/ichikitsu-lab/OrderingSystem/sound"
	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

type SettingsController struct {
	Settings *settings.Store
	Gate     *sound.Gate
}

func NewSettingsController(store *settings.Store, gate *sound.Gate) *SettingsController {
	return &SettingsController{Settings: store, Gate: gate}
}

// GetSettings -> preferensi terminal
func (sc *SettingsController) GetSettings(c *gin.Context) {
	utils.RespondJSON(c, http.StatusOK, "Settings", gin.H{
		"sound_enabled": sc.Settings.SoundEnabled(),
		"store_name":    sc.Settings.StoreName(),
	})
}

// UpdateSettings -> ubah toggle suara / nama toko
func (sc *SettingsController) UpdateSettings(c *gin.Context) {
	var req struct {
		SoundEnabled *bool   `json:"sound_enabled,omitempty"`
		StoreName    *string `json:"store_name,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if req.SoundEnabled != nil {
		if err := sc.Settings.SetSoundEnabled(*req.SoundEnabled); err != nil {
			utils.RespondError(c, http.StatusInternalServerError, err)
			return
		}
	}
	if req.StoreName != nil {
		if err := sc.Settings.SetStoreName(*req.StoreName); err != nil {
			utils.RespondError(c, http.StatusInternalServerError, err)
			return
		}
	}
	sc.GetSettings(c)
}

// Interact -> interaksi user pertama membuka gate audio
func (sc *SettingsController) Interact(c *gin.Context) {
	sc.Gate.Unlock()
	utils.RespondJSON(c, http.StatusOK, "Audio unlocked", nil)
}
