package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ichikitsu-lab/OrderingSystem/models"
	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

// HTTPStore berbicara ke backend lewat REST. Satu resource per entity,
// payload JSON penuh, origin_id dikirim sebagai query param pada delete.
type HTTPStore struct {
	baseURL    string
	session    *Session
	deviceID   string
	httpClient *http.Client
}

func NewHTTPStore(baseURL, token, deviceID string) *HTTPStore {
	return &HTTPStore{
		baseURL:  baseURL,
		session:  NewSession(token),
		deviceID: deviceID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *HTTPStore) Ping(ctx context.Context) error {
	// Probe murah ala testConnection: ambil satu menu item
	var out []models.MenuItem
	return s.doJSON(ctx, http.MethodGet, "/rest/menu_items?limit=1", nil, &out)
}

func (s *HTTPStore) ListTables(ctx context.Context) ([]models.Table, error) {
	var out []models.Table
	err := s.doJSON(ctx, http.MethodGet, "/rest/tables", nil, &out)
	return out, err
}

func (s *HTTPStore) InsertTable(ctx context.Context, t models.Table) (models.Table, error) {
	var out models.Table
	err := s.doJSON(ctx, http.MethodPost, "/rest/tables", t, &out)
	return out, err
}

func (s *HTTPStore) UpdateTable(ctx context.Context, t models.Table) (models.Table, error) {
	var out models.Table
	err := s.doJSON(ctx, http.MethodPatch, "/rest/tables/"+url.PathEscape(t.ID), t, &out)
	return out, err
}

func (s *HTTPStore) DeleteTable(ctx context.Context, id, originID string) error {
	return s.doJSON(ctx, http.MethodDelete, "/rest/tables/"+url.PathEscape(id)+"?origin_id="+url.QueryEscape(originID), nil, nil)
}

func (s *HTTPStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	err := s.doJSON(ctx, http.MethodGet, "/rest/orders", nil, &out)
	return out, err
}

func (s *HTTPStore) InsertOrder(ctx context.Context, o models.Order) (models.Order, error) {
	var out models.Order
	err := s.doJSON(ctx, http.MethodPost, "/rest/orders", o, &out)
	return out, err
}

func (s *HTTPStore) UpdateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	var out models.Order
	err := s.doJSON(ctx, http.MethodPatch, "/rest/orders/"+url.PathEscape(o.ID), o, &out)
	return out, err
}

func (s *HTTPStore) DeleteOrder(ctx context.Context, id, originID string) error {
	return s.doJSON(ctx, http.MethodDelete, "/rest/orders/"+url.PathEscape(id)+"?origin_id="+url.QueryEscape(originID), nil, nil)
}

func (s *HTTPStore) DeleteOrdersByTable(ctx context.Context, tableID, originID string) error {
	return s.doJSON(ctx, http.MethodDelete, "/rest/orders?table_id="+url.QueryEscape(tableID)+"&origin_id="+url.QueryEscape(originID), nil, nil)
}

func (s *HTTPStore) ListMenuItems(ctx context.Context, activeOnly bool) ([]models.MenuItem, error) {
	path := "/rest/menu_items"
	if activeOnly {
		path += "?is_active=true"
	}
	var out []models.MenuItem
	err := s.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (s *HTTPStore) InsertMenuItem(ctx context.Context, m models.MenuItem) (models.MenuItem, error) {
	var out models.MenuItem
	err := s.doJSON(ctx, http.MethodPost, "/rest/menu_items", m, &out)
	return out, err
}

func (s *HTTPStore) UpdateMenuItem(ctx context.Context, m models.MenuItem) (models.MenuItem, error) {
	var out models.MenuItem
	err := s.doJSON(ctx, http.MethodPatch, "/rest/menu_items/"+url.PathEscape(m.ID), m, &out)
	return out, err
}

func (s *HTTPStore) DeactivateMenuItem(ctx context.Context, id, originID string) error {
	// Soft delete: is_active=false, row tetap ada untuk referensi historis
	body := map[string]interface{}{"is_active": false, "origin_id": originID}
	return s.doJSON(ctx, http.MethodPatch, "/rest/menu_items/"+url.PathEscape(id), body, nil)
}

func (s *HTTPStore) ListOrderHistory(ctx context.Context) ([]models.OrderHistory, error) {
	var out []models.OrderHistory
	err := s.doJSON(ctx, http.MethodGet, "/rest/order_history?deleted=false", nil, &out)
	return out, err
}

func (s *HTTPStore) InsertOrderHistory(ctx context.Context, h models.OrderHistory) (models.OrderHistory, error) {
	var out models.OrderHistory
	err := s.doJSON(ctx, http.MethodPost, "/rest/order_history", h, &out)
	return out, err
}

func (s *HTTPStore) SoftDeleteOrderHistory(ctx context.Context, id, originID string) error {
	body := map[string]interface{}{"deleted": true, "origin_id": originID}
	return s.doJSON(ctx, http.MethodPatch, "/rest/order_history/"+url.PathEscape(id), body, nil)
}

// doJSON membangun request, mengirim, dan men-decode jawaban. Non-2xx
// menjadi *RequestError supaya caller bisa memilah validasi vs transient.
func (s *HTTPStore) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-ID", s.deviceID)
	s.session.Attach(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		utils.ErrorLogger.Printf("Remote %s %s failed: %d %s", method, path, resp.StatusCode, string(msg))
		return &RequestError{Status: resp.StatusCode, Message: string(msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
