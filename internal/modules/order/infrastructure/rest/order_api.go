package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/saransh1220/tableside-sync/internal/modules/order/domain"
	"github.com/saransh1220/tableside-sync/internal/shared/httpapi"
	"github.com/saransh1220/tableside-sync/internal/shared/pagination"
)

const basePath = "/api/orders"

type OrderAPI struct {
	client *httpapi.Client
}

func NewOrderAPI(client *httpapi.Client) *OrderAPI {
	return &OrderAPI{client: client}
}

var _ domain.OrderAPI = (*OrderAPI)(nil)

func (a *OrderAPI) List(ctx context.Context, req pagination.Request) (pagination.Page[domain.Order], error) {
	return httpapi.GetPage[domain.Order](ctx, a.client, basePath, req)
}

func (a *OrderAPI) UpdateStatus(ctx context.Context, id int64, status domain.Status) (*domain.Order, error) {
	body := map[string]domain.Status{"status": status}

	var o domain.Order
	if err := a.client.Do(ctx, http.MethodPatch, orderPath(id, "status"), nil, body, &o); err != nil {
		return nil, translate(err)
	}
	if o.ID == 0 {
		return nil, fmt.Errorf("backend returned no order for status update of %d", id)
	}
	return &o, nil
}

func (a *OrderAPI) Reorder(ctx context.Context, id int64) (*domain.Order, error) {
	var o domain.Order
	if err := a.client.Do(ctx, http.MethodPost, orderPath(id, "reorder"), nil, nil, &o); err != nil {
		return nil, translate(err)
	}
	if o.ID == 0 {
		return nil, fmt.Errorf("backend returned no order for reorder of %d", id)
	}
	return &o, nil
}

func orderPath(id int64, action string) string {
	return basePath + "/" + strconv.FormatInt(id, 10) + "/" + action
}

func translate(err error) error {
	if httpapi.IsNotFound(err) {
		return fmt.Errorf("%w: %w", domain.ErrOrderNotFound, err)
	}
	return err
}
