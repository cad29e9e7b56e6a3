package clients

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/carrental/internal/domain"
)

// ClientServiceClient reads client records for detail projections only.
type ClientServiceClient struct {
	remote
}

func NewClientServiceClient(baseURL string, timeout time.Duration, hc *http.Client) *ClientServiceClient {
	return &ClientServiceClient{remote: newRemote("clients", baseURL, timeout, hc)}
}

// The client service speaks French field names on the wire.
type clientDTO struct {
	ID     int64  `json:"id"`
	Nom    string `json:"nom"`
	Prenom string `json:"prenom"`
	Email  string `json:"email"`
}

func (c *ClientServiceClient) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	var dto clientDTO
	status, err := c.do(ctx, http.MethodGet, "/clients/"+strconv.FormatInt(id, 10), &dto)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	return &domain.Client{ID: dto.ID, FirstName: dto.Prenom, LastName: dto.Nom, Email: dto.Email}, nil
}
