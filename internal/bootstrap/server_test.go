package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/carrental/config"
	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/service/payments"
	"github.com/Domenick1991/carrental/internal/service/rental"
)

// stubPayments answers only TotalRevenue; the router test never reaches the rest.
type stubPayments struct {
	payments.PaymentUseCase
}

func (stubPayments) TotalRevenue(context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(10), nil
}

type stubRentals struct {
	rental.RentalUseCase
}

func (stubRentals) ActiveRentals(context.Context) ([]domain.Rental, error) {
	return []domain.Rental{}, nil
}

func serve(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rentals.swagger.json"), []byte(`{"swagger":"2.0"}`), 0o644))
	cfg := &config.Config{HTTP: config.HTTPConfig{SwaggerDir: dir}}

	router := NewRouter(cfg, stubRentals{}, stubPayments{})

	assert.Equal(t, http.StatusOK, serve(router, "/healthz").Code)
	assert.Equal(t, http.StatusOK, serve(router, "/rentals/active").Code)

	w := serve(router, "/payments/revenue")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "10.00")

	w = serve(router, "/swagger/rentals.swagger.json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swagger")

	assert.Equal(t, http.StatusOK, serve(router, "/docs/index.html").Code)
}

func TestNewRouter_NoSwagger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := NewRouter(&config.Config{}, stubRentals{}, stubPayments{})

	assert.Equal(t, http.StatusNotFound, serve(router, "/docs/index.html").Code)
}
