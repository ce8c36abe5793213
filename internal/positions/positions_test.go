package positions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/auth"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/database/dialect"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/lock"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(dialect.SQLite("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Position{}))
	return db
}

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(setupTestDB(t), lock.NewKeyedMutex(), "")
}

func request(qty string, avg *string, version int64) *Request {
	r := &Request{
		AccountID:    "A",
		InstrumentID: "I",
		Quantity:     decimal.RequireFromString(qty),
		Version:      version,
	}
	if avg != nil {
		r.AvgCost = decimal.NewNullDecimal(decimal.RequireFromString(*avg))
	}
	return r
}

func str(s string) *string { return &s }

func TestRecalculateScenario(t *testing.T) {
	s := newService(t)

	position, err := s.Recalculate(context.Background(), request("10.0000000000", str("101.110000"), 0))
	require.NoError(t, err)

	view := position.Response()
	assert.Equal(t, "10.0000000000", view.Quantity)
	require.NotNil(t, view.AvgCost)
	assert.Equal(t, "101.110000", *view.AvgCost)

	stored, err := s.GetByKey(context.Background(), "A", "I")
	require.NoError(t, err)
	assert.Equal(t, position.PositionID, stored.PositionID)
	assert.Equal(t, "10.0000000000", numeric.FormatQuantity(stored.Quantity))
	assert.Equal(t, "101.110000", *numeric.FormatNullPrice(stored.AvgCost))
}

func TestRecalculateIsIdempotent(t *testing.T) {
	s := newService(t)
	req := request("3.5", str("20.1234567"), 7)

	first, err := s.Recalculate(context.Background(), req)
	require.NoError(t, err)
	second, err := s.Recalculate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.PositionID, second.PositionID)
	assert.Equal(t, first.Response().Quantity, second.Response().Quantity)
	assert.Equal(t, *first.Response().AvgCost, *second.Response().AvgCost)
	assert.Equal(t, "20.123457", *second.Response().AvgCost)
	assert.Equal(t, int64(7), second.SourceVersion)

	_, total, err := s.ListByAccount(context.Background(), "A", types.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestRecalculateFlatPositionHasNoCost(t *testing.T) {
	s := newService(t)

	position, err := s.Recalculate(context.Background(), request("0", str("50.000000"), 0))
	require.NoError(t, err)
	assert.False(t, position.AvgCost.Valid)
	assert.Nil(t, position.Response().AvgCost)

	// Rounds to zero at quantity scale.
	position, err = s.Recalculate(context.Background(), request("0.00000000001", str("50"), 0))
	require.NoError(t, err)
	assert.True(t, position.Quantity.IsZero())
	assert.False(t, position.AvgCost.Valid)
}

func TestRecalculateRejectsStaleVersion(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.Recalculate(ctx, request("10", str("100"), 200))
	require.NoError(t, err)

	_, err = s.Recalculate(ctx, request("4", str("90"), 100))
	assert.ErrorIs(t, err, apperr.ErrStale)

	stored, err := s.GetByKey(ctx, "A", "I")
	require.NoError(t, err)
	assert.Equal(t, "10.0000000000", numeric.FormatQuantity(stored.Quantity))
	assert.Equal(t, int64(200), stored.SourceVersion)

	// Unversioned requests always apply and keep the stored version.
	_, err = s.Recalculate(ctx, request("1", str("1"), 0))
	require.NoError(t, err)
	stored, err = s.GetByKey(ctx, "A", "I")
	require.NoError(t, err)
	assert.Equal(t, "1.0000000000", numeric.FormatQuantity(stored.Quantity))
	assert.Equal(t, int64(200), stored.SourceVersion)

	_, err = s.Recalculate(ctx, request("12", str("101"), 300))
	require.NoError(t, err)
}

func TestRecalculateValidation(t *testing.T) {
	s := newService(t)

	_, err := s.Recalculate(context.Background(), nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.Recalculate(context.Background(), &Request{InstrumentID: "I", Quantity: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.Recalculate(context.Background(), request("1", str("-1"), 0))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestProcessMessage(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	evt, err := events.NewRecalculateRequested(events.RecalculateRequested{
		AccountID:    "A",
		InstrumentID: "I",
		Quantity:     "10.0000000000",
		AvgCost:      str("101.110000"),
		Version:      5,
	})
	require.NoError(t, err)
	value, err := evt.Value()
	require.NoError(t, err)

	s.ProcessMessage(ctx, value)
	stored, err := s.GetByKey(ctx, "A", "I")
	require.NoError(t, err)
	assert.Equal(t, "101.110000", *numeric.FormatNullPrice(stored.AvgCost))

	// Bare payloads are accepted too.
	s.ProcessMessage(ctx, []byte(`{"account_id":"A","instrument_id":"I","quantity":"0","avg_cost":"50.000000"}`))
	stored, err = s.GetByKey(ctx, "A", "I")
	require.NoError(t, err)
	assert.True(t, stored.Quantity.IsZero())
	assert.False(t, stored.AvgCost.Valid)

	// Malformed input is swallowed.
	s.ProcessMessage(ctx, []byte("not json"))
	s.ProcessMessage(ctx, []byte(`{"account_id":"A","instrument_id":"I","quantity":"abc"}`))
	s.ProcessMessage(ctx, []byte(`{"instrument_id":"I","quantity":"1"}`))

	h := s.MessageHandler()
	assert.NoError(t, h(ctx, kafka.Message{Topic: "positions-recalculate-requested", Value: []byte("{")}))

	_, total, err := s.ListByAccount(ctx, "A", types.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestMemoryBrokerDeliversRecalculations(t *testing.T) {
	s := newService(t)
	broker := events.NewMemoryBroker()
	broker.Subscribe("positions-recalculate-requested", s.MessageHandler())

	evt, err := events.NewRecalculateRequested(events.RecalculateRequested{
		AccountID:    "A",
		InstrumentID: "I",
		Quantity:     "4",
		AvgCost:      str("12.5"),
	})
	require.NoError(t, err)
	require.NoError(t, events.PublishEvent(context.Background(), broker, events.DefaultTopics(), evt))

	stored, err := s.GetByKey(context.Background(), "A", "I")
	require.NoError(t, err)
	assert.Equal(t, "4.0000000000", numeric.FormatQuantity(stored.Quantity))
}

func TestQueriesCheckOwnership(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	position, err := s.Recalculate(ctx, request("1", str("1"), 0))
	require.NoError(t, err)

	_, err = s.Get(ctx, position.PositionID, "B")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, position.PositionID, "B"), apperr.ErrNotFound)

	got, err := s.Get(ctx, position.PositionID, "A")
	require.NoError(t, err)
	assert.Equal(t, "I", got.InstrumentID)

	require.NoError(t, s.Delete(ctx, position.PositionID, "A"))
	_, err = s.GetByKey(ctx, "A", "I")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListByAccountPaginates(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	for _, instrument := range []string{"C", "A", "B"} {
		_, err := s.Recalculate(ctx, &Request{AccountID: "A", InstrumentID: instrument, Quantity: decimal.NewFromInt(1)})
		require.NoError(t, err)
	}

	positions, total, err := s.ListByAccount(ctx, "A", types.Pagination{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, positions, 2)
	assert.Equal(t, "B", positions[0].InstrumentID)
	assert.Equal(t, "C", positions[1].InstrumentID)
}

func newRouter(s *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	asAccount := func(c *gin.Context) {
		c.Set(auth.ContextAccountID, "A")
		c.Next()
	}
	NewGinHandlers(s).Register(r.Group("/api/v1"), gin.HandlersChain{asAccount}, gin.HandlersChain{func(c *gin.Context) { c.Next() }})
	return r
}

func TestHandlers(t *testing.T) {
	s := newService(t)
	r := newRouter(s)

	w := httptest.NewRecorder()
	body := `{"account_id":"A","instrument_id":"I","quantity":"10","avg_cost":"101.11","version":9}`
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/internal/positions/recalculate", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Success bool                   `json:"success"`
		Data    types.PositionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, created.Success)
	assert.Equal(t, "10.0000000000", created.Data.Quantity)

	w = httptest.NewRecorder()
	stale := `{"account_id":"A","instrument_id":"I","quantity":"1","version":3}`
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/internal/positions/recalculate", strings.NewReader(stale)))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/positions/instrument/I", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/positions?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/positions/"+created.Data.PositionID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/positions/"+created.Data.PositionID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/positions/"+created.Data.PositionID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
