package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

var saleTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newSales(store *fakeStore, pub Publisher) *SalesService {
	return NewSalesService(store, store, pub, clock.NewFixed(saleTime), discardLogger())
}

func TestSell(t *testing.T) {
	ctx := context.Background()

	t.Run("uses event price and reports own remaining", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "25.00", 3)
		pub := &recordingPublisher{}
		svc := newSales(store, pub)

		res, err := svc.Sell(ctx, SaleInput{EventID: 1, BuyerName: "  Ana  ", BuyerEmail: strPtr(" ana@example.com ")})
		require.NoError(t, err)
		assert.Equal(t, 2, res.RemainingAvailable)
		assert.Equal(t, "Ana", res.Ticket.BuyerName)
		require.NotNil(t, res.Ticket.BuyerEmail)
		assert.Equal(t, "ana@example.com", *res.Ticket.BuyerEmail)
		assert.Equal(t, "25", res.Ticket.Price.String())
		assert.Equal(t, saleTime, res.Ticket.SoldAt)
		assert.Equal(t, 2, store.available(1))
		assert.Equal(t, []string{queue.TypeTicketSold}, pub.types())
	})

	t.Run("explicit price wins over event price", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "25.00", 3)
		svc := newSales(store, nil)

		res, err := svc.Sell(ctx, SaleInput{EventID: 1, BuyerName: "Ana", Price: decPtr("0")})
		require.NoError(t, err)
		assert.True(t, res.Ticket.Price.IsZero())
	})

	t.Run("blank email is treated as absent", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "1", 1)
		svc := newSales(store, nil)

		res, err := svc.Sell(ctx, SaleInput{EventID: 1, BuyerName: "Ana", BuyerEmail: strPtr("   ")})
		require.NoError(t, err)
		assert.Nil(t, res.Ticket.BuyerEmail)
	})

	t.Run("unknown event without price is not found", func(t *testing.T) {
		store := newFakeStore()
		svc := newSales(store, nil)

		_, err := svc.Sell(ctx, SaleInput{EventID: 9, BuyerName: "Ana"})
		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Zero(t, store.reserveCalls)
	})

	t.Run("unknown event with price is not found", func(t *testing.T) {
		store := newFakeStore()
		svc := newSales(store, nil)

		_, err := svc.Sell(ctx, SaleInput{EventID: 9, BuyerName: "Ana", Price: decPtr("12")})
		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.NotErrorIs(t, err, repository.ErrNoCapacity)
		assert.Zero(t, store.reserveCalls)
	})

	t.Run("sold out creates nothing", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "10", 0)
		svc := newSales(store, nil)

		_, err := svc.Sell(ctx, SaleInput{EventID: 1, BuyerName: "Ana"})
		assert.ErrorIs(t, err, repository.ErrNoCapacity)
		assert.Zero(t, store.ticketCount())
		assert.Zero(t, store.available(1))
		assert.Zero(t, store.releaseCalls)
	})

	t.Run("publish failure does not fail the sale", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "10", 1)
		svc := newSales(store, &recordingPublisher{err: errBrokerDown})

		_, err := svc.Sell(ctx, SaleInput{EventID: 1, BuyerName: "Ana"})
		require.NoError(t, err)
		assert.Equal(t, 1, store.ticketCount())
	})

	t.Run("stalled broker is cut off", func(t *testing.T) {
		withPublishTimeout(t, 20*time.Millisecond)
		store := newFakeStore()
		store.addEvent(1, "10", 1)
		pub := &stallingPublisher{}
		svc := newSales(store, pub)

		start := time.Now()
		_, err := svc.Sell(ctx, SaleInput{EventID: 1, BuyerName: "Ana"})
		require.NoError(t, err)
		assert.Less(t, time.Since(start), time.Second)
		assert.ErrorIs(t, pub.lastErr(), context.DeadlineExceeded)
		assert.Equal(t, 1, store.ticketCount())
	})

	t.Run("cancelled request still publishes", func(t *testing.T) {
		withPublishTimeout(t, 20*time.Millisecond)
		store := newFakeStore()
		store.addEvent(1, "10", 1)
		pub := &stallingPublisher{}
		svc := newSales(store, pub)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := svc.Sell(cctx, SaleInput{EventID: 1, BuyerName: "Ana"})
		require.NoError(t, err)
		// Only the publish timeout ends the wait, never the request.
		assert.ErrorIs(t, pub.lastErr(), context.DeadlineExceeded)
	})
}

func TestSellValidationHappensBeforeAnyMutation(t *testing.T) {
	cases := map[string]SaleInput{
		"empty name":     {EventID: 1, BuyerName: "   "},
		"bad email":      {EventID: 1, BuyerName: "Ana", BuyerEmail: strPtr("ana@example")},
		"email spaces":   {EventID: 1, BuyerName: "Ana", BuyerEmail: strPtr("a na@example.com")},
		"negative price": {EventID: 1, BuyerName: "Ana", Price: decPtr("-0.01")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore()
			store.addEvent(1, "10", 5)
			svc := newSales(store, nil)

			_, err := svc.Sell(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Zero(t, store.reserveCalls)
			assert.Equal(t, 5, store.available(1))
		})
	}
}

func TestSellCompensatesLedgerFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate buyer", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "10", 5)
		svc := newSales(store, nil)

		_, err := svc.Sell(ctx, SaleInput{EventID: 1, BuyerName: "Ana", BuyerEmail: strPtr("ana@example.com")})
		require.NoError(t, err)
		before := store.available(1)

		_, err = svc.Sell(ctx, SaleInput{EventID: 1, BuyerName: "Ana", BuyerEmail: strPtr("ana@example.com")})
		assert.ErrorIs(t, err, repository.ErrConflict)
		assert.Equal(t, before, store.available(1))
		assert.Equal(t, 1, store.releaseCalls)
		assert.Equal(t, 1, store.ticketCount())
	})

	t.Run("driver error surfaces as conflict", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "10", 5)
		store.insertErr = errors.New("connection reset")
		svc := newSales(store, nil)

		_, err := svc.Sell(ctx, SaleInput{EventID: 1, BuyerName: "Ana"})
		assert.ErrorIs(t, err, repository.ErrConflict)
		assert.Contains(t, err.Error(), "connection reset")
		assert.Equal(t, 5, store.available(1))
	})

	t.Run("failed release is reported", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "10", 5)
		store.insertErr = repository.ErrConflict
		store.releaseErr = errors.New("db gone")
		svc := newSales(store, nil)

		_, err := svc.Sell(ctx, SaleInput{EventID: 1, BuyerName: "Ana"})
		assert.ErrorIs(t, err, repository.ErrConflict)
		assert.Contains(t, err.Error(), "db gone")
	})

	t.Run("cancelled request still releases", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "10", 5)
		store.insertErr = repository.ErrConflict
		svc := newSales(store, nil)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := svc.Sell(cctx, SaleInput{EventID: 1, BuyerName: "Ana"})
		assert.ErrorIs(t, err, repository.ErrConflict)
		assert.Equal(t, 5, store.available(1))
	})
}

func TestSellConcurrentNeverOversells(t *testing.T) {
	const capacity, extra = 10, 7
	store := newFakeStore()
	store.addEvent(1, "5", capacity)
	svc := newSales(store, nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		remaining []int
		noCap     int
	)
	for i := 0; i < capacity+extra; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Sell(context.Background(), SaleInput{EventID: 1, BuyerName: "buyer", BuyerEmail: strPtr(emailFor(i))})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				remaining = append(remaining, res.RemainingAvailable)
			case errors.Is(err, repository.ErrNoCapacity):
				noCap++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, remaining, capacity)
	assert.Equal(t, extra, noCap)
	assert.Zero(t, store.available(1))
	assert.Equal(t, capacity, store.ticketCount())

	// each sale observed the value produced by its own decrement
	sort.Ints(remaining)
	for i, r := range remaining {
		assert.Equal(t, i, r)
	}
}

func TestSellLastTicketRace(t *testing.T) {
	store := newFakeStore()
	store.addEvent(1, "5", 1)
	svc := newSales(store, nil)

	errs := make([]error, 2)
	results := make([]SaleResult, 2)
	var wg sync.WaitGroup
	for i, name := range []string{"A", "B"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i], errs[i] = svc.Sell(context.Background(), SaleInput{EventID: 1, BuyerName: name})
		}(i, name)
	}
	wg.Wait()

	var ok, full int
	for i, err := range errs {
		if err == nil {
			ok++
			assert.Equal(t, 0, results[i].RemainingAvailable)
		} else if errors.Is(err, repository.ErrNoCapacity) {
			full++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, full)
	assert.Zero(t, store.available(1))
}

func emailFor(i int) string {
	return string(rune('a'+i)) + "@example.com"
}

func TestSellBulk(t *testing.T) {
	ctx := context.Background()

	t.Run("partial fulfilment stops at capacity", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "10", 3)
		svc := newSales(store, nil)

		res, err := svc.SellBulk(ctx, BulkSaleInput{EventID: 1, BuyerName: "Ana", Quantity: 5})
		require.NoError(t, err)
		require.Len(t, res.Tickets, 3)
		assert.False(t, res.Complete(5))
		assert.ErrorIs(t, res.Stopped, repository.ErrNoCapacity)
		assert.Zero(t, store.available(1))
		require.NotNil(t, res.RemainingAvailable)
		assert.Zero(t, *res.RemainingAvailable)
		assert.Equal(t, "Ana #1", res.Tickets[0].BuyerName)
		assert.Equal(t, "Ana #3", res.Tickets[2].BuyerName)
		// one reserve past zero, never a retry
		assert.Equal(t, 4, store.reserveCalls)
	})

	t.Run("huge quantity stops at the inventory", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "5", 3)
		svc := newSales(store, nil)

		res, err := svc.SellBulk(ctx, BulkSaleInput{EventID: 1, BuyerName: "Ana", Quantity: 1 << 60})
		require.NoError(t, err)
		assert.Len(t, res.Tickets, 3)
		assert.False(t, res.Complete(1<<60))
		assert.ErrorIs(t, res.Stopped, repository.ErrNoCapacity)
		assert.Zero(t, store.available(1))
		assert.Equal(t, 3, store.ticketCount())
	})

	t.Run("bulk with stalled broker", func(t *testing.T) {
		withPublishTimeout(t, 10*time.Millisecond)
		store := newFakeStore()
		store.addEvent(1, "5", 20)
		svc := newSales(store, &stallingPublisher{})

		start := time.Now()
		res, err := svc.SellBulk(ctx, BulkSaleInput{EventID: 1, BuyerName: "Ana", Quantity: 20})
		require.NoError(t, err)
		assert.True(t, res.Complete(20))
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("single ticket keeps the plain name", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "10", 3)
		svc := newSales(store, nil)

		res, err := svc.SellBulk(ctx, BulkSaleInput{EventID: 1, BuyerName: "Ana", Quantity: 1})
		require.NoError(t, err)
		require.Len(t, res.Tickets, 1)
		assert.True(t, res.Complete(1))
		assert.NoError(t, res.Stopped)
		assert.Equal(t, "Ana", res.Tickets[0].BuyerName)
	})

	t.Run("stops at first conflict and restores its unit", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(1, "10", 10)
		svc := newSales(store, nil)
		email := strPtr("ana@example.com")
		_, err := svc.Sell(ctx, SaleInput{EventID: 1, BuyerName: "Ana #2", BuyerEmail: email})
		require.NoError(t, err)

		res, err := svc.SellBulk(ctx, BulkSaleInput{EventID: 1, BuyerName: "Ana", BuyerEmail: email, Quantity: 4})
		require.NoError(t, err)
		assert.Len(t, res.Tickets, 1)
		assert.ErrorIs(t, res.Stopped, repository.ErrConflict)
		assert.Equal(t, 8, store.available(1))
	})

	t.Run("invalid input fails before selling", func(t *testing.T) {
		for name, in := range map[string]BulkSaleInput{
			"zero quantity":     {EventID: 1, BuyerName: "Ana", Quantity: 0},
			"negative quantity": {EventID: 1, BuyerName: "Ana", Quantity: -2},
			"bad email":         {EventID: 1, BuyerName: "Ana", BuyerEmail: strPtr("nope"), Quantity: 2},
			"negative price":    {EventID: 1, BuyerName: "Ana", Quantity: 2, Price: decPtr("-1")},
		} {
			t.Run(name, func(t *testing.T) {
				store := newFakeStore()
				store.addEvent(1, "10", 3)
				svc := newSales(store, nil)

				_, err := svc.SellBulk(ctx, in)
				assert.ErrorIs(t, err, ErrInvalidArgument)
				assert.Zero(t, store.reserveCalls)
			})
		}
	})
}
