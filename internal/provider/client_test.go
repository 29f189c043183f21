package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Credentials{AccessToken: "test-token"}, Options{
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000,
		Burst:             1000,
		PageSize:          2,
		Retry:             RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	})
	return client, srv
}

func writeEnvelope(w http.ResponseWriter, data any) {
	raw, _ := json.Marshal(data)
	json.NewEncoder(w).Encode(map[string]any{
		"code": 0, "message": "OK", "request_id": "req-1",
		"data": json.RawMessage(raw),
	})
}

func collect(t *testing.T, stream *PageStream) []map[string]any {
	t.Helper()
	var out []map[string]any
	for stream.Next(context.Background()) {
		out = append(out, stream.Items()...)
	}
	require.NoError(t, stream.Err())
	return out
}

func TestListBusinessCenters_NumberedPagination(t *testing.T) {
	pages := map[string][]map[string]any{
		"1": {{"bc_id": "bc-1"}, {"bc_id": "bc-2"}},
		"2": {{"bc_id": "bc-3"}},
	}
	var requests int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "/bc/get/", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("Access-Token"))
		assert.Equal(t, "2", r.URL.Query().Get("page_size"))

		page := r.URL.Query().Get("page")
		pageNum, err := strconv.Atoi(page)
		require.NoError(t, err)
		writeEnvelope(w, map[string]any{
			"list":      pages[page],
			"page_info": map[string]any{"page": pageNum, "total_page": 2},
		})
	}))

	items := collect(t, client.ListBusinessCenters(ListOptions{}))

	require.Len(t, items, 3)
	assert.Equal(t, "bc-1", items[0]["bc_id"])
	assert.Equal(t, "bc-3", items[2]["bc_id"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestListBusinessCenters_ResumesFromStoredPage(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "3", r.URL.Query().Get("page"))
		writeEnvelope(w, map[string]any{
			"list":      []map[string]any{{"bc_id": "bc-9"}},
			"page_info": map[string]any{"page": 3, "total_page": 3},
		})
	}))

	items := collect(t, client.ListBusinessCenters(ListOptions{State: PageState{Page: 3}}))
	require.Len(t, items, 1)
}

func TestListProducts_CursorPagination(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/store/product/get/", r.URL.Path)
		assert.Equal(t, "store-1", r.URL.Query().Get("store_id"))
		assert.Equal(t, "grocery", r.URL.Query().Get("eligibility"))

		switch r.URL.Query().Get("cursor") {
		case "":
			writeEnvelope(w, map[string]any{
				"list":        []map[string]any{{"product_id": "p-1"}},
				"next_cursor": "tok-2",
				"has_more":    true,
			})
		case "tok-2":
			writeEnvelope(w, map[string]any{
				"list":        []map[string]any{{"product_id": "p-2"}},
				"next_cursor": "",
				"has_more":    false,
			})
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))

	stream := client.ListProducts(ListOptions{StoreID: "store-1", Eligibility: "grocery"})
	items := collect(t, stream)

	require.Len(t, items, 2)
	assert.Equal(t, "p-1", items[0]["product_id"])
	assert.Equal(t, "p-2", items[1]["product_id"])
}

func TestListAdvertisers_BusinessErrorNotRetried(t *testing.T) {
	var requests int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"code": 40002, "message": "param error", "request_id": "req-9",
		})
	}))

	stream := client.ListAdvertisers(ListOptions{})
	require.False(t, stream.Next(context.Background()))

	var apiErr *APIError
	require.ErrorAs(t, stream.Err(), &apiErr)
	assert.Equal(t, int64(40002), apiErr.Code)
	assert.True(t, IsBusinessError(stream.Err()))
	assert.False(t, IsCredentialError(stream.Err()))

	// One request only: business errors do not qualify for retry.
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestGet_ServerErrorRetriedUntilSuccess(t *testing.T) {
	var requests int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeEnvelope(w, map[string]any{
			"list":      []map[string]any{{"bc_id": "bc-1"}},
			"page_info": map[string]any{"page": 1, "total_page": 1},
		})
	}))

	items := collect(t, client.ListBusinessCenters(ListOptions{}))

	require.Len(t, items, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestGet_ServerErrorExhaustsAttempts(t *testing.T) {
	var requests int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	stream := client.ListBusinessCenters(ListOptions{})
	require.False(t, stream.Next(context.Background()))

	var trErr *TransportError
	require.ErrorAs(t, stream.Err(), &trErr)
	assert.Equal(t, http.StatusBadGateway, trErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestGet_UnauthorizedNotRetried(t *testing.T) {
	var requests int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	stream := client.ListBusinessCenters(ListOptions{})
	require.False(t, stream.Next(context.Background()))

	assert.True(t, IsCredentialError(stream.Err()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestIsCredentialError_InvalidTokenEnvelopeCodes(t *testing.T) {
	for _, code := range []int64{40100, 40101, 40102, 40105} {
		err := &APIError{Code: code, Message: "token"}
		assert.True(t, IsCredentialError(err), "code %d", code)
	}
	assert.False(t, IsCredentialError(&APIError{Code: 40002}))
}

func TestGetAdvertiserDetails_ChunksBatches(t *testing.T) {
	var batches [][]string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("advertiser_ids")), &ids))
		batches = append(batches, ids)

		list := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			list = append(list, map[string]any{"advertiser_id": id, "industry": "retail"})
		}
		writeEnvelope(w, map[string]any{"list": list})
	}))

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("adv-%03d", i)
	}
	details, err := client.GetAdvertiserDetails(context.Background(), ids)

	require.NoError(t, err)
	assert.Len(t, details, 120)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 50)
	assert.Len(t, batches[1], 50)
	assert.Len(t, batches[2], 20)
}

func TestPageStream_EmptyFirstPage(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]any{
			"list":      []map[string]any{},
			"page_info": map[string]any{"page": 1, "total_page": 0},
		})
	}))

	stream := client.ListBusinessCenters(ListOptions{})
	assert.False(t, stream.Next(context.Background()))
	assert.NoError(t, stream.Err())
	assert.Empty(t, stream.Items())
}
