package broker_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/steveyegge/illsync/internal/broker"
	"github.com/steveyegge/illsync/internal/broker/brokertest"
	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/storage/memory"
	"github.com/steveyegge/illsync/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// httptest keep-alive connections are closed by Server.Close, but
		// the transport's idle reader can outlive the test by a tick.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	)
}

func TestFetchRequestSnapshot(t *testing.T) {
	srv := brokertest.New(t, "Z")
	srv.AddRequest(broker.ILLRequest{RequestID: "1001", Status: "Ny", LastModified: "T1", Title: "Doktor Glas"})

	snap, err := srv.Client().FetchRequestSnapshot(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, "Ny", snap.RawStatus)
	assert.Equal(t, "T1", snap.LastModified)
	assert.Equal(t, "Doktor Glas", snap.Request.Title)
}

func TestFetchRequestZeroCountIsError(t *testing.T) {
	srv := brokertest.New(t, "Z")
	_, err := srv.Client().FetchRequestSnapshot(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, broker.ErrNoData), "got %v", err)
}

func TestPushActionSendsFormAndKey(t *testing.T) {
	srv := brokertest.New(t, "Z")
	srv.APIKey = "secret"
	srv.AddRequest(broker.ILLRequest{RequestID: "1001", Status: "Läst", LastModified: "T1"})

	extra := url.Values{}
	extra.Set(broker.FieldResponseID, "1")
	extra.Set(broker.FieldAddedResponse, "Skickas idag")
	extra.Set(broker.FieldMayReserve, "0")

	snap, err := srv.Client().PushAction(context.Background(), "1001", broker.ActionResponse, "T1", extra)
	require.NoError(t, err)
	assert.Equal(t, "Levererad", snap.RawStatus)
	assert.NotEqual(t, "T1", snap.LastModified)

	posts := srv.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "secret", posts[0].APIKey)
	assert.Equal(t, "response", posts[0].Form.Get("action"))
	assert.Equal(t, "T1", posts[0].Form.Get("timestamp"))
	assert.Equal(t, "Skickas idag", posts[0].Form.Get("added_response"))
	assert.Equal(t, "0", posts[0].Form.Get("may_reserve"))
}

func TestPushActionStaleTimestampNotRetried(t *testing.T) {
	srv := brokertest.New(t, "Z")
	srv.AddRequest(broker.ILLRequest{RequestID: "1001", Status: "Ny", LastModified: "T2"})

	client := srv.Client(broker.WithRetryMaxElapsed(5 * time.Second))
	_, err := client.PushAction(context.Background(), "1001", broker.ActionRead, "T1", nil)
	require.Error(t, err)

	var apiErr *broker.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "409 Conflict", err.Error())
	assert.Len(t, srv.Posts(), 1, "POST must be sent exactly once")
	assert.Equal(t, "Ny", srv.Request("1001").Status)
}

func TestGetRetriesTransientFailures(t *testing.T) {
	srv := brokertest.New(t, "Z")
	srv.AddRequest(broker.ILLRequest{RequestID: "1001", Status: "Ny", LastModified: "T1"})
	srv.FailNextGets(2)

	client := srv.Client(broker.WithRetryMaxElapsed(5 * time.Second))
	snap, err := client.FetchRequestSnapshot(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, "Ny", snap.RawStatus)
	assert.Equal(t, 3, srv.Gets())
}

func TestGetWithoutRetryFailsFast(t *testing.T) {
	srv := brokertest.New(t, "Z")
	srv.AddRequest(broker.ILLRequest{RequestID: "1001", Status: "Ny"})
	srv.FailNextGets(1)

	_, err := srv.Client().FetchRequestSnapshot(context.Background(), "1001")
	var apiErr *broker.APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, "503 Service Unavailable", apiErr.Error())
	assert.Equal(t, 1, srv.Gets())
}

func TestUnauthorized(t *testing.T) {
	srv := brokertest.New(t, "Z")
	srv.APIKey = "right"
	srv.AddRequest(broker.ILLRequest{RequestID: "1", Status: "Ny"})

	client := broker.NewClient(srv.URL, "Z", "wrong",
		broker.WithHTTPClient(srv.Server.Client()), broker.WithRetryMaxElapsed(0))
	_, err := client.FetchRequestSnapshot(context.Background(), "1")
	var apiErr *broker.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, apiErr.IsTransient())
}

func TestTransportErrorCarriesContext(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	base := dead.URL
	dead.Close()

	client := broker.NewClient(base, "Z", "", broker.WithRetryMaxElapsed(0), broker.WithTimeout(time.Second))
	_, err := client.PushAction(context.Background(), "1", broker.ActionRead, "T", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker request failed")
}

func TestLookupLibrary(t *testing.T) {
	srv := brokertest.New(t, "Z")
	srv.AddLibrary("G", broker.Library{Name: "Göteborgs UB", City: "Göteborg", ZipCode: "40530"})
	store := memory.New()
	client := srv.Client()
	ctx := context.Background()

	p, err := client.LookupLibrary(ctx, store, "G")
	require.NoError(t, err)
	assert.Equal(t, "Göteborgs UB", p.Name)
	assert.NotZero(t, p.ID)

	_, err = client.LookupLibrary(ctx, store, "NOPE")
	assert.True(t, errors.Is(err, broker.ErrNoData), "got %v", err)
	_, err = store.FindPartner(ctx, "NOPE")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = client.LookupLibrary(ctx, store, "  ")
	assert.Error(t, err)
}

func TestLookupLibraryRefreshesKnownPartner(t *testing.T) {
	srv := brokertest.New(t, "Z")
	srv.AddLibrary("G", broker.Library{Name: "Göteborgs UB", City: "Göteborg", ZipCode: "40530"})
	store := memory.New()
	ctx := context.Background()

	stale := &types.Partner{Code: "G", Name: "Old name", City: "Old city"}
	require.NoError(t, store.UpsertPartner(ctx, stale))
	gets := srv.Gets()

	p, err := srv.Client().LookupLibrary(ctx, store, "G")
	require.NoError(t, err)
	assert.Equal(t, stale.ID, p.ID)
	assert.Equal(t, "Göteborgs UB", p.Name)
	assert.Equal(t, "Göteborg", p.City)
	assert.Greater(t, srv.Gets(), gets, "known partner is refetched")

	stored, err := store.FindPartner(ctx, "G")
	require.NoError(t, err)
	assert.Equal(t, "Göteborgs UB", stored.Name)
	assert.Equal(t, "40530", stored.ZipCode)
}

func TestFetchBibliographicSource(t *testing.T) {
	srv := brokertest.New(t, "Z")
	srv.AddCatalogRecord("8817531", "Hemsöborna", "Strindberg, August", "9789100000000")
	client := srv.Client()
	ctx := context.Background()

	rec, err := client.FetchBibliographicSource(ctx, "8817531", broker.SourceRecord{})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Hemsöborna", rec.Title)
	assert.Equal(t, "Strindberg, August", rec.Author)
	assert.False(t, rec.Synthetic)

	miss, err := client.FetchBibliographicSource(ctx, "404", broker.SourceRecord{})
	require.NoError(t, err)
	assert.Nil(t, miss)

	gets := srv.Gets()
	fallback := broker.SourceRecordFromRequest(&broker.ILLRequest{Title: "Okänd titel", Author: "Anon", ISBNISSN: "123"})
	synth, err := client.FetchBibliographicSource(ctx, broker.PlaceholderPrefix+"42", fallback)
	require.NoError(t, err)
	assert.True(t, synth.Synthetic)
	assert.Equal(t, "Okänd titel", synth.Title)
	assert.Equal(t, "tmp:42", synth.ID)
	assert.Equal(t, gets, srv.Gets(), "placeholder ids never hit the catalog")

	_, err = client.FetchBibliographicSource(ctx, "", fallback)
	assert.Error(t, err)
}
